// Package tokenizer wraps a loaded SentencePiece model for
// deterministic string <-> token-id conversion. Construction does disk
// I/O and is not expected to be fast; Encode/Decode/Lookup are safe for
// concurrent read-only use once constructed.
package tokenizer

import (
	"fmt"
	"sync"

	spm "github.com/eliben/go-sentencepiece"
)

// Kind identifies a special token.
type Kind int

const (
	BOS Kind = iota
	EOS
	PAD
	UNK
)

// helsinkiPAD is the pad sentinel Helsinki OPUS-MT models use when the
// loaded model reports none (spec: "Helsinki models: 60715").
const helsinkiPAD = 60715

// Tokenizer is a loaded SentencePiece model plus its resolved special
// token ids. Unexported fields are read-only after construction, so no
// mutex is needed for concurrent Encode/Decode calls — only the
// underlying *spm.Processor must itself be safe for concurrent use,
// which go-sentencepiece guarantees for its read path.
type Tokenizer struct {
	proc *spm.Processor

	bos, eos, pad, unk int
}

// Load reads a SentencePiece model file and resolves its special
// tokens, applying the Helsinki OPUS-MT BOS=EOS=0 aliasing rule: if the
// model reports an invalid (negative) EOS, EOS is aliased to BOS.
func Load(modelPath string) (*Tokenizer, error) {
	proc, err := spm.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load %q: %w", modelPath, err)
	}

	bos := proc.BosID()
	eos := proc.EosID()
	if eos < 0 {
		eos = bos
	}
	pad := proc.PadID()
	if pad < 0 {
		pad = helsinkiPAD
	}
	unk := proc.UnkID()

	return &Tokenizer{proc: proc, bos: bos, eos: eos, pad: pad, unk: unk}, nil
}

// Encode converts text to a sequence of token ids using the model's own
// normalizer.
func (t *Tokenizer) Encode(text string) []int {
	tokens := t.proc.Encode(text)
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = tok.ID
	}
	return ids
}

// Decode converts a token-id sequence back to text. Ids outside the
// model's vocabulary range are mapped to the unknown token.
func (t *Tokenizer) Decode(ids []int) string {
	vocab := t.proc.VocabSize()
	clean := make([]int, len(ids))
	for i, id := range ids {
		if id < 0 || id >= vocab {
			clean[i] = t.unk
			continue
		}
		clean[i] = id
	}
	return t.proc.Decode(clean)
}

// VocabularySize returns the model's vocabulary size.
func (t *Tokenizer) VocabularySize() int {
	return t.proc.VocabSize()
}

// SpecialTokenID returns the resolved id for the given special-token
// kind.
func (t *Tokenizer) SpecialTokenID(kind Kind) int {
	switch kind {
	case BOS:
		return t.bos
	case EOS:
		return t.eos
	case PAD:
		return t.pad
	case UNK:
		return t.unk
	default:
		return t.unk
	}
}

// loadOnce supports lazily sharing one *Tokenizer across multiple
// engine instances pointed at the same model file, mirroring the
// teacher's xproc.ProcessName cached-resolution idiom (resolve once,
// reuse, never retry on success).
type loadOnce struct {
	mu    sync.Mutex
	cache map[string]*Tokenizer
}

var shared = &loadOnce{cache: make(map[string]*Tokenizer)}

// LoadShared returns a cached Tokenizer for modelPath, loading it on
// first use. Safe for concurrent callers.
func LoadShared(modelPath string) (*Tokenizer, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if tok, ok := shared.cache[modelPath]; ok {
		return tok, nil
	}
	tok, err := Load(modelPath)
	if err != nil {
		return nil, err
	}
	shared.cache[modelPath] = tok
	return tok, nil
}
