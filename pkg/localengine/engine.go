// Package localengine implements Backend-A: a single-string translator
// over a loaded ONNX encoder-decoder model and a pair of SentencePiece
// tokenizers, via autoregressive greedy decoding.
package localengine

import (
	"math"
	"sync"
	"time"

	"github.com/baketa-translate/core/pkg/onnxsession"
	"github.com/baketa-translate/core/pkg/tokenizer"
	"github.com/baketa-translate/core/pkg/xlate"
)

// Config tunes the decode loop. MinStepsBeforeEOS is the Helsinki
// BOS=EOS=0 guard threshold; the spec calls it a heuristic that "may
// need revisiting per model" and asks that it be configurable rather
// than a constant (see DESIGN.md's Open Question decisions).
type Config struct {
	MaxSequenceLength int
	MaxOutputLength   int
	RepetitionPenalty float64
	MinStepsBeforeEOS int
}

// DefaultConfig matches the spec's defaults.
func DefaultConfig() Config {
	return Config{
		MaxSequenceLength: 512,
		MaxOutputLength:   100,
		RepetitionPenalty: 1.2,
		MinStepsBeforeEOS: 3,
	}
}

// Engine translates one string at a time using a loaded session and a
// source/target tokenizer pair. The session is not re-entrant; run is
// serialized by mu, which is part of Engine's public contract (spec
// §4.3 / §9: "the mutex is part of the engine's public contract").
type Engine struct {
	mu      sync.Mutex
	session *onnxsession.Session
	src     *tokenizer.Tokenizer
	tgt     *tokenizer.Tokenizer
	cfg     Config
}

// New constructs an Engine over an already-loaded session and
// tokenizer pair.
func New(session *onnxsession.Session, src, tgt *tokenizer.Tokenizer, cfg Config) *Engine {
	return &Engine{session: session, src: src, tgt: tgt, cfg: cfg}
}

// Translate runs greedy decoding end to end for one request.
func (e *Engine) Translate(req xlate.TranslationRequest) xlate.TranslationResponse {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	text, err := e.translateLocked(req.SourceText)
	elapsed := time.Since(start)
	if err != nil {
		return xlate.TranslationResponse{
			RequestID:      req.RequestID,
			Success:        false,
			Provider:       "local",
			ProcessingTime: elapsed,
			Error:          xlate.NewProcessingError("ALPHA_OPUSMT_ERROR", err),
		}
	}
	return xlate.TranslationResponse{
		RequestID:      req.RequestID,
		Success:        true,
		TranslatedText: text,
		Provider:       "local",
		ProcessingTime: elapsed,
	}
}

func (e *Engine) translateLocked(text string) (string, error) {
	srcIDs := e.src.Encode(text)
	if len(srcIDs) > e.cfg.MaxSequenceLength {
		srcIDs = srcIDs[:e.cfg.MaxSequenceLength]
	}
	seqLen := len(srcIDs)

	encoderInputIDs := toInt64(srcIDs)
	encoderAttnMask := make([]int64, seqLen)
	for i := range encoderAttnMask {
		encoderAttnMask[i] = 1
	}

	bos := e.tgt.SpecialTokenID(tokenizer.BOS)
	eos := e.tgt.SpecialTokenID(tokenizer.EOS)
	pad := e.tgt.SpecialTokenID(tokenizer.PAD)
	helsinkiConvention := bos == eos
	targetVocab := e.tgt.VocabularySize()

	decoderIDs := []int64{int64(bos)}
	output := make([]int, 0, e.cfg.MaxOutputLength)
	emitted := make(map[int]struct{})

	for step := 0; step < e.cfg.MaxOutputLength; step++ {
		outputs, err := e.session.Run([]onnxsession.Tensor{
			{Shape: []int64{1, int64(seqLen)}, Int64: encoderInputIDs},
			{Shape: []int64{1, int64(seqLen)}, Int64: encoderAttnMask},
			{Shape: []int64{1, int64(len(decoderIDs))}, Int64: decoderIDs},
		})
		if err != nil {
			return "", err
		}
		if len(outputs) == 0 {
			return "", errNoLogits
		}
		logits := lastPositionLogits(outputs[0])

		next := selectNext(logits, selectOptions{
			targetVocab:        targetVocab,
			bos:                bos,
			pad:                pad,
			eos:                eos,
			step:               step,
			minStepsBeforeEOS:  e.cfg.MinStepsBeforeEOS,
			helsinkiConvention: helsinkiConvention,
			penalty:            e.cfg.RepetitionPenalty,
			emitted:            emitted,
		})

		if next == eos && step >= e.cfg.MinStepsBeforeEOS {
			break
		}

		decoderIDs = append(decoderIDs, int64(next))
		output = append(output, next)
		emitted[next] = struct{}{}
	}

	filtered := make([]int, 0, len(output))
	for _, id := range output {
		if id >= 0 && id < targetVocab {
			filtered = append(filtered, id)
		}
	}
	return e.tgt.Decode(filtered), nil
}

type selectOptions struct {
	targetVocab        int
	bos, pad, eos      int
	step               int
	minStepsBeforeEOS  int
	helsinkiConvention bool
	penalty            float64
	emitted            map[int]struct{}
}

// selectNext implements the spec §4.3 step-4c filter chain: skip ids
// outside the target vocabulary, skip BOS/PAD always, skip the
// Helsinki degenerate-EOS case below the configured step threshold,
// and apply the repetition penalty to already-emitted ids before
// taking argmax.
func selectNext(logits []float32, o selectOptions) int {
	best := -1
	var bestScore float64 = math.Inf(-1)

	for id, logit := range logits {
		if id >= o.targetVocab {
			continue
		}
		if id == o.bos || id == o.pad {
			continue
		}
		if o.helsinkiConvention && id == o.eos && o.step < o.minStepsBeforeEOS {
			continue
		}

		score := float64(logit)
		if o.penalty != 1.0 {
			if _, seen := o.emitted[id]; seen {
				score /= o.penalty
			}
		}
		if score > bestScore {
			bestScore = score
			best = id
		}
	}
	return best
}

func lastPositionLogits(t onnxsession.Tensor) []float32 {
	if len(t.Shape) < 2 {
		return t.Float32
	}
	vocab := int(t.Shape[len(t.Shape)-1])
	seq := int(t.Shape[len(t.Shape)-2])
	if seq == 0 || vocab == 0 {
		return nil
	}
	start := (seq - 1) * vocab
	return t.Float32[start : start+vocab]
}

func toInt64(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, v := range ids {
		out[i] = int64(v)
	}
	return out
}

var errNoLogits = xlateProcessingError("no logits produced")

func xlateProcessingError(msg string) error {
	return &processingErr{msg: msg}
}

type processingErr struct{ msg string }

func (e *processingErr) Error() string { return "localengine: " + e.msg }
