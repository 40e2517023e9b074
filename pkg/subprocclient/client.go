package subprocclient

import (
	"context"
	"fmt"
	"time"

	"github.com/baketa-translate/core/pkg/resilience/xretry"
	"github.com/baketa-translate/core/pkg/subprocconn"
	"github.com/baketa-translate/core/pkg/util/xpool"
	"github.com/baketa-translate/core/pkg/xlate"
)

const (
	defaultReadTimeout = 15 * time.Second
	defaultMaxBatch    = 50
)

// Client translates text through the subprocess's framed newline-JSON
// protocol using a shared connection pool.
type Client struct {
	pool        *subprocconn.Pool
	maxBatch    int
	maxInFlight int
}

// New wraps a connection pool as a translate client. maxInFlight
// bounds parallel chunk fan-out for oversized batches; it should match
// the pool's configured capacity.
func New(pool *subprocconn.Pool, maxInFlight int) *Client {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Client{pool: pool, maxBatch: defaultMaxBatch, maxInFlight: maxInFlight}
}

// Translate sends one request and waits for its reply.
func (c *Client) Translate(ctx context.Context, req xlate.TranslationRequest) xlate.TranslationResponse {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return errorResponse(req.RequestID, xlate.NewNetworkError(err))
	}
	defer c.pool.Release(conn)

	readCtx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	wireReq := singleRequest{
		Text:       req.SourceText,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		RequestID:  req.RequestID,
	}
	if err := conn.SendLine(readCtx, wireReq); err != nil {
		return errorResponse(req.RequestID, xlate.NewNetworkError(err))
	}

	var resp singleResponse
	if err := conn.ReadLine(readCtx, &resp); err != nil {
		if readCtx.Err() != nil {
			return errorResponse(req.RequestID, xlate.NewTimeoutError(err))
		}
		return errorResponse(req.RequestID, xlate.NewNetworkError(err))
	}
	if !resp.Success {
		return errorResponse(req.RequestID, xlate.NewProcessingError("SUBPROCESS_ERROR", fmt.Errorf("%s", resp.Error)))
	}

	return xlate.TranslationResponse{
		RequestID:      req.RequestID,
		Success:        true,
		TranslatedText: resp.Translation,
		Provider:       "subprocess",
		ProcessingTime: time.Duration(resp.ProcessingTime * float64(time.Second)),
	}
}

// TranslateBatch groups requests by (source_lang, target_lang), sends
// one batch RPC per group (chunked and parallelized above maxBatch),
// and reassembles results in input order. A group that fails as a
// whole falls back to translating each of its members individually.
func (c *Client) TranslateBatch(ctx context.Context, reqs []xlate.TranslationRequest) []xlate.TranslationResponse {
	results := make([]xlate.TranslationResponse, len(reqs))

	type groupKey struct{ src, tgt string }
	groups := make(map[groupKey][]int)
	for i, r := range reqs {
		k := groupKey{r.SourceLang, r.TargetLang}
		groups[k] = append(groups[k], i)
	}

	type chunk struct {
		key  groupKey
		idxs []int
	}
	var chunks []chunk
	for key, idxs := range groups {
		for start := 0; start < len(idxs); start += c.maxBatch {
			end := start + c.maxBatch
			if end > len(idxs) {
				end = len(idxs)
			}
			chunks = append(chunks, chunk{key: key, idxs: idxs[start:end]})
		}
	}

	// Chunk fan-out is bounded by the connection pool's own capacity
	// (maxInFlight), not by an independent worker count: more workers
	// than connections would just queue on Acquire anyway.
	pool, err := xpool.New(c.maxInFlight, len(chunks)+1, func(ch chunk) {
		c.translateChunk(ctx, ch.key.src, ch.key.tgt, ch.idxs, reqs, results)
	})
	if err != nil {
		// Degrade to sequential execution rather than losing the batch.
		for _, ch := range chunks {
			c.translateChunk(ctx, ch.key.src, ch.key.tgt, ch.idxs, reqs, results)
		}
		return results
	}

	for _, ch := range chunks {
		_ = pool.Submit(ch)
	}
	_ = pool.Shutdown(ctx)

	return results
}

func (c *Client) translateChunk(ctx context.Context, src, tgt string, idxs []int, reqs []xlate.TranslationRequest, results []xlate.TranslationResponse) {
	texts := make([]string, len(idxs))
	for i, idx := range idxs {
		texts[i] = reqs[idx].SourceText
	}

	resp, err := c.sendBatch(ctx, src, tgt, texts)
	if err != nil || !resp.Success {
		c.fallbackIndividually(ctx, idxs, reqs, results)
		return
	}
	for i, idx := range idxs {
		if i >= len(resp.Translations) {
			results[idx] = errorResponse(reqs[idx].RequestID, xlate.NewProcessingError("SUBPROCESS_BATCH_SHORT", fmt.Errorf("missing entry %d", i)))
			continue
		}
		errMsg := ""
		if i < len(resp.Errors) {
			errMsg = resp.Errors[i]
		}
		if errMsg != "" {
			results[idx] = errorResponse(reqs[idx].RequestID, xlate.NewProcessingError("SUBPROCESS_ERROR", fmt.Errorf("%s", errMsg)))
			continue
		}
		results[idx] = xlate.TranslationResponse{
			RequestID:      reqs[idx].RequestID,
			Success:        true,
			TranslatedText: resp.Translations[i],
			Provider:       "subprocess",
		}
	}
}

// sendBatch makes a single attempt at a batch RPC; batch-level retry
// is not meaningful here, since any failure falls back to individual
// per-element retries in fallbackIndividually instead.
func (c *Client) sendBatch(ctx context.Context, src, tgt string, texts []string) (batchResponse, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return batchResponse{}, err
	}
	defer c.pool.Release(conn)

	readCtx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	req := batchRequest{
		Texts:        texts,
		SourceLang:   src,
		TargetLang:   tgt,
		BatchMode:    true,
		MaxBatchSize: c.maxBatch,
	}
	if err := conn.SendLine(readCtx, req); err != nil {
		return batchResponse{}, err
	}
	var resp batchResponse
	if err := conn.ReadLine(readCtx, &resp); err != nil {
		return batchResponse{}, err
	}
	return resp, nil
}

// fallbackIndividually retries each element of a failed batch on its
// own, one fixed retry per element, so a single bad element never
// blocks the rest (spec: "individual failures ... do not abort the
// remaining requests").
func (c *Client) fallbackIndividually(ctx context.Context, idxs []int, reqs []xlate.TranslationRequest, results []xlate.TranslationResponse) {
	policy := xretry.NewFixedRetry(1)
	for _, idx := range idxs {
		req := reqs[idx]
		resp := c.Translate(ctx, req)
		attempt := 0
		for !resp.Success && resp.Error != nil && policy.ShouldRetry(ctx, attempt, resp.Error) {
			attempt++
			resp = c.Translate(ctx, req)
		}
		results[idx] = resp
	}
}

func errorResponse(requestID string, err *xlate.Error) xlate.TranslationResponse {
	return xlate.TranslationResponse{
		RequestID: requestID,
		Success:   false,
		Error:     err,
	}
}
