package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/baketa-translate/core/pkg/observability/xlog"
	"github.com/baketa-translate/core/pkg/observability/xmetrics"
	"github.com/baketa-translate/core/pkg/xlate"
)

const componentName = "router"

// Gate is the subset of quota.Gate the router needs: a pre-call guard
// and a post-call reconciler around the cloud backend. Kept as a
// local interface (rather than importing pkg/quota directly) so
// router tests can supply a fake without standing up the full gate.
type Gate interface {
	Check(ctx context.Context, sessionToken string) error
	Reconcile(ctx context.Context, sessionToken string, resp xlate.TranslationResponse)
}

// noopGate is used when a Router is constructed without a cloud leg:
// Check always passes, Reconcile is a no-op. This keeps Router usable
// for local-only or subprocess-only deployments without a nil check
// at every call site.
type noopGate struct{}

func (noopGate) Check(context.Context, string) error { return nil }
func (noopGate) Reconcile(context.Context, string, xlate.TranslationResponse) {}

// Router is the translation core's single entry point: it walks a
// BackendRoute's ordered preference list, consulting the Quota/License
// Gate around the cloud leg and falling back to the next backend on a
// retryable failure (spec §4.11).
type Router struct {
	backends map[xlate.BackendKind]Backend
	gate     Gate
	logger   xlog.Logger
	observer xmetrics.Observer
	route    xlate.BackendRoute
}

// Option configures a Router at construction.
type Option func(*Router)

// WithGate attaches the Quota/License Gate consulted around the cloud
// backend. Without one, cloud dispatches are never pre-checked or
// reconciled — only appropriate for a route that never names
// xlate.BackendCloud.
func WithGate(gate Gate) Option {
	return func(r *Router) { r.gate = gate }
}

// WithLogger attaches the structured logger used for per-attempt
// observability (spec §4.11: "each attempt emits a structured log
// with {backend, elapsed, outcome}").
func WithLogger(logger xlog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithObserver attaches the metrics observer wrapping each translate
// call and each backend attempt.
func WithObserver(observer xmetrics.Observer) Option {
	return func(r *Router) { r.observer = observer }
}

// WithDefaultRoute sets the BackendRoute used by Translate when the
// caller doesn't supply one via TranslateRoute.
func WithDefaultRoute(route xlate.BackendRoute) Option {
	return func(r *Router) { r.route = route }
}

// New builds a Router over a set of backends. Backends absent from the
// map are simply skipped if a route names them — the router degrades
// rather than panicking on a partially wired deployment (e.g. no cloud
// credentials configured, so BackendCloud is never registered).
func New(backends map[xlate.BackendKind]Backend, opts ...Option) *Router {
	r := &Router{
		backends: backends,
		gate:     noopGate{},
		observer: xmetrics.NoopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Translate runs one translate call over the router's default route.
func (r *Router) Translate(ctx context.Context, req xlate.TranslationRequest) xlate.TranslationResponse {
	return r.TranslateRoute(ctx, req, r.route)
}

// attemptOutcome classifies one backend attempt for logging.
type attemptOutcome string

const (
	outcomeSuccess   attemptOutcome = "success"
	outcomeSkipped   attemptOutcome = "skipped"
	outcomeRetryable attemptOutcome = "retryable_failure"
	outcomeTerminal  attemptOutcome = "terminal_failure"
)

// TranslateRoute runs one translate call over an explicit route,
// walking its ordered preference list and applying the retry/fallback
// algorithm in spec §4.11:
//
//  1. pick the preferred backend;
//  2. if it's cloud, consult the gate pre-call — reject advances to
//     the next backend;
//  3. dispatch; a retryable failure advances to the next backend, a
//     non-retryable failure returns immediately, success runs the
//     gate's post-call reconcile and returns;
//  4. if every backend is exhausted, return the last attempt's error
//     annotated with the attempted chain.
func (r *Router) TranslateRoute(ctx context.Context, req xlate.TranslationRequest, route xlate.BackendRoute) xlate.TranslationResponse {
	ctx, span := xmetrics.Start(ctx, r.observer, xmetrics.SpanOptions{
		Component: componentName, Operation: "translate", Kind: xmetrics.KindServer,
	})
	var finalErr error
	defer func() { span.End(xmetrics.Result{Err: finalErr}) }()

	var (
		lastResp   xlate.TranslationResponse
		attempted  []xlate.BackendKind
		sawAttempt bool
	)

	for _, kind := range route.Preference {
		backend, ok := r.backends[kind]
		if !ok {
			continue
		}

		if kind == xlate.BackendCloud {
			if err := r.gate.Check(ctx, req.SessionToken); err != nil {
				r.logAttempt(ctx, kind, 0, outcomeSkipped, err)
				continue
			}
		}

		attempted = append(attempted, kind)
		sawAttempt = true

		start := time.Now()
		resp := backend.Translate(ctx, req)
		elapsed := time.Since(start)
		lastResp = resp

		if kind == xlate.BackendCloud {
			r.gate.Reconcile(ctx, req.SessionToken, resp)
		}

		if resp.Success {
			r.logAttempt(ctx, kind, elapsed, outcomeSuccess, nil)
			return resp
		}

		if resp.Error != nil && resp.Error.Retryable {
			r.logAttempt(ctx, kind, elapsed, outcomeRetryable, resp.Error)
			continue
		}

		r.logAttempt(ctx, kind, elapsed, outcomeTerminal, resp.Error)
		finalErr = resp.Error
		return resp
	}

	if !sawAttempt {
		err := xlate.NewInternalError(fmt.Errorf("no backend in route was available: %v", route.Preference))
		finalErr = err
		return xlate.TranslationResponse{RequestID: req.RequestID, Success: false, Error: err}
	}

	finalErr = lastResp.Error
	if lastResp.Error != nil {
		lastResp.Error = annotateChain(lastResp.Error, attempted)
	}
	return lastResp
}

// annotateChain wraps err's message with the attempted backend chain
// (spec §4.11: "return the error from the last attempt annotated with
// the attempted chain"), preserving its Kind and Retryable flag.
func annotateChain(err *xlate.Error, attempted []xlate.BackendKind) *xlate.Error {
	names := make([]string, len(attempted))
	for i, k := range attempted {
		names[i] = string(k)
	}
	annotated := *err
	annotated.Message = fmt.Sprintf("%s (attempted: %s)", err.Message, strings.Join(names, " -> "))
	return &annotated
}

func (r *Router) logAttempt(ctx context.Context, kind xlate.BackendKind, elapsed time.Duration, outcome attemptOutcome, err error) {
	if r.logger == nil {
		return
	}
	attrs := []slog.Attr{
		xlog.Component(componentName),
		xlog.Operation("translate_attempt"),
		slog.String("backend", string(kind)),
		xlog.Duration(elapsed),
		slog.String("outcome", string(outcome)),
	}
	if err != nil {
		attrs = append(attrs, xlog.Err(err))
	}
	if outcome == outcomeTerminal {
		r.logger.Warn(ctx, "translate attempt failed, not retrying", attrs...)
		return
	}
	r.logger.Info(ctx, "translate attempt", attrs...)
}
