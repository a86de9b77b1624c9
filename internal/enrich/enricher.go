// Package enrich drives LLM enrichment of prospects, one field group at a
// time. Each group has its own prompt and its own response parser; the
// enricher wires them to a completion backend behind rate limiting, retry
// and a circuit breaker.
package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-dash/internal/model"
	"github.com/sells-group/prospect-dash/internal/resilience"
)

// Backend produces one completion. Implementations wrap a concrete LLM
// provider (Ollama locally, Anthropic hosted).
type Backend interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

// Config bounds the enricher.
type Config struct {
	// StepTimeout caps a single completion call, retries included.
	// Default 45s.
	StepTimeout time.Duration
	// RatePerMinute throttles completion calls. Zero disables throttling.
	RatePerMinute int
	// MaxRetries is the total attempt count per call. Default 3.
	MaxRetries int
}

// LLMEnricher implements the worker's Enricher against a Backend.
type LLMEnricher struct {
	backend Backend
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	timeout time.Duration
	log     *zap.Logger
}

// NewLLMEnricher builds an enricher over the given backend.
func NewLLMEnricher(backend Backend, cfg Config) *LLMEnricher {
	timeout := cfg.StepTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), 1)
	}

	retryCfg := resilience.RetryWithAttempts(cfg.MaxRetries)

	log := zap.L().With(
		zap.String("component", "enrich"),
		zap.String("backend", backend.Name()),
	)
	retryCfg.OnRetry = func(attempt int, err error) {
		log.Warn("retrying completion", zap.Int("attempt", attempt), zap.Error(err))
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		OnStateChange: func(from, to resilience.CircuitState) {
			log.Warn("circuit state change",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	return &LLMEnricher{
		backend: backend,
		limiter: limiter,
		breaker: breaker,
		retry:   retryCfg,
		timeout: timeout,
		log:     log,
	}
}

// Enrich runs one field group's prompt for a prospect and returns the patch
// to persist plus the parsed fields for progress events.
func (e *LLMEnricher) Enrich(ctx context.Context, p *model.Prospect, group model.FieldGroup) (*model.EnrichmentPatch, map[string]any, error) {
	system, prompt, err := buildPrompt(group, p)
	if err != nil {
		return nil, nil, err
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, nil, eris.Wrap(err, "enrich: rate limit wait")
		}
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var raw string
	err = e.breaker.Execute(stepCtx, func(ctx context.Context) error {
		return resilience.Do(ctx, e.retry, func(ctx context.Context) error {
			var callErr error
			raw, callErr = e.backend.Complete(ctx, system, prompt)
			return callErr
		})
	})
	if err != nil {
		return nil, nil, eris.Wrapf(err, "enrich: %s completion", group)
	}

	patch, fields, err := parseResponse(group, raw)
	if err != nil {
		e.log.Warn("unparseable completion",
			zap.String("group", string(group)),
			zap.String("prospect_id", p.ID),
			zap.Error(err),
		)
		return nil, nil, err
	}
	return patch, fields, nil
}
