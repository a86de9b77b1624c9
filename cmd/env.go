package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-dash/internal/enrich"
	"github.com/sells-group/prospect-dash/internal/events"
	"github.com/sells-group/prospect-dash/internal/queue"
	"github.com/sells-group/prospect-dash/internal/registry"
	"github.com/sells-group/prospect-dash/internal/store"
	"github.com/sells-group/prospect-dash/pkg/anthropic"
	"github.com/sells-group/prospect-dash/pkg/ollama"
)

// serveEnv bundles the wired collaborators for the serve command.
type serveEnv struct {
	Store    store.Store
	Bus      *events.Bus
	Queue    *queue.Queue
	Worker   *queue.Worker
	Registry *registry.Registry

	closers []func()
}

func (e *serveEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initServeEnv builds the store, queue, worker and registry from config.
func initServeEnv(ctx context.Context) (*serveEnv, error) {
	env := &serveEnv{}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env.Store = st
	env.closers = append(env.closers, func() { _ = st.Close() })

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env.Bus = events.NewBus()
	env.Queue = queue.New(
		queue.WithMaxPending(cfg.Queue.MaxPending),
		queue.WithRecentHistory(cfg.Queue.RecentHistory),
		queue.WithBus(env.Bus),
	)

	enricher, err := buildEnricher()
	if err != nil {
		return nil, err
	}
	env.Worker = queue.NewWorker(env.Queue, env.Bus, st, enricher, queue.WorkerConfig{
		JobTimeout: cfg.Queue.JobTimeout(),
		Freshness:  cfg.Enrich.Freshness(),
	})

	if cfg.Registry.SourcesPath != "" {
		reg, err := registry.LoadSources(cfg.Registry.SourcesPath)
		if err != nil {
			// Sources are browse-only metadata; run without them.
			zap.L().Warn("source registry unavailable",
				zap.String("path", cfg.Registry.SourcesPath),
				zap.Error(err),
			)
		} else {
			env.Registry = reg
		}
	}

	return env, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "sqlite":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite store")
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "open postgres store")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildEnricher selects the LLM backend per config and wraps it with the
// rate-limited, retrying enricher.
func buildEnricher() (*enrich.LLMEnricher, error) {
	var backend enrich.Backend
	switch cfg.Enrich.Provider {
	case "", "ollama":
		client := ollama.NewClient(
			ollama.WithBaseURL(cfg.Ollama.BaseURL),
			ollama.WithModel(cfg.Ollama.Model),
			ollama.WithTimeout(time.Duration(cfg.Ollama.TimeoutSecs)*time.Second),
		)
		backend = enrich.NewOllamaBackend(client, cfg.Ollama.Model)
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("anthropic provider selected but anthropic.key is not set")
		}
		backend = enrich.NewAnthropicBackend(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
	default:
		return nil, eris.Errorf("unknown enrich provider %q", cfg.Enrich.Provider)
	}

	return enrich.NewLLMEnricher(backend, enrich.Config{
		StepTimeout:   cfg.Enrich.StepTimeout(),
		RatePerMinute: cfg.Enrich.RatePerMinute,
		MaxRetries:    cfg.Enrich.MaxRetries,
	}), nil
}
