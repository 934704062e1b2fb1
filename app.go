package chatrelay

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Desarso/chatrelay/models"
	"github.com/Desarso/chatrelay/models/anthropic"
	"github.com/Desarso/chatrelay/models/gemini"
	"github.com/Desarso/chatrelay/models/openrouter"
	"github.com/Desarso/chatrelay/server"
	"github.com/Desarso/chatrelay/sessions"
	"github.com/Desarso/chatrelay/stores"
)

// App holds the wired components of a running relay.
type App struct {
	Config   *Config
	Store    stores.ConversationStore
	Traces   *stores.GORMTraceStore
	Upstream models.Upstream
	Relay    *sessions.TurnRelay
	Server   *server.Server
	Pruner   *stores.Pruner // nil when pruning is disabled
	Logger   *log.Logger
}

// NewUpstream builds the configured provider behind a circuit breaker.
func NewUpstream(ctx context.Context, cfg *Config) (models.Upstream, error) {
	var inner models.Upstream
	switch cfg.Provider {
	case "anthropic":
		m := anthropic.New(cfg.AnthropicAPIKey)
		if cfg.AnthropicBaseURL != "" {
			m.BaseURL = cfg.AnthropicBaseURL
		}
		m.DefaultModel = cfg.Model
		m.MaxTokens = cfg.MaxTokens
		inner = m
	case "gemini":
		m, err := gemini.New(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		m.Model = cfg.Model
		m.MaxTokens = cfg.MaxTokens
		inner = m
	case "openrouter":
		m := openrouter.New(cfg.OpenRouterAPIKey)
		if cfg.OpenRouterBaseURL != "" {
			m.BaseURL = cfg.OpenRouterBaseURL
		}
		m.Model = cfg.Model
		m.MaxTokens = cfg.MaxTokens
		inner = m
	default:
		return nil, fmt.Errorf("unsupported upstream provider: %s", cfg.Provider)
	}

	return models.NewBreakerUpstream(cfg.Provider, inner, models.BreakerConfig{
		MaxFailures: cfg.BreakerMaxFailures,
		Timeout:     cfg.BreakerTimeout,
	}), nil
}

// NewApp opens the store and builds every component. Call Close when done.
func NewApp(ctx context.Context, cfg *Config) (*App, error) {
	logger := log.New(os.Stdout, "[APP] ", log.LstdFlags)

	store, err := stores.NewStore(cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	logger.Printf("✓ Database connected (%s)", cfg.StoreType)

	traces, err := stores.NewGORMTraceStore(store.DB())
	if err != nil {
		store.Close()
		return nil, err
	}

	upstream, err := NewUpstream(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	relay := sessions.NewTurnRelay(store, upstream, cfg.Model, cfg.MaxTokens)
	relay.Traces = traces
	relay.AnnounceMessageID = cfg.AnnounceMessageID

	app := &App{
		Config:   cfg,
		Store:    store,
		Traces:   traces,
		Upstream: upstream,
		Relay:    relay,
		Server: server.New(server.Options{
			Store:       store,
			Traces:      traces,
			Relay:       relay,
			CORSOrigin:  cfg.CORSOrigin,
			Development: cfg.Development,
		}),
		Logger: logger,
	}

	if cfg.PruneAfter > 0 {
		app.Pruner = stores.NewPruner(store, cfg.PruneSchedule, cfg.PruneAfter)
		if err := app.Pruner.Start(); err != nil {
			store.Close()
			return nil, err
		}
	}

	return app, nil
}

// Close stops the pruner and closes the store.
func (a *App) Close() error {
	if a.Pruner != nil {
		a.Pruner.Stop()
	}
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	a.Logger.Printf("✓ Database disconnected")
	return nil
}
