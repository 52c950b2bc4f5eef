package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/config"
	"github.com/ent0n29/echo/internal/httpapi"
	"github.com/ent0n29/echo/internal/llm"
	"github.com/ent0n29/echo/internal/logging"
	"github.com/ent0n29/echo/internal/memory"
	"github.com/ent0n29/echo/internal/nlp"
	"github.com/ent0n29/echo/internal/observability"
	"github.com/ent0n29/echo/internal/persona"
	"github.com/ent0n29/echo/internal/reliability"
	"github.com/ent0n29/echo/internal/session"
	"github.com/ent0n29/echo/internal/voice"
)

// Status is the component report computed at build time and served by /readyz.
type Status struct {
	Checks []httpapi.Check
}

func (s *Status) add(c httpapi.Check) { s.Checks = append(s.Checks, c) }

type VoiceInfo struct {
	Provider string
	Detail   string
}

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Memory   *memory.Store
	Pipeline *voice.Pipeline
	// Engine is nil when the model client could not be built.
	Engine  *nlp.Engine
	Persona persona.Persona
	Metrics *observability.Metrics
	Voice   VoiceInfo
	Status  Status

	// Cleanup should be called on shutdown to release external resources (journal connections).
	Cleanup func() error
}

// Build wires the service. Optional components (journal, model client, voice)
// degrade into Status entries instead of failing the build.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	var status Status

	p, err := persona.Parse(cfg.Persona)
	if err != nil {
		return nil, fmt.Errorf("persona init failed: %w", err)
	}

	journal, err := memory.NewJournal(ctx, cfg.MemoryJournal, cfg.DatabaseURL, cfg.RedisURL)
	switch {
	case err != nil:
		logger.Warn().Err(err).Str("journal", cfg.MemoryJournal).Msg("memory journal unavailable, continuing in-process only")
		status.add(httpapi.Check{
			ID:     "journal",
			Status: httpapi.CheckWarn,
			Label:  "Memory journal",
			Detail: err.Error(),
			Fix:    "Check DATABASE_URL / REDIS_URL or set MEMORY_JOURNAL=none.",
		})
		journal = nil
	case journal == nil:
		status.add(httpapi.Check{ID: "journal", Status: httpapi.CheckOK, Label: "Memory journal", Detail: "disabled"})
	default:
		status.add(httpapi.Check{ID: "journal", Status: httpapi.CheckOK, Label: "Memory journal", Detail: cfg.MemoryJournal})
	}

	storeOpts := []memory.Option{
		memory.WithCapacity(cfg.MemoryCapacity),
		memory.WithEviction(cfg.MemoryEviction),
		memory.WithLogger(logging.Component(logger, "memory")),
		memory.WithObserver(metrics.SetMemoryTurns),
	}
	if len(cfg.MemoryEncryptionKey) > 0 {
		storeOpts = append(storeOpts, memory.WithKey(cfg.MemoryEncryptionKey))
	}
	if journal != nil {
		storeOpts = append(storeOpts, memory.WithJournal(journal))
	}
	store, err := memory.NewStore(storeOpts...)
	if err != nil {
		if journal != nil {
			_ = journal.Close()
		}
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	memoryCheck := httpapi.Check{ID: "memory", Status: httpapi.CheckOK, Label: "Session memory", Detail: "ephemeral key"}
	if len(cfg.MemoryEncryptionKey) > 0 {
		memoryCheck.Detail = "configured key"
		// Turns sealed under a random per-process key could never be reopened.
		n, err := store.Restore(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("memory restore failed")
			memoryCheck.Status = httpapi.CheckWarn
			memoryCheck.Detail = "restore failed: " + err.Error()
		} else if n > 0 {
			logger.Info().Int("turns", n).Msg("memory restored from journal")
			memoryCheck.Detail = fmt.Sprintf("configured key, restored %d turns", n)
		}
	}
	status.add(memoryCheck)

	var engine *nlp.Engine
	client, err := llm.New(llm.Config{
		APIKey:         cfg.LLMAPIKey,
		URL:            cfg.LLMAPIURL,
		Model:          cfg.LLMModel,
		MaxAttempts:    cfg.LLMMaxAttempts,
		AttemptTimeout: cfg.LLMAttemptTimeout,
		Backoff: reliability.BackoffPolicy{
			Default:   cfg.LLMRetryBackoff,
			RateLimit: cfg.LLMRateLimitWait,
		},
		IntentCacheSize: cfg.LLMIntentCacheSize,
	}, llm.WithLogger(logging.Component(logger, "llm")), llm.WithMetrics(metrics))
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		logger.Warn().Msg("no model API key configured, analysis will return unavailable results")
		status.add(httpapi.Check{
			ID:     "model",
			Status: httpapi.CheckWarn,
			Label:  "Language model",
			Detail: "no API key",
			Fix:    "Set GROQ_API_KEY (or LLM_API_KEY).",
		})
	case err != nil:
		_ = store.Close()
		return nil, fmt.Errorf("model client init failed: %w", err)
	default:
		engine = nlp.NewEngine(client,
			nlp.WithPersona(p),
			nlp.WithLogger(logging.Component(logger, "nlp")),
			nlp.WithMetrics(metrics),
		)
		status.add(httpapi.Check{ID: "model", Status: httpapi.CheckOK, Label: "Language model", Detail: client.Model()})
	}

	setup, err := resolveVoiceProviders(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("voice providers unavailable, continuing text-only")
		status.add(httpapi.Check{
			ID:     "voice",
			Status: httpapi.CheckWarn,
			Label:  "Voice",
			Detail: err.Error(),
			Fix:    "Set VOICE_PROVIDER=auto or provide STT credentials.",
		})
		setup = voiceSetup{provider: "none", detail: "unavailable"}
	} else {
		status.add(httpapi.Check{ID: "voice", Status: httpapi.CheckOK, Label: "Voice", Detail: setup.detail})
	}

	// A typed nil *nlp.Engine would defeat the pipeline's nil-analyzer check.
	var analyzer voice.Analyzer
	if engine != nil {
		analyzer = engine
	}

	pipeline := voice.NewPipeline(voice.PipelineConfig{
		Transcriber: setup.stt,
		Synthesizer: setup.tts,
		Analyzer:    analyzer,
		Memory:      store,
		Logger:      logging.Component(logger, "pipeline"),
		Metrics:     metrics,
	})

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetEndHook(func(s session.Session, reason session.EndReason) {
		store.ClearMemory(context.Background(), s.ID)
		if reason == session.EndedIdle {
			metrics.ObserveSessionEvent("expired")
			metrics.SetActiveSessions(sessions.ActiveCount())
		}
		logger.Debug().Str("session_id", s.ID).Str("reason", string(reason)).Msg("session ended, memory cleared")
	})

	checks := status.Checks
	api := httpapi.New(httpapi.Deps{
		Sessions:       sessions,
		Memory:         store,
		Analyzer:       analyzer,
		Turns:          pipeline,
		Metrics:        metrics,
		Logger:         logging.Component(logger, "http"),
		Checks:         func() []httpapi.Check { return append([]httpapi.Check(nil), checks...) },
		Persona:        p.Name(),
		AllowAnyOrigin: cfg.AllowAnyOrigin,
	})

	cleanup := func() error {
		if err := store.Close(); err != nil {
			return fmt.Errorf("memory journal close: %w", err)
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Memory:   store,
		Pipeline: pipeline,
		Engine:   engine,
		Persona:  p,
		Metrics:  metrics,
		Voice:    VoiceInfo{Provider: setup.provider, Detail: setup.detail},
		Status:   status,
		Cleanup:  cleanup,
	}, nil
}
