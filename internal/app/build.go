package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ent0n29/proctor/internal/auth"
	"github.com/ent0n29/proctor/internal/config"
	"github.com/ent0n29/proctor/internal/detection"
	"github.com/ent0n29/proctor/internal/httpapi"
	"github.com/ent0n29/proctor/internal/identity"
	"github.com/ent0n29/proctor/internal/observability"
	"github.com/ent0n29/proctor/internal/seat"
	"github.com/ent0n29/proctor/internal/session"
	"github.com/ent0n29/proctor/internal/store"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Store    store.Store
	Seats    *seat.Registry
	Attempts *auth.Attempts
	Metrics  *observability.Metrics
	// CaptureDetail describes the camera backend in use.
	CaptureDetail string

	// Cleanup signs out every seat, finalizing active sessions, then releases
	// the store. Call it once on shutdown.
	Cleanup func(ctx context.Context) error
}

// SessionConfig maps runtime settings onto a lifecycle configuration.
func SessionConfig(cfg config.Config) session.Config {
	c := session.DefaultConfig()
	c.DetectionInterval = cfg.DetectionInterval
	c.ElapsedInterval = cfg.ElapsedInterval
	c.MovementAdvisoryThreshold = cfg.MovementAdvisoryThreshold
	c.MovementAdvisoryTTL = cfg.MovementAdvisoryTTL
	c.DeviceAdvisoryTTL = cfg.DeviceAdvisoryTTL
	return c
}

// DetectionSource builds the simulated detection source from settings.
func DetectionSource(cfg config.Config) *detection.SimulatedSource {
	return detection.NewSimulatedSource(detection.SimulatedConfig{
		HeadMovementProbability: cfg.HeadMovementProbability,
		DeviceProbability:       cfg.DeviceProbability,
		Seed:                    cfg.DetectionSeed,
	})
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace, nil)

	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}
	if cfg.SeedDemoData {
		if err := store.SeedDemo(ctx, st); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}

	devices, err := resolveCaptureDevice(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	source := DetectionSource(cfg)
	lifecycleCfg := SessionConfig(cfg)
	claims := identity.NewClaims()
	newLifecycle := func() *session.Lifecycle {
		return session.NewLifecycle(lifecycleCfg, session.Deps{
			Store:   st,
			Source:  source,
			Device:  devices.device,
			Logger:  logger.With("component", "session"),
			Metrics: metrics,
			Claims:  claims,
		})
	}

	seats := seat.NewRegistry(newLifecycle, cfg.SeatInactivityTimeout)
	seats.SetExpireHook(func(s *seat.Seat) {
		metrics.SessionEvents.WithLabelValues("seat_expired").Inc()
		logger.Info("seat expired", "issued_at", s.IssuedAt)
	})

	authLogger := logger.With("component", "auth")
	attempts := auth.NewAttempts(auth.Options{
		Finder:           st,
		Matcher:          auth.NewSimulatedMatcher(cfg.MatchRate, cfg.DetectionSeed),
		Prompts:          auth.NewPromptPool(auth.LoginPrompts, cfg.DetectionSeed),
		DenialResetDelay: cfg.DenialResetDelay,
		Logger:           authLogger,
		Metrics:          metrics,
	}, cfg.AttemptIdleTimeout)
	registrar := auth.NewRegistrar(st, auth.NewPromptPool(auth.RegistrationPrompts, cfg.DetectionSeed), authLogger)

	janitorCtx, stopJanitors := context.WithCancel(context.Background())
	seats.StartJanitor(janitorCtx, cfg.JanitorInterval)
	attempts.StartJanitor(janitorCtx, cfg.JanitorInterval)

	api := httpapi.New(cfg, httpapi.Deps{
		Store:     st,
		Registrar: registrar,
		Attempts:  attempts,
		Seats:     seats,
		Metrics:   metrics,
		Logger:    logger.With("component", "http"),
		Ready:     readiness(st),
	})

	cleanup := func(ctx context.Context) error {
		stopJanitors()
		api.Close()
		var errs []error
		if err := seats.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := st.Close(); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:        cfg,
		API:           api,
		Store:         st,
		Seats:         seats,
		Attempts:      attempts,
		Metrics:       metrics,
		CaptureDetail: devices.detail,
		Cleanup:       cleanup,
	}, nil
}

func readiness(st store.Store) func(context.Context) error {
	pinger, ok := st.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return pinger.Ping
}
