package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/strangerchat-server/internal/auth"
	"github.com/vovakirdan/strangerchat-server/internal/bus/redisbus"
	"github.com/vovakirdan/strangerchat-server/internal/config"
	"github.com/vovakirdan/strangerchat-server/internal/core"
	"github.com/vovakirdan/strangerchat-server/internal/metrics"
	"github.com/vovakirdan/strangerchat-server/internal/store"
	"github.com/vovakirdan/strangerchat-server/internal/store/postgres"
	"github.com/vovakirdan/strangerchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/strangerchat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	bus             core.Bus
	reaper          *core.Reaper
	reapInterval    time.Duration
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.JWTSecret == config.DefaultJWTSecret {
		logger.Warn().Msg("using the default jwt_secret, set STRANGERCHAT_JWT_SECRET in production")
	}

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("driver", cfg.DatabaseDriver).Msg("database initialized")

	bus, err := OpenBus(ctx, cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	logger.Info().Str("broadcast", cfg.Broadcast).Msg("broadcast bus ready")

	m := metrics.New()
	registry, err := core.NewRegistry(ctx, bus, logger, m)
	if err != nil {
		_ = bus.Close()
		_ = st.Close()
		return nil, fmt.Errorf("init registry: %w", err)
	}

	hub := core.NewHub(st, registry, core.Options{
		ClaimAttempts: cfg.ClaimAttempts,
		AdminEcho:     cfg.AdminEcho,
	}, logger, m)

	authService := NewAuthService(cfg)
	server := transporthttp.NewServer(hub, authService, m, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		bus:             bus,
		reaper:          core.NewReaper(st, registry, cfg.WaitingTTL, logger, m),
		reapInterval:    cfg.ReapInterval,
		log:             logger,
	}, nil
}

// OpenStore opens the configured room store.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		st, err := postgres.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return st, nil
	default:
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return st, nil
	}
}

// OpenBus opens the configured broadcast bus.
func OpenBus(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (core.Bus, error) {
	if cfg.Broadcast != config.BroadcastRedis {
		return core.NewLocalBus(), nil
	}
	bus, err := redisbus.New(ctx, redisbus.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init redis bus: %w", err)
	}
	return bus, nil
}

// NewAuthService builds the token service from configuration.
func NewAuthService(cfg *config.Config) *auth.Service {
	operators := make([]auth.Operator, 0, len(cfg.Operators))
	for _, op := range cfg.Operators {
		operators = append(operators, auth.Operator{Username: op.Username, PasswordHash: op.PasswordHash})
	}
	return auth.NewService(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}, operators)
}

// Run starts the HTTP server and the reaper and blocks until context
// cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.reaper.Run(gctx, a.reapInterval)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes the bus, the database and other resources.
func (a *App) cleanup() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close bus")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
