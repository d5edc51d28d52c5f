package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/starter/core/config"
	"github.com/dmitrymomot/starter/core/logger"
	"github.com/dmitrymomot/starter/core/response"
	"github.com/dmitrymomot/starter/core/router"
	"github.com/dmitrymomot/starter/core/server"
	"github.com/dmitrymomot/starter/integration/database/redis"
	"github.com/dmitrymomot/starter/internal/challenge"
	"github.com/dmitrymomot/starter/middleware"
	"github.com/dmitrymomot/starter/pkg/clientip"
	"github.com/dmitrymomot/starter/pkg/ratelimiter"
)

var ErrMissingChallengeSecret = errors.New("CHALLENGE_SECRET is required in production")

// App owns the admission control stack and the HTTP server.
type App struct {
	config Config
	logger *slog.Logger
	router router.Router[*router.Context]
	server *server.Server

	redis      *goredis.Client
	store      ratelimiter.Store
	memStore   *ratelimiter.MemoryStore
	memReplay  *challenge.MemoryReplayStore
	limiter    *ratelimiter.Limiter
	challenges *challenge.Service
	checks     []func(context.Context) error
	proxies    []netip.Prefix
}

type AppOption func(*App) error

// NewApp loads the configuration (unless WithConfig is given), connects the
// optional Redis backend and wires the routes.
func NewApp(ctx context.Context, opts ...AppOption) (*App, error) {
	app := &App{}

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.config == (Config{}) {
		if err := config.Load(&app.config); err != nil {
			return nil, err
		}
	}

	if app.logger == nil {
		app.logger = newLogger(app.config)
	}

	proxies, err := clientip.ParsePrefixes(app.config.RateLimitTrustedProxies)
	if err != nil {
		return nil, err
	}
	app.proxies = proxies

	if err := app.initStores(ctx); err != nil {
		return nil, err
	}
	if err := app.initLimiter(); err != nil {
		return nil, err
	}
	if err := app.initChallenges(); err != nil {
		return nil, err
	}

	app.router = router.New[*router.Context](
		router.WithErrorHandler[*router.Context](response.JSONErrorHandler[*router.Context]),
		router.WithLogger[*router.Context](app.logger),
	)
	app.routes()

	if app.server == nil {
		s, err := server.NewFromConfig(app.config.Server, server.WithLogger(app.logger))
		if err != nil {
			return nil, err
		}
		app.server = s
	}

	return app, nil
}

// WithConfig skips loading the configuration from the environment.
func WithConfig(cfg Config) AppOption {
	return func(app *App) error {
		app.config = cfg
		return nil
	}
}

func WithLogger(logger *slog.Logger) AppOption {
	return func(app *App) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		app.logger = logger
		return nil
	}
}

func WithServer(server *server.Server) AppOption {
	return func(app *App) error {
		if server == nil {
			return errors.New("server cannot be nil")
		}
		app.server = server
		return nil
	}
}

// Handler returns the root HTTP handler.
func (app *App) Handler() http.Handler {
	return app.router
}

// Addr returns the address the server listens on once it is running.
func (app *App) Addr() string {
	return app.server.Addr()
}

// Run serves HTTP and runs the in-memory sweepers until ctx is done.
func (app *App) Run(ctx context.Context) error {
	defer app.close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(app.server.Run(ctx, app.router))
	// A non-positive interval disables sweeping.
	if app.config.RateLimitCleanupInterval > 0 {
		if app.memStore != nil {
			g.Go(app.memStore.Run(ctx))
		}
		if app.memReplay != nil {
			g.Go(app.memReplay.Run(ctx, app.config.RateLimitCleanupInterval))
		}
	}

	app.logger.InfoContext(ctx, "application started",
		logger.Component("app"),
		slog.String("name", app.config.AppName),
		slog.String("env", app.config.Env),
		slog.Bool("redis", app.redis != nil),
	)

	return g.Wait()
}

func (app *App) close() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("failed to close redis client", logger.Component("app"), logger.Error(err))
		}
	}
}

func newLogger(cfg Config) *slog.Logger {
	opts := []logger.Option{
		logger.WithLevel(logger.ParseLevel(cfg.LogLevel)),
		logger.WithAttr(slog.String("service", cfg.AppName), slog.String("env", cfg.Env)),
		logger.WithContextExtractors(middleware.RequestIDExtractor),
	}
	if cfg.LogFormat == "json" {
		opts = append(opts, logger.WithJSONFormatter())
	}
	return logger.New(opts...)
}

// initStores picks Redis when REDIS_URL is set, process memory otherwise.
func (app *App) initStores(ctx context.Context) error {
	if app.config.Redis.Enabled() {
		client, err := redis.Connect(ctx, app.config.Redis)
		if err != nil {
			return err
		}
		app.redis = client

		store, err := ratelimiter.NewRedisStore(client)
		if err != nil {
			return err
		}
		app.store = store
		app.checks = append(app.checks, redis.Healthcheck(client))
		return nil
	}

	app.memStore = ratelimiter.NewMemoryStore(
		ratelimiter.WithCleanupInterval(app.config.RateLimitCleanupInterval),
		ratelimiter.WithMaxKeys(app.config.RateLimitMaxKeys),
		ratelimiter.WithMemoryStoreLogger(app.logger),
	)
	app.store = app.memStore
	app.checks = append(app.checks, app.memStore.Healthcheck)
	return nil
}

func (app *App) initLimiter() error {
	policy := ratelimiter.DefaultPolicy()
	if app.config.RateLimitPolicyFile != "" {
		p, err := ratelimiter.LoadPolicyFile(app.config.RateLimitPolicyFile)
		if err != nil {
			return err
		}
		policy = p
	}

	rules, err := policy.Rules()
	if err != nil {
		return err
	}

	app.limiter, err = ratelimiter.New(app.store, rules, ratelimiter.WithLogger(app.logger))
	return err
}

func (app *App) initChallenges() error {
	secret := []byte(app.config.ChallengeSecret)
	if len(secret) == 0 {
		if app.config.IsProduction() {
			return ErrMissingChallengeSecret
		}
		// Outside production a per-process key is fine; challenges die with the process.
		secret = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, secret); err != nil {
			return fmt.Errorf("generate challenge secret: %w", err)
		}
		app.logger.Warn("CHALLENGE_SECRET not set, using an ephemeral key", logger.Component("app"))
	}

	var replay challenge.ReplayStore
	if app.redis != nil {
		replay = challenge.NewRedisReplayStore(app.redis, "")
	} else {
		app.memReplay = challenge.NewMemoryReplayStore()
		replay = app.memReplay
	}

	svc, err := challenge.NewService(secret, replay,
		challenge.WithDifficulty(app.config.ChallengeDifficulty),
		challenge.WithTTL(app.config.ChallengeTTL),
		challenge.WithLogger(app.logger),
	)
	if err != nil {
		return err
	}
	app.challenges = svc
	return nil
}
