package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/valora-txauth/internal/adapter/cache"
	"github.com/smallbiznis/valora-txauth/internal/bootstrap"
	"github.com/smallbiznis/valora-txauth/internal/config"
	httptransport "github.com/smallbiznis/valora-txauth/internal/http"
	"github.com/smallbiznis/valora-txauth/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-txauth/internal/http/middleware"
	"github.com/smallbiznis/valora-txauth/internal/jwt"
	"github.com/smallbiznis/valora-txauth/internal/metrics"
	apimiddleware "github.com/smallbiznis/valora-txauth/internal/middleware"
	"github.com/smallbiznis/valora-txauth/internal/otp"
	"github.com/smallbiznis/valora-txauth/internal/ratelimit"
	"github.com/smallbiznis/valora-txauth/internal/repository"
	"github.com/smallbiznis/valora-txauth/internal/revocation"
	"github.com/smallbiznis/valora-txauth/internal/server"
	"github.com/smallbiznis/valora-txauth/internal/service"
	"github.com/smallbiznis/valora-txauth/internal/session"
	"github.com/smallbiznis/valora-txauth/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newUserRepository,
			newBankingRepository,
			newSecurityEventRepository,
			newRedisClient,
			newStateStore,
			newRegistry,
			newMetrics,
			newTokenGenerator,
			newSessionManager,
			newLimiter,
			newOTPAuthority,
			newRevocationList,
			newRateLimiter,
			service.NewAuthService,
			service.NewTransferService,
			service.NewAdminService,
			handler.NewAuthHandler,
			handler.NewTransferHandler,
			handler.NewAdminHandler,
			newHandlers,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureDemoUser, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newBankingRepository(pool *pgxpool.Pool) repository.BankingRepository {
	return repository.NewPostgresBankingRepo(pool)
}

func newSecurityEventRepository(pool *pgxpool.Pool) repository.SecurityEventRepository {
	return repository.NewPostgresSecurityEventRepo(pool)
}

// newRedisClient returns nil when REDIS_ADDR is empty.
func newRedisClient(lc fx.Lifecycle, cfg config.Config) redis.UniversalClient {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.RedisTimeout,
		ReadTimeout:  cfg.RedisTimeout,
		WriteTimeout: cfg.RedisTimeout,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// newStateStore boots without Redis: the control plane then runs degraded
// instead of refusing to start, and recovers when Redis comes back.
func newStateStore(client redis.UniversalClient, cfg config.Config, logger *zap.Logger) cacheadapter.Optional {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return cacheadapter.Connect(ctx, client, cacheadapter.RedisConfig{
		Addr:    cfg.RedisAddr,
		Timeout: cfg.RedisTimeout,
	}, logger)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry) metrics.Recorder {
	return metrics.NewCollector(reg)
}

func newTokenGenerator(cfg config.Config) *jwt.Generator {
	return jwt.NewGenerator([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

func newSessionManager(store cacheadapter.Optional, cfg config.Config, recorder metrics.Recorder, logger *zap.Logger) *session.Manager {
	return session.NewManager(store, cfg.SessionTTL, session.WithMetrics(recorder), session.WithLogger(logger))
}

func newLimiter(store cacheadapter.Optional, recorder metrics.Recorder, logger *zap.Logger) *ratelimit.Limiter {
	return ratelimit.NewLimiter(store, recorder, logger)
}

func newOTPAuthority(store cacheadapter.Optional, cfg config.Config, recorder metrics.Recorder, logger *zap.Logger) *otp.Authority {
	return otp.NewAuthority(store,
		otp.Config{TTL: cfg.OTPTTL, MaxAttempts: cfg.OTPMaxAttempts},
		otp.WithMetrics(recorder),
		otp.WithLogger(logger),
	)
}

func newRevocationList(store cacheadapter.Optional, generator *jwt.Generator, recorder metrics.Recorder, logger *zap.Logger) *revocation.List {
	return revocation.NewList(store, generator, recorder, logger)
}

func newRateLimiter(cfg config.Config, recorder metrics.Recorder) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM, recorder)
}

func newHandlers(auth *handler.AuthHandler, transfer *handler.TransferHandler, admin *handler.AdminHandler, reg *prometheus.Registry) httptransport.Handlers {
	return httptransport.Handlers{
		Auth:     auth,
		Transfer: transfer,
		Admin:    admin,
		Metrics:  metrics.Handler(reg),
	}
}

func newAuthMiddleware(authService *service.AuthService) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{AuthService: authService}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, logger *zap.Logger) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
