package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/rbacadmin/internal/app"
	"github.com/odyssey-erp/rbacadmin/internal/audit"
	"github.com/odyssey-erp/rbacadmin/internal/auth"
	"github.com/odyssey-erp/rbacadmin/internal/gatekeeper"
	"github.com/odyssey-erp/rbacadmin/internal/observability"
	"github.com/odyssey-erp/rbacadmin/internal/pages"
	"github.com/odyssey-erp/rbacadmin/internal/permissions"
	"github.com/odyssey-erp/rbacadmin/internal/platform/cache"
	"github.com/odyssey-erp/rbacadmin/internal/platform/db"
	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/profile"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
	"github.com/odyssey-erp/rbacadmin/internal/roles"
	"github.com/odyssey-erp/rbacadmin/internal/session"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
	"github.com/odyssey-erp/rbacadmin/internal/users"
	"github.com/odyssey-erp/rbacadmin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("rbacadmin exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	sqlDB, err := db.OpenSQL(cfg.PGDSN)
	if err != nil {
		return err
	}
	defer closeQuietly(logger, "sql close", sqlDB)

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, sqlDB); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer closeQuietly(logger, "redis close", redisClient)

	metrics := observability.NewMetrics()

	sink, closers, err := auditSinks(cfg, sqlDB)
	if err != nil {
		return err
	}
	for _, c := range closers {
		defer closeQuietly(logger, "audit sink close", c)
	}
	dispatcher := audit.NewDispatcher(sink, cfg.AuditQueueSize, logger, metrics)

	store := principal.NewRepository(pool)
	builder := rbac.NewBuilder(store)
	codec := session.NewCodec(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL, builder,
		session.WithRevoker(session.NewRedisRevoker(redisClient)))
	csrf := shared.NewCSRFManager(cfg.CSRFSecret)
	cookie := session.CookieConfig{Name: cfg.SessionCookie, Secure: cfg.IsProduction()}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	queue := jobs.NewClient(redisOpts)
	defer closeQuietly(logger, "asynq client close", queue)
	inspector := asynq.NewInspector(redisOpts)
	defer closeQuietly(logger, "inspector close", inspector)

	authService := auth.NewService(store, auth.NewTokenStore(pool), jobs.NewAsynqMailer(queue), logger, auth.Config{
		BaseURL:  cfg.AppBaseURL,
		TokenTTL: cfg.VerificationTokenTTL,
	})
	var provider auth.FederatedProvider
	if cfg.OIDCEnabled() {
		oidcProvider, err := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			Name:         cfg.OIDCProviderName,
			IssuerURL:    cfg.OIDCIssuerURL,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
		})
		if err != nil {
			return err
		}
		provider = oidcProvider
		logger.Info("federated login enabled", slog.String("provider", cfg.OIDCProviderName))
	}

	guard := rbac.NewGuard(builder, session.Subject, logger, metrics)
	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		CSRFManager: csrf,
		Metrics:     metrics,
		Gatekeeper: gatekeeper.New(codec, dispatcher, logger, metrics, gatekeeper.Config{
			Cookie:            cookie,
			ProtectedPrefixes: cfg.ProtectedPrefixes,
			LoginPath:         cfg.LoginPath,
		}),
		AuthHandler: auth.NewHandler(logger, authService, codec, csrf, dispatcher, metrics, provider, auth.HandlerConfig{
			Cookie:            cookie,
			AttemptsPerMinute: cfg.LoginAttemptsPerMin,
		}),
		UsersHandler:       users.NewHandler(logger, users.NewService(store), guard, dispatcher),
		RolesHandler:       roles.NewHandler(logger, roles.NewService(store), guard, dispatcher),
		PermissionsHandler: permissions.NewHandler(logger, permissions.NewService(store), guard, dispatcher),
		PagesHandler: pages.NewHandler(logger,
			pages.NewService(store, principal.SlugRegistry{principal.SlugKindPage: store}), guard, dispatcher),
		ProfileHandler: profile.NewHandler(logger, profile.NewService(store), builder, session.Subject, dispatcher),
		JobHandler:     jobs.NewHandler(inspector, logger),
		RequestLog:     !cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		dispatcher.Close()
		return err
	})
	return g.Wait()
}

// auditSinks builds the fan-out sink: the database table always, plus the
// JSON log file and the broker queue when configured.
func auditSinks(cfg *app.Config, sqlDB *sql.DB) (audit.Sink, []io.Closer, error) {
	dbSink, err := audit.NewDBSink(sqlDB)
	if err != nil {
		return nil, nil, err
	}
	sinks := audit.MultiSink{dbSink}
	var closers []io.Closer
	if cfg.AuditLogFile != "" {
		logSink, err := audit.OpenLogFile(cfg.AuditLogFile)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, logSink)
		closers = append(closers, logSink)
	}
	if cfg.AuditAMQPURL != "" {
		amqpSink, err := audit.DialAMQP(cfg.AuditAMQPURL, cfg.AuditAMQPQueue)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, nil, err
		}
		sinks = append(sinks, amqpSink)
		closers = append(closers, amqpSink)
	}
	return sinks, closers, nil
}

func closeQuietly(logger *slog.Logger, msg string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn(msg, slog.Any("error", err))
	}
}
