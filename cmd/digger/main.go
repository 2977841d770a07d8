package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pysugar/creator-insights/internal/accounts"
	"github.com/pysugar/creator-insights/internal/api/handlers"
	"github.com/pysugar/creator-insights/internal/api/middleware"
	"github.com/pysugar/creator-insights/internal/auth/google"
	"github.com/pysugar/creator-insights/internal/auth/token"
	"github.com/pysugar/creator-insights/internal/config"
	"github.com/pysugar/creator-insights/internal/db"
	"github.com/pysugar/creator-insights/internal/digger"
	"github.com/pysugar/creator-insights/internal/insights"
	"github.com/pysugar/creator-insights/internal/lock"
	"github.com/pysugar/creator-insights/internal/logging"
	"github.com/pysugar/creator-insights/internal/platform"
	"github.com/pysugar/creator-insights/internal/platform/instagram"
	"github.com/pysugar/creator-insights/internal/platform/youtube"
	"github.com/pysugar/creator-insights/internal/reports/catalog"
	"github.com/pysugar/creator-insights/internal/upstream"
	"github.com/pysugar/creator-insights/internal/version"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", os.Getenv("DIGGER_CONFIG"), "path to the YAML config file")
	once := flag.Bool("once", false, "run one insights pass over every account and exit")
	flag.Parse()

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			logrus.WithError(err).Error("invalid configuration")
		}
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("failed to set up logging")
	}
	logger.WithFields(logrus.Fields{
		"version": version.Version,
		"commit":  version.Commit,
	}).Info("starting creator insights digger")

	database, err := db.InitDB(cfg.Database.Path, cfg.Database.Verbose)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}

	cat, err := catalog.Load(cfg.Reports.CatalogPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load report catalog")
	}

	clk := clock.New()
	httpClient := upstream.NewClient(
		upstream.WithTimeout(cfg.Digger.RequestTimeout),
		upstream.WithRetries(cfg.Digger.MaxRetries, 0),
	)
	repo := accounts.NewRepository(database)
	store := insights.NewStore(database, cat, clk, cfg.RangeMode())
	tokens := token.NewManager(repo, clk)

	var (
		diggers    []digger.Digger
		exchangers = map[platform.Platform]handlers.CodeExchanger{}
	)

	if def, ok := cat.Platform(platform.YouTube); ok {
		yt := youtube.NewClient(httpClient, youtube.Endpoints{
			Data:      cfg.Platforms.YouTube.DataURL,
			Analytics: cfg.Platforms.YouTube.AnalyticsURL,
		})
		diggers = append(diggers, youtube.NewDigger(yt, def, clk, cfg.Digger.ReportWindowDays))

		oauthCfg, err := google.OAuthConfig(cfg.Secrets, cfg.Platforms.YouTube.RedirectURL)
		if err != nil {
			logger.WithError(err).Warn("YouTube OAuth client not configured, tokens will not be refreshed")
		} else {
			auth := youtube.NewAuth(oauthCfg, httpClient.HTTPClient())
			tokens.Register(platform.YouTube, auth)
			exchangers[platform.YouTube] = auth
		}
	}

	if def, ok := cat.Platform(platform.Instagram); ok {
		ig := instagram.NewClient(httpClient, instagram.Endpoints{
			Graph:     cfg.Platforms.Instagram.GraphURL,
			Instagram: cfg.Platforms.Instagram.InstagramURL,
		})
		auth := instagram.NewAuth(ig, cfg.Secrets, clk)
		tokens.Register(platform.Instagram, auth)
		diggers = append(diggers, instagram.NewDigger(ig, auth, def, clk, cfg.Digger.ReportWindowDays))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := digger.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		logger.WithError(err).Fatal("failed to register metrics")
	}

	locker, closeLocker := newLocker(cfg.Redis, logger)
	defer closeLocker()

	orch := digger.New(digger.Config{
		Repository: repo,
		Store:      store,
		Tokens:     tokens,
		Locker:     locker,
		Clock:      clk,
		Logger:     logger,
		Metrics:    metrics,
	}, diggers...)

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Digger.RunTimeout)
		ctx = logging.WithRequestID(ctx, logging.NewRequestID())
		summary, err := orch.RunAll(ctx)
		cancel()
		entry := logger.WithFields(logrus.Fields{
			"accounts":  summary.Accounts,
			"failed":    summary.FailedAccounts,
			"documents": summary.Documents,
			"duration":  summary.Duration.String(),
		})
		if err != nil {
			entry.WithError(err).Fatal("insights run failed")
		}
		entry.Info("insights run finished")
		return
	}

	scheduler, err := digger.NewScheduler(orch, tokens, digger.ScheduleConfig{
		Insights:   cfg.Digger.Schedule,
		RunTimeout: cfg.Digger.RunTimeout,
		TokenSweep: cfg.Digger.TokenRefreshSchedule,
		TokenLead:  cfg.Digger.TokenRefreshLead,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to schedule jobs")
	}
	scheduler.Start()

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(logger))

	optionalAdminAuth := adminAuth(cfg.Server.AdminPassword)
	r.Get("/healthz", healthHandler(database))
	r.With(optionalAdminAuth).Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(database))
		handlers.Register(r, handlers.Deps{
			DB:         database,
			Accounts:   repo,
			Digger:     orch,
			Insights:   insights.NewService(repo, store, clk),
			Exchangers: exchangers,
			MaskAPIKey: cfg.Server.MaskAPIKey,
		})
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
		logger.Warn("scheduled jobs still running at shutdown")
	}
	logger.Info("stopped")
}

// newLocker returns a Redis locker when an address is configured and a
// process local one otherwise.
func newLocker(cfg config.RedisConfig, logger *logrus.Logger) (lock.Locker, func()) {
	if cfg.Addr == "" {
		return lock.NewLocal(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("redis unreachable, handle locks will retry on use")
	}
	logger.WithField("addr", cfg.Addr).Info("using redis handle locks")
	return lock.NewRedis(client, cfg.Prefix, cfg.LockTTL, logger), func() { _ = client.Close() }
}

func adminAuth(password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if password == "" {
				next.ServeHTTP(w, r)
				return
			}
			_, pass, ok := r.BasicAuth()
			if !ok || pass != password {
				w.Header().Set("WWW-Authenticate", `Basic realm="Digger Admin"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func healthHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if err := database.WithContext(r.Context()).Exec("SELECT 1").Error; err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"version": version.Version,
			"commit":  version.Commit,
		})
	}
}
