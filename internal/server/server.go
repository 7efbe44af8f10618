package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	"github.com/Nzyazin/ratecache/internal/core/fetcher"
	"github.com/Nzyazin/ratecache/internal/core/handler"
	"github.com/Nzyazin/ratecache/internal/core/logger"
	appmw "github.com/Nzyazin/ratecache/internal/core/middleware"
	"github.com/Nzyazin/ratecache/internal/core/models"
	"github.com/Nzyazin/ratecache/internal/core/registry"
	"github.com/Nzyazin/ratecache/internal/core/repository"
	"github.com/Nzyazin/ratecache/internal/core/repository/postgres"
	redisrepo "github.com/Nzyazin/ratecache/internal/core/repository/redis"
	"github.com/Nzyazin/ratecache/internal/core/store"
	"github.com/Nzyazin/ratecache/internal/core/usecase"
	"github.com/Nzyazin/ratecache/internal/metrics"
	"github.com/Nzyazin/ratecache/pkg/config"
	"github.com/Nzyazin/ratecache/pkg/postgresdb"
	"github.com/Nzyazin/ratecache/pkg/redisdb"
)

type Server struct {
	router       *mux.Router
	log          logger.Logger
	httpServer   *http.Server
	coordinator  *usecase.RateCoordinator
	ratesHandler *handler.RatesHandler
	registry     *prometheus.Registry
	db           *postgresdb.Database
	redis        *redisdb.Client
}

// NewServer connects the configured rate repository and builds the server.
func NewServer(ctx context.Context, cfg *config.Config, log logger.Logger) (*Server, error) {
	var (
		repo  repository.RateRepository
		db    *postgresdb.Database
		redis *redisdb.Client
	)

	switch cfg.Store {
	case config.StoreRedis:
		client, err := redisdb.NewRedisClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		redis = client
		repo = redisrepo.NewRedisRateRepo(client.Client, cfg.Redis.KeyPrefix, log)
	default:
		database, err := postgresdb.NewPostgresDB(ctx, cfg.DB, log)
		if err != nil {
			return nil, err
		}
		db = database
		pgRepo := postgres.NewPostgresRateRepo(database.DB, log)
		if cfg.DB.Migrate {
			if err := pgRepo.Migrate(ctx); err != nil {
				database.Close()
				return nil, err
			}
		}
		repo = pgRepo
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server, err := New(ctx, cfg, repo, reg, log)
	if err != nil {
		if db != nil {
			db.Close()
		}
		if redis != nil {
			redis.Close()
		}
		return nil, err
	}
	server.db = db
	server.redis = redis

	return server, nil
}

// New wires the rate cache on top of repo. Metrics are registered on reg and
// served from it.
func New(ctx context.Context, cfg *config.Config, repo repository.RateRepository, reg *prometheus.Registry, log logger.Logger) (*Server, error) {
	base := models.CurrencyCode(cfg.Rates.Base)

	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	rateStore, err := store.New(ctx, repo, base, log)
	if err != nil {
		return nil, err
	}

	var rateFetcher fetcher.Fetcher = fetcher.NewHTTPFetcher(
		cfg.Rates.URL,
		base,
		&http.Client{Timeout: cfg.Rates.FetchTimeout},
		log,
	)
	rateFetcher = fetcher.NewInstrumentingFetcher(rateFetcher, recorder)
	rateFetcher = fetcher.NewLoggingFetcher(rateFetcher, log)

	coordinator := usecase.NewRateCoordinator(rateStore, rateFetcher, usecase.Policy{
		FreshFor:     cfg.Rates.FreshFor,
		FetchTimeout: cfg.Rates.FetchTimeout,
		RetryInitial: cfg.Rates.RetryInitial,
		RetryMax:     cfg.Rates.RetryMax,
	}, log, usecase.WithRecorder(recorder))

	conversionUsecase := usecase.NewConversionUsecase(registry.Default(), coordinator, log)

	server := &Server{
		log:          log,
		router:       mux.NewRouter(),
		coordinator:  coordinator,
		ratesHandler: handler.NewRatesHandler(conversionUsecase, log),
		registry:     reg,
	}
	server.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.router,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	server.router.Use(loggingMiddleware(server.log))

	mw := middleware.New(middleware.Config{
		Recorder: metricsprom.NewRecorder(metricsprom.Config{Registry: reg}),
	})

	server.router.Use(func(next http.Handler) http.Handler {
		return std.Handler("", mw, next)
	})

	server.RegisterRoutes()

	return server, nil
}

func (s *Server) RegisterRoutes() {
	s.router.Use(
		appmw.RequestID(),
		appmw.RatesState(s.coordinator),
		appmw.Recovery(s.log),
	)
	s.ratesHandler.RegisterRoutes(s.router)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts background refreshing and serves HTTP until Shutdown. After
// Shutdown it returns http.ErrServerClosed without listening.
func (s *Server) Run() error {
	s.coordinator.Start()
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	var shutdownErr error

	go func() {
		err := s.httpServer.Shutdown(ctx)
		if err != nil {
			s.log.Error("failed to shutdown HTTP server", logger.ErrorField("error", err))
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("HTTP server shutdown error: %w", err))
		}

		s.coordinator.Close()

		if s.db != nil {
			err := s.db.Close()
			if err != nil {
				s.log.Error("failed to close database connection", logger.ErrorField("error", err))
				shutdownErr = errors.Join(shutdownErr, fmt.Errorf("database shutdown error: %w", err))
			}
		}

		if s.redis != nil {
			err := s.redis.Close()
			if err != nil {
				s.log.Error("failed to close redis connection", logger.ErrorField("error", err))
				shutdownErr = errors.Join(shutdownErr, fmt.Errorf("redis shutdown error: %w", err))
			}
		}

		close(done)
	}()

	select {
	case <-done:
		return shutdownErr
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func loggingMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Info("HTTP request",
				logger.StringField("method", r.Method),
				logger.StringField("path", r.URL.Path),
				logger.StringField("remote_addr", r.RemoteAddr),
				logger.StringField("user_agent", r.UserAgent()),
			)
			next.ServeHTTP(w, r)
		})
	}
}
