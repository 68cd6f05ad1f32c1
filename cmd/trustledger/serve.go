package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/totegamma/trustledger/internal/infra/providers"
	"github.com/totegamma/trustledger/internal/platform/logger"
	"github.com/totegamma/trustledger/internal/platform/tracing"
	"github.com/totegamma/trustledger/internal/present/rest"
	"github.com/totegamma/trustledger/internal/usecase"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(serviceName, conf.Server.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if conf.Server.EnableTrace {
		shutdown, err := tracing.Setup(ctx, serviceName, conf.Server.TraceEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("tracer shutdown failed")
			}
		}()
	}

	economy, err := conf.Economy.ToDomain()
	if err != nil {
		return err
	}

	store, err := providers.NewStore(conf.Server)
	if err != nil {
		return err
	}
	cache := providers.NewEntityCache(conf.Server, conf.Engine.CacheTTL)
	signalService := providers.NewSignalService(conf.Server, log)

	opts := []usecase.VouchOption{
		usecase.WithCache(cache),
		usecase.WithRetryPolicy(conf.Engine.RetryPolicy()),
		usecase.WithLogger(log),
	}
	if signalService != nil {
		opts = append(opts, usecase.WithPublisher(signalService))
	}

	vouchUC := usecase.NewVouchUsecase(store, economy, opts...)
	entityUC := usecase.NewEntityUsecase(store, cache, log)
	auditUC := usecase.NewAuditUsecase(store, economy)

	handler := rest.NewHandler(vouchUC, entityUC, auditUC, store, signalService, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware(serviceName))
	e.Use(requestLogger(log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	handler.RegisterRoutes(e)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().
		Str("addr", conf.Server.ListenAddr).
		Str("storage", conf.Server.StorageDriver).
		Bool("memcached", conf.Server.MemcachedAddr != "").
		Bool("redis", signalService != nil).
		Msg("starting server")

	if err := e.Start(conf.Server.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil {
				event = log.Warn().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
