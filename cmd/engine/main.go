package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"perpctl/internal/modules/config"
	"perpctl/internal/modules/exchange"
	"perpctl/internal/modules/health"
	"perpctl/internal/modules/orchestrator"
	"perpctl/internal/modules/postgres"
	"perpctl/internal/modules/telegram"

	"perpctl/pkg/logger"
	"perpctl/pkg/tracing"
)

func initLogger() {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build zap logger: %v", err)
	}
	logger.InfoLogger = zapLogger
	logger.FatalLogger = zapLogger
	logger.SetServiceName("perpctl")
	tracing.SetServiceName("perpctl")
}

func initTracing() func() {
	host := os.Getenv("JAEGER_HOST")
	if host == "" {
		host = "localhost"
	}
	_, closer, err := tracing.InitTracer(tracing.Config{Host: host, Port: 6831})
	if err != nil {
		logger.Error("tracing: InitTracer failed, continuing without a tracer: %v", err)
		return func() {}
	}
	return closer
}

func main() {
	initLogger()
	closeTracer := initTracing()
	defer closeTracer()

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		exchange.Module(),
		telegram.Module(),
		health.Module(),
		orchestrator.Module(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		logger.Fatal("engine: fx.App failed to start: %v", err)
	}

	<-ctx.Done()
	logger.Info("engine: shutdown signal received, stopping")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.Error("engine: fx.App failed to stop cleanly: %v", err)
	}
}
