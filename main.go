package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"OffloadEngine/config"
	"OffloadEngine/executor"
	"OffloadEngine/log"
	"OffloadEngine/metrics"
	"OffloadEngine/offload"
	"OffloadEngine/pool"
	"OffloadEngine/server"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := log.Init(cfg.Log); err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := setupTracing()
		if err != nil {
			return err
		}
		defer shutdownTracing()
	}

	var poolMetrics *metrics.PoolMetrics
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		poolMetrics = metrics.NewPoolMetrics(registry)

		metricsServer := metrics.NewServer(registry)
		go func() {
			log.L().Info("Serving metrics", zap.String("listenAddress", cfg.Metrics.ListenAddress))
			if err := metricsServer.ListenAndServe(cfg.Metrics.ListenAddress); err != nil {
				log.L().Error("Metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			_ = metricsServer.Shutdown()
		}()
	}

	registry := executor.NewRegistry()
	offload.RegisterDefaultServices(registry)

	servicePool, err := offload.New(pool.Config{
		MinWorkers:  cfg.Pool.MinWorkers,
		MaxWorkers:  cfg.Pool.MaxWorkers,
		IdleTimeout: cfg.Pool.IdleTimeout,
	}, registry, offload.WithLogger(log.L()),
		offload.WithMetrics(poolMetrics), offload.WithDevelopment(cfg.Log.Development))
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("cannot listen on %s: %w", cfg.Server.ListenAddress, err)
	}

	return server.NewServer(cfg.Server, servicePool).Serve(ctx, listener)
}

func setupTracing() (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)

	return func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			log.L().Warn("Cannot flush traces", zap.Error(err))
		}
	}, nil
}
