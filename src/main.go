// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Mahadi1000/taskmanager-server/src/config"
	"github.com/Mahadi1000/taskmanager-server/src/logging"
	"github.com/Mahadi1000/taskmanager-server/src/metrics"
	"github.com/Mahadi1000/taskmanager-server/src/service"
	"github.com/Mahadi1000/taskmanager-server/src/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "taskmaster: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Setup Graceful Shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := logging.SetupOTelSDK(ctx, logging.OTelOptions{
		ExportTraces:  cfg.OTelStdout,
		ExportMetrics: cfg.OTelStdout,
	})
	if err != nil {
		return fmt.Errorf("failed to setup OTel SDK: %w", err)
	}
	defer func() {
		// Ensure OTel flushes spans and logs before exiting
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "OTel shutdown error: %v\n", err)
		}
	}()
	logConfigWarnings(cfg)

	// Fail fast when the store is unreachable
	st, err := openStore(ctx, cfg)
	if err != nil {
		logging.Log(fmt.Sprintf("Failed to connect to %s: %v", cfg.StoreDriver, err), slog.LevelError)
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logging.Log(fmt.Sprintf("Error closing store: %v", err), slog.LevelError)
		}
	}()
	logging.Log(fmt.Sprintf("Successfully connected to %s!", cfg.StoreDriver), slog.LevelInfo)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tasks, err := service.NewTaskService(st, cfg.StoreTimeout)
	if err != nil {
		return err
	}
	api := NewAPIServer(tasks, metrics.NewMetrics(reg))

	return StartAPIServer(ctx, cfg.Port, api.Routes(cfg.AllowedOrigins), cfg.ShutdownTimeout)
}

func logConfigWarnings(cfg config.Config) {
	for _, w := range cfg.Warnings {
		logging.Log(w, slog.LevelWarn)
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return store.OpenPostgres(ctx, cfg.DatabaseURI, cfg.CollectionName)
	default:
		return store.ConnectMongo(ctx, cfg.DatabaseURI, cfg.DatabaseName, cfg.CollectionName)
	}
}
