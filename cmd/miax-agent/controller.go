// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/miax-network/miax-agent/internal/config"
	"github.com/miax-network/miax-agent/internal/logger"
	"github.com/miax-network/miax-agent/internal/metrics"
	"github.com/miax-network/miax-agent/internal/runtime/manager"
	"github.com/miax-network/miax-agent/internal/runtime/process"
	"github.com/miax-network/miax-agent/internal/runtime/resource"
	"github.com/miax-network/miax-agent/internal/runtime/storage"
	"github.com/miax-network/miax-agent/internal/version"
)

var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Run the supervisor process (Unix only)",
	Long: `controller is the long-lived supervisor: it owns the shared-memory
runtime state, spawns the worker agent, and drives the Idle/Update/Rollback
state machine, backing up and restoring the on-disk resource tree around
in-place updates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runController(cmd.Context())
	},
}

// stateHandleInterval is how often the supervisor re-evaluates the
// Idle/Update/Rollback state machine between broadcast wakeups.
const stateHandleInterval = 2 * time.Second

func runController(ctx context.Context) error {
	cfg := config.Load()

	store, err := storage.Open()
	if err != nil {
		return fmt.Errorf("open runtime storage: %w", err)
	}
	defer store.Close()

	procs := process.NewManager()
	resources := resource.NewManager(filepath.Join(os.TempDir(), "miax-agent"))
	rm := manager.New(store, procs, cfg.WorkerUDSPath, cfg.MetaUDSPath, version.Version)

	metricsSrv := startMetricsServer(cfg)
	defer metricsSrv.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("controller starting", logger.String("worker_uds", cfg.WorkerUDSPath))

	states := rm.Subscribe()
	ticker := time.NewTicker(stateHandleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("controller shutting down")
			if err := rm.CleanupAll(); err != nil {
				logger.ErrorMsg("cleanup on shutdown failed", logger.Error(err))
				return err
			}
			return nil
		case <-states:
			if err := manager.HandleState(ctx, rm, resources); err != nil {
				logger.ErrorMsg("handle state failed", logger.Error(err))
			}
		case <-ticker.C:
			if err := manager.HandleState(ctx, rm, resources); err != nil {
				logger.ErrorMsg("handle state failed", logger.Error(err))
			}
		}
	}
}

// startMetricsServer serves /metrics on a loopback-only listener so the
// controller's state-transition and process counters are scrapeable
// without exposing them on the agent's own UDS surface.
func startMetricsServer(cfg config.Config) *http.Server {
	srv := &http.Server{
		Addr:    "127.0.0.1:9090",
		Handler: metrics.Handler(),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorMsg("metrics server stopped", logger.Error(err))
		}
	}()
	return srv
}
