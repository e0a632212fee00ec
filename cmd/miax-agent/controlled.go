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
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/miax-network/miax-agent/internal/config"
	"github.com/miax-network/miax-agent/internal/didcomm"
	"github.com/miax-network/miax-agent/internal/didrepo"
	"github.com/miax-network/miax-agent/internal/httpapi"
	"github.com/miax-network/miax-agent/internal/keyring"
	"github.com/miax-network/miax-agent/internal/keystore"
	"github.com/miax-network/miax-agent/internal/logger"
	"github.com/miax-network/miax-agent/internal/runtime/storage"
	"github.com/miax-network/miax-agent/internal/studio"
	"github.com/miax-network/miax-agent/internal/unixutil"
	"github.com/miax-network/miax-agent/internal/vc"
	"github.com/miax-network/miax-agent/internal/version"
)

var controlledCmd = &cobra.Command{
	Use:   "controlled",
	Short: "Run the worker agent as spawned by a supervisor",
	Long: `controlled runs the worker: it serves the HTTP surface
(create_identifier, identifiers/:did, and the UDS-only version endpoint)
and, if studio polling is configured, pulls and dispatches DIDComm
operations in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runControlled(cmd.Context())
	},
}

// shutdownGrace bounds how long the worker waits for in-flight HTTP
// requests to finish before forcing the listener closed.
const shutdownGrace = 5 * time.Second

func runControlled(ctx context.Context) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path, err := keystore.DefaultPath()
	if err != nil {
		return fmt.Errorf("resolve key store path: %w", err)
	}
	store := keystore.NewStore(path)

	kr, err := store.EnsureKeyRing()
	if err != nil {
		return fmt.Errorf("ensure key ring: %w", err)
	}
	defer kr.Zero()

	ownDID, err := store.Did()
	if err != nil {
		return fmt.Errorf("read own did: %w", err)
	}

	repo := didrepo.New(cfg.DIDHTTPEndpoint)
	svc := httpapi.NewService(store, repo)
	router := httpapi.NewRouter(svc, version.Version)

	listener, err := workerListener(ctx, cfg)
	if err != nil {
		return fmt.Errorf("acquire worker listener: %w", err)
	}

	server := &http.Server{Handler: router}
	serveErrs := make(chan error, 1)
	go func() {
		serveErrs <- server.Serve(listener)
	}()
	logger.Info("worker listening", logger.String("uds", cfg.WorkerUDSPath))

	runtimeStore, err := storage.Open()
	if err != nil {
		logger.ErrorMsg("worker could not open runtime storage, update dispatch disabled", logger.Error(err))
	} else {
		defer runtimeStore.Close()
	}

	didDoc := didcomm.NewService(repo, cfg.DIDAttachmentLink)
	stopStudio := startStudioWorker(ctx, cfg, ownDID, kr, didDoc, runtimeStore)
	defer stopStudio()

	select {
	case <-ctx.Done():
		logger.Info("worker shutting down")
	case err := <-serveErrs:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve http: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// workerListener binds the worker's own listening socket, or — when
// systemd-activated and handed off by a supervisor — receives the
// already-bound listening fd over the meta UDS (§4.10 handOffListeningSocket,
// §4.13 SCM_RIGHTS).
func workerListener(ctx context.Context, cfg config.Config) (net.Listener, error) {
	if os.Getenv("LISTEN_FDS") == "" || os.Getenv("LISTEN_PID") == "" {
		if err := unixutil.RemoveFileIfExists(cfg.WorkerUDSPath); err != nil {
			return nil, err
		}
		return net.Listen("unix", cfg.WorkerUDSPath)
	}

	if err := unixutil.RemoveFileIfExists(cfg.MetaUDSPath); err != nil {
		return nil, err
	}
	metaListener, err := net.Listen("unix", cfg.MetaUDSPath)
	if err != nil {
		return nil, fmt.Errorf("listen meta uds: %w", err)
	}
	defer metaListener.Close()

	conn, err := metaListener.Accept()
	if err != nil {
		return nil, fmt.Errorf("accept meta uds: %w", err)
	}
	defer conn.Close()

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("meta uds connection is not unix")
	}

	fd, err := unixutil.RecvFd(unixConn)
	if err != nil {
		return nil, fmt.Errorf("receive listening fd: %w", err)
	}

	f := os.NewFile(uintptr(fd), "inherited-listener")
	listener, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("wrap inherited fd: %w", err)
	}
	_ = f.Close()
	return listener, nil
}

// startStudioWorker builds and runs the polling worker in the background
// when studio polling is configured, returning a no-op stop function
// otherwise. A successfully dispatched update-binary operation flips the
// shared runtime state to Update so the supervisor's next HandleState
// tick drives the backup/download/relaunch sequence (§4.9's shared
// memory is the only cross-process channel available to the worker,
// which otherwise owns only its listening socket).
func startStudioWorker(ctx context.Context, cfg config.Config, ownDID string, kr *keyring.KeyRing, didComm *didcomm.Service, runtimeStore *storage.Storage) func() {
	if cfg.StudioHTTPEndpoint == "" || cfg.StudioProjectDID == "" {
		return func() {}
	}

	worker := studio.New(studio.Config{
		BaseURL:     cfg.StudioHTTPEndpoint,
		BearerToken: cfg.StudioBearerToken,
		Interval:    cfg.StudioPollInterval,
		OwnDID:      ownDID,
		ProjectDID:  cfg.StudioProjectDID,
		OwnKeyring:  kr,
		DIDComm:     didComm,
		Handle:      studioOperationHandler(runtimeStore),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := worker.Run(ctx); err != nil && err != context.Canceled {
			logger.ErrorMsg("studio worker stopped", logger.Error(err))
		}
	}()
	return func() { <-done }
}

// studioOperationHandler dispatches the two operation kinds spec.md §2
// names. refresh-network-config has no further state to mutate beyond
// logging in this module's scope (no network-config component is
// otherwise specified); update-binary requests the state-machine
// transition the controller executes.
func studioOperationHandler(runtimeStore *storage.Storage) studio.OperationHandler {
	return func(ctx context.Context, credential vc.VC, op studio.Operation) error {
		switch op.Kind {
		case studio.OperationUpdateBinary:
			if runtimeStore == nil {
				return fmt.Errorf("update-binary requested but runtime storage is unavailable")
			}
			return runtimeStore.ApplyWithLock(func(info *storage.RuntimeInfo) error {
				info.State = storage.StateUpdate
				return nil
			})
		case studio.OperationRefreshNetworkConfig:
			var params map[string]json.RawMessage
			_ = json.Unmarshal(op.Params, &params)
			logger.Info("refresh-network-config received", logger.Any("params", params))
			return nil
		default:
			return fmt.Errorf("unknown studio operation kind %q", op.Kind)
		}
	}
}
