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

// Package config loads the environment variables spec.md §6 names (plus
// the handful the controller/worker split needs beyond what spec.md
// enumerates) into a single immutable value threaded through cmd/miax-agent
// rather than read ad hoc from os.Getenv across packages.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// defaultDidcommBodyLimit is spec.md §6's "default 3 MiB".
const defaultDidcommBodyLimit = 3 * 1024 * 1024

// Config is every environment-derived setting the two processes need.
type Config struct {
	// DIDHTTPEndpoint is the Sidetree node create/resolve base URL.
	DIDHTTPEndpoint string
	// DIDAttachmentLink, if set, is embedded as the DIDComm attachment's
	// optional links entry (spec.md §4.7 step 3).
	DIDAttachmentLink string
	// DIDCommHTTPBodySizeLimit bounds a single DIDComm HTTP body, in bytes.
	DIDCommHTTPBodySizeLimit int64

	// StudioHTTPEndpoint is the base URL the polling worker lists/acks
	// messages against (spec.md §6 "Studio upstream").
	StudioHTTPEndpoint string
	// StudioBearerToken authenticates studio requests.
	StudioBearerToken string
	// StudioProjectDID addresses outgoing studio polls.
	StudioProjectDID string
	// StudioPollInterval is the ticker period driving the polling worker.
	StudioPollInterval time.Duration

	// WorkerUDSPath is the worker's own listening Unix-domain socket
	// (serves every HTTP route spec.md §6 names, including the
	// UDS-only GET /internal/version/get).
	WorkerUDSPath string
	// MetaUDSPath is the short-lived socket used for SCM_RIGHTS fd
	// handoff from the supervisor to a freshly spawned worker.
	MetaUDSPath string
}

// Load reads an optional .env file (ignored if absent, matching
// godotenv.Load's own ENOENT-is-fine contract) and then every environment
// variable, applying spec.md §6's defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DIDHTTPEndpoint:          getEnv("MIAX_DID_HTTP_ENDPOINT", "https://did.miacross.io"),
		DIDAttachmentLink:        os.Getenv("MIAX_DID_ATTACHMENT_LINK"),
		DIDCommHTTPBodySizeLimit: getEnvInt64("MIAX_DIDCOMM_HTTP_BODY_SIZE_LIMIT", defaultDidcommBodyLimit),

		StudioHTTPEndpoint: getEnv("MIAX_STUDIO_HTTP_ENDPOINT", "https://studio.miacross.io"),
		StudioBearerToken:  os.Getenv("MIAX_STUDIO_BEARER_TOKEN"),
		StudioProjectDID:   os.Getenv("MIAX_STUDIO_PROJECT_DID"),
		StudioPollInterval: getEnvDuration("MIAX_STUDIO_POLL_INTERVAL", 10*time.Second),

		WorkerUDSPath: getEnv("MIAX_WORKER_UDS", "/tmp/miax-agent.sock"),
		MetaUDSPath:   getEnv("MIAX_META_UDS", "/tmp/miax-agent-meta.sock"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
