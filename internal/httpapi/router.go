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

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/miax-network/miax-agent/internal/logger"
)

// versionResponse is the wire shape of GET /internal/version/get.
type versionResponse struct {
	Version string `json:"version"`
}

// Router dispatches the three HTTP operations spec.md §6 names.
type Router struct {
	svc     *Service
	version string
}

// NewRouter builds the http.Handler serving create_identifier,
// identifiers/:did, and the worker's own version (spec.md §6). version is
// the running worker's own semver string.
func NewRouter(svc *Service, version string) http.Handler {
	rt := &Router{svc: svc, version: version}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /miax/create_identifier", rt.createIdentifier)
	mux.HandleFunc("GET /miax/identifiers/{did}", rt.findIdentifier)
	mux.HandleFunc("GET /internal/version/get", rt.getVersion)
	return mux
}

func (rt *Router) createIdentifier(w http.ResponseWriter, r *http.Request) {
	resp, err := rt.svc.CreateIdentifier(r.Context())
	if err != nil {
		sendError(w, err)
		return
	}
	sendJSONResponse(w, http.StatusOK, resp)
}

func (rt *Router) findIdentifier(w http.ResponseWriter, r *http.Request) {
	did := r.PathValue("did")
	resp, err := rt.svc.FindIdentifier(r.Context(), did)
	if err != nil {
		sendError(w, err, "did", did)
		return
	}
	if resp == nil {
		sendJSONResponse(w, http.StatusOK, nil)
		return
	}
	sendJSONResponse(w, http.StatusOK, resp)
}

func (rt *Router) getVersion(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, http.StatusOK, versionResponse{Version: rt.version})
}

// sendError writes the 500/5004 response spec.md §6 mandates for any
// internal failure on these two endpoints, regardless of cause (upstream
// Sidetree failure, key store I/O, payload construction). Any key/value
// pairs in details are attached to the structured error for the log line
// and the JSON body alike.
func sendError(w http.ResponseWriter, err error, details ...string) {
	merr := logger.NewMiaxError(logger.ErrCodeInternal, http.StatusInternalServerError, err.Error(), err)
	for i := 0; i+1 < len(details); i += 2 {
		merr.WithDetails(details[i], details[i+1])
	}
	logger.ErrorMsg("httpapi request failed", logger.Error(merr), logger.String("code", merr.Code))
	sendJSONResponse(w, merr.HTTP, merr)
}

// sendJSONResponse writes data as the JSON response body.
func sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.ErrorMsg("encode response failed", logger.Error(err))
	}
}
