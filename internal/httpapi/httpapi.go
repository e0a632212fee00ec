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

// Package httpapi serves the agent's public HTTP surface: identifier
// creation and resolution, and the worker's own version query.
package httpapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/miax-network/miax-agent/internal/didrepo"
	"github.com/miax-network/miax-agent/internal/keystore"
	"github.com/miax-network/miax-agent/internal/miaxdid/sidetree"
)

// Service wires the key store and the Sidetree DID repository together to
// back the create/resolve identifier operations (spec.md §4.5, §6).
type Service struct {
	store *keystore.Store
	repo  *didrepo.Repository
}

// NewService builds a Service over store and repo.
func NewService(store *keystore.Store, repo *didrepo.Repository) *Service {
	return &Service{store: store, repo: repo}
}

// ErrNoDidDocument is returned by CreateIdentifier when the Sidetree node
// accepts the create operation but its response carries an empty document.
var ErrNoDidDocument = errors.New("httpapi: sidetree response carried no did document")

// CreateIdentifier loads the agent's key ring (generating one on first
// use), anchors a fresh DID via the Sidetree repository, and persists the
// assigned DID back into the key store.
func (s *Service) CreateIdentifier(ctx context.Context) (*didrepo.DidResponse, error) {
	kr, err := s.store.EnsureKeyRing()
	if err != nil {
		return nil, fmt.Errorf("load key ring: %w", err)
	}

	doc := sidetree.NewPatch(kr.Sign.Public(), kr.Encrypt.Public())
	payload, err := sidetree.BuildCreatePayload(doc, kr.Update.Public(), kr.Recovery.Public())
	if err != nil {
		return nil, fmt.Errorf("build create payload: %w", err)
	}

	resp, err := s.repo.CreateIdentifier(ctx, payload)
	if err != nil {
		return nil, err
	}
	if resp.DidDocument.ID == "" {
		return nil, ErrNoDidDocument
	}

	if err := s.store.WriteKeyRing(resp.DidDocument.ID, kr); err != nil {
		return nil, fmt.Errorf("persist key ring: %w", err)
	}
	return resp, nil
}

// FindIdentifier resolves did, returning (nil, nil) when did is not
// registered.
func (s *Service) FindIdentifier(ctx context.Context, did string) (*didrepo.DidResponse, error) {
	return s.repo.FindIdentifier(ctx, did)
}
