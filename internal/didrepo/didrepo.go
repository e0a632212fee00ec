// Package didrepo wraps an HTTP client that POSTs Sidetree create
// operations and GETs resolutions against a Sidetree node.
package didrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/miax-network/miax-agent/internal/metrics"
	"github.com/miax-network/miax-agent/internal/miaxdid/sidetree"
)

// DidResponse wraps the document returned by a successful create or
// resolve.
type DidResponse struct {
	DidDocument sidetree.DidDocument `json:"did_document"`
}

// ErrSidetreeRequestFailed is returned for any non-2xx/404 response from
// the Sidetree node.
type ErrSidetreeRequestFailed struct {
	Status int
	Body   string
}

func (e *ErrSidetreeRequestFailed) Error() string {
	return fmt.Sprintf("didrepo: sidetree request failed: %d: %s", e.Status, e.Body)
}

// Repository is the HTTP client wrapper for Sidetree create/resolve.
type Repository struct {
	endpoint   string
	httpClient *http.Client
}

// New builds a Repository targeting endpoint, with a 30s default client
// timeout (spec.md §5 "implementations SHOULD apply a reasonable default").
func New(endpoint string) *Repository {
	return &Repository{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewWithClient builds a Repository with a caller-supplied HTTP client.
func NewWithClient(endpoint string, httpClient *http.Client) *Repository {
	return &Repository{endpoint: endpoint, httpClient: httpClient}
}

// CreateIdentifier POSTs a create-operation payload and returns the parsed
// DID response. Non-2xx responses fail with ErrSidetreeRequestFailed.
func (r *Repository) CreateIdentifier(ctx context.Context, payload []byte) (*DidResponse, error) {
	start := time.Now()
	out, err := r.createIdentifier(ctx, payload)
	metrics.SidetreeRequestDuration.WithLabelValues("create").Observe(time.Since(start).Seconds())
	metrics.SidetreeRequests.WithLabelValues("create", requestStatus(err)).Inc()
	return out, err
}

func (r *Repository) createIdentifier(ctx context.Context, payload []byte) (*DidResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create identifier: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read create response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ErrSidetreeRequestFailed{Status: resp.StatusCode, Body: string(body)}
	}

	var out DidResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse create response: %w", err)
	}
	return &out, nil
}

// requestStatus maps a Sidetree call's outcome to a metrics label.
func requestStatus(err error) string {
	if err == nil {
		return "success"
	}
	return "failure"
}

// Resolve adapts FindIdentifier to the plain *sidetree.DidDocument shape
// the DIDComm encrypted service's resolver capability expects.
func (r *Repository) Resolve(ctx context.Context, did string) (*sidetree.DidDocument, error) {
	resp, err := r.FindIdentifier(ctx, did)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return &resp.DidDocument, nil
}

// FindIdentifier GETs the resolution for did. Returns (nil, nil) on a 404;
// any other non-2xx status fails with ErrSidetreeRequestFailed.
func (r *Repository) FindIdentifier(ctx context.Context, did string) (*DidResponse, error) {
	start := time.Now()
	out, status, err := r.findIdentifier(ctx, did)
	metrics.SidetreeRequestDuration.WithLabelValues("resolve").Observe(time.Since(start).Seconds())
	metrics.SidetreeRequests.WithLabelValues("resolve", status).Inc()
	return out, err
}

func (r *Repository) findIdentifier(ctx context.Context, did string) (*DidResponse, string, error) {
	url := r.endpoint + "/" + did
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "failure", fmt.Errorf("build find request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "failure", fmt.Errorf("find identifier: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "failure", fmt.Errorf("read find response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, "not_found", nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "failure", &ErrSidetreeRequestFailed{Status: resp.StatusCode, Body: string(body)}
	}

	var out DidResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, "failure", fmt.Errorf("parse find response: %w", err)
	}
	return &out, "success", nil
}
