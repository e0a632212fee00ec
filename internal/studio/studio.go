// Package studio polls a remote "studio" endpoint for DIDComm-sealed
// operation messages and dispatches them (spec.md §6 "Studio upstream").
package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/miax-network/miax-agent/internal/didcomm"
	"github.com/miax-network/miax-agent/internal/keyring"
	"github.com/miax-network/miax-agent/internal/logger"
	"github.com/miax-network/miax-agent/internal/vc"
)

// Operation is the decoded metadata attachment carried alongside a
// verified message: the named task and its parameters.
type Operation struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Kinds of operation spec.md §2 names: update-binary, refresh-network-config.
const (
	OperationUpdateBinary         = "update-binary"
	OperationRefreshNetworkConfig = "refresh-network-config"
)

// OperationHandler dispatches one decoded operation. A non-nil error
// means the message is not acked and is re-delivered on a later poll.
type OperationHandler func(ctx context.Context, credential vc.VC, op Operation) error

// inboundMessage is one entry of a /v1/message/list response: an ackable
// id alongside the sealed DIDComm envelope.
type inboundMessage struct {
	ID      string          `json:"id"`
	Message didcomm.Message `json:"message"`
}

type listResponse struct {
	Messages []inboundMessage `json:"messages"`
}

// Worker periodically pulls DIDComm messages addressed to this agent from
// the studio endpoint, verifies and dispatches each, and acks only the
// ones successfully dispatched.
type Worker struct {
	httpClient  *http.Client
	baseURL     string
	bearerToken string
	interval    time.Duration

	ownDID     string
	projectDID string
	ownKeyring *keyring.KeyRing

	didcomm *didcomm.Service
	handle  OperationHandler
}

// Config bundles Worker's construction parameters.
type Config struct {
	BaseURL     string
	BearerToken string
	Interval    time.Duration
	OwnDID      string
	ProjectDID  string
	OwnKeyring  *keyring.KeyRing
	DIDComm     *didcomm.Service
	Handle      OperationHandler
}

// New builds a Worker from cfg. If cfg.BearerToken is a parseable JWT, its
// exp claim is logged once so an operator notices an expiring credential
// before requests start failing.
func New(cfg Config) *Worker {
	if cfg.BearerToken != "" {
		logExpiry(cfg.BearerToken)
	}
	return &Worker{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     cfg.BaseURL,
		bearerToken: cfg.BearerToken,
		interval:    cfg.Interval,
		ownDID:      cfg.OwnDID,
		projectDID:  cfg.ProjectDID,
		ownKeyring:  cfg.OwnKeyring,
		didcomm:     cfg.DIDComm,
		handle:      cfg.Handle,
	}
}

// logExpiry parses token without verifying its signature purely to read
// the exp claim; the studio endpoint itself rejects an expired token.
func logExpiry(token string) {
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		logger.Warn("studio bearer token is not a parseable JWT", logger.Error(err))
		return
	}
	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		logger.Info("studio bearer token expiry", logger.String("exp", exp.String()))
	}
}

// Run polls at cfg.Interval until ctx is cancelled, exiting at the next
// tick boundary (spec.md §5 cancellation semantics). Per-tick failures are
// logged and the loop continues.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.pollOnce(ctx); err != nil {
				logger.ErrorMsg("studio poll failed", logger.Error(err))
			}
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context) error {
	sealed, err := w.sealPollRequest()
	if err != nil {
		return fmt.Errorf("seal poll request: %w", err)
	}

	var resp listResponse
	if err := w.post(ctx, "/v1/message/list", sealed, &resp); err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	for _, inbound := range resp.Messages {
		w.handleInbound(ctx, inbound)
	}
	return nil
}

func (w *Worker) handleInbound(ctx context.Context, inbound inboundMessage) {
	verified, err := w.didcomm.Verify(ctx, &inbound.Message, w.ownKeyring)
	if err != nil {
		logger.ErrorMsg("studio message verify failed, not acking", logger.Error(err), logger.String("message_id", inbound.ID))
		return
	}

	attachment, err := verified.GetAttachmentOrErr()
	if err != nil {
		logger.ErrorMsg("studio message carried no operation", logger.Error(err), logger.String("message_id", inbound.ID))
		return
	}
	var op Operation
	if err := json.Unmarshal(attachment, &op); err != nil {
		logger.ErrorMsg("studio operation payload malformed", logger.Error(err), logger.String("message_id", inbound.ID))
		return
	}

	if err := w.handle(ctx, verified.Message, op); err != nil {
		logger.ErrorMsg("studio operation dispatch failed, not acking", logger.Error(err), logger.String("message_id", inbound.ID), logger.String("kind", op.Kind))
		return
	}

	if err := w.ack(ctx, inbound.ID); err != nil {
		logger.ErrorMsg("studio ack failed", logger.Error(err), logger.String("message_id", inbound.ID))
	}
}

func (w *Worker) ack(ctx context.Context, messageID string) error {
	credential := vc.VC{
		Issuer:       vc.Issuer{ID: w.ownDID},
		IssuanceDate: vc.Now(),
		Context:      []string{"https://www.w3.org/2018/credentials/v1"},
		Type:         []string{"VerifiableCredential", "StudioAckRequest"},
		CredentialSubject: vc.Subject{
			Container: map[string]string{"message_id": messageID},
		},
	}
	sealed, err := w.didcomm.Generate(ctx, credential, w.ownDID, w.ownKeyring, w.projectDID, nil)
	if err != nil {
		return fmt.Errorf("seal ack request: %w", err)
	}
	return w.post(ctx, "/v1/message/ack", sealed, nil)
}

func (w *Worker) sealPollRequest() (*didcomm.Message, error) {
	credential := vc.VC{
		Issuer:       vc.Issuer{ID: w.ownDID},
		IssuanceDate: vc.Now(),
		Context:      []string{"https://www.w3.org/2018/credentials/v1"},
		Type:         []string{"VerifiableCredential", "StudioPollRequest"},
	}
	return w.didcomm.Generate(context.Background(), credential, w.ownDID, w.ownKeyring, w.projectDID, nil)
}

func (w *Worker) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+w.bearerToken)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("studio request failed: %d: %s", resp.StatusCode, string(respBody))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
