package studio_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/miax-network/miax-agent/internal/didcomm"
	"github.com/miax-network/miax-agent/internal/keyring"
	"github.com/miax-network/miax-agent/internal/miaxdid/sidetree"
	"github.com/miax-network/miax-agent/internal/studio"
	"github.com/miax-network/miax-agent/internal/vc"
)

const (
	ownDID     = "did:miax:own"
	projectDID = "did:miax:project"
)

type stubResolver struct {
	docs map[string]*sidetree.DidDocument
}

func (s *stubResolver) Resolve(ctx context.Context, did string) (*sidetree.DidDocument, error) {
	return s.docs[did], nil
}

func fakeDocument(id string, kr *keyring.KeyRing) *sidetree.DidDocument {
	return &sidetree.DidDocument{
		ID: id,
		PublicKey: []sidetree.DidPublicKey{
			{ID: "#signingKey", Type: sidetree.TypeSigningKey, PublicKeyJwk: kr.Sign.Jwk()},
			{ID: "#encryptionKey", Type: sidetree.TypeEncryptionKey, PublicKeyJwk: kr.Encrypt.Jwk()},
		},
	}
}

func newKeyRing(t *testing.T) *keyring.KeyRing {
	t.Helper()
	kr, err := keyring.New()
	require.NoError(t, err)
	return kr
}

func TestWorker_PollDispatchesAndAcksOnSuccess(t *testing.T) {
	ownKr := newKeyRing(t)
	projectKr := newKeyRing(t)

	resolver := &stubResolver{docs: map[string]*sidetree.DidDocument{
		ownDID:     fakeDocument(ownDID, ownKr),
		projectDID: fakeDocument(projectDID, projectKr),
	}}
	ownService := didcomm.NewService(resolver, "")
	projectService := didcomm.NewService(resolver, "")

	op := studio.Operation{Kind: studio.OperationRefreshNetworkConfig}
	opBytes, err := json.Marshal(op)
	require.NoError(t, err)

	sealedFromProject, err := projectService.Generate(context.Background(), vc.VC{
		Issuer:       vc.Issuer{ID: projectDID},
		IssuanceDate: vc.Now(),
		Type:         []string{"VerifiableCredential", "StudioOperation"},
	}, projectDID, projectKr, ownDID, opBytes)
	require.NoError(t, err)

	var ackedBody []byte
	ackCh := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/message/list":
			resp := map[string]any{
				"messages": []map[string]any{
					{"id": "msg-1", "message": sealedFromProject},
				},
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		case "/v1/message/ack":
			body, _ := io.ReadAll(r.Body)
			ackedBody = body
			w.WriteHeader(http.StatusOK)
			ackCh <- struct{}{}
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	dispatched := make(chan studio.Operation, 1)
	worker := studio.New(studio.Config{
		BaseURL:     server.URL,
		BearerToken: "test-token",
		Interval:    20 * time.Millisecond,
		OwnDID:      ownDID,
		ProjectDID:  projectDID,
		OwnKeyring:  ownKr,
		DIDComm:     ownService,
		Handle: func(ctx context.Context, credential vc.VC, op studio.Operation) error {
			dispatched <- op
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = worker.Run(ctx)

	select {
	case got := <-dispatched:
		require.Equal(t, studio.OperationRefreshNetworkConfig, got.Kind)
	default:
		t.Fatal("operation was never dispatched")
	}

	select {
	case <-ackCh:
	default:
		t.Fatal("message was never acked")
	}
	require.NotEmpty(t, ackedBody)
}

func TestWorker_DoesNotAckOnHandlerFailure(t *testing.T) {
	ownKr := newKeyRing(t)
	projectKr := newKeyRing(t)

	resolver := &stubResolver{docs: map[string]*sidetree.DidDocument{
		ownDID:     fakeDocument(ownDID, ownKr),
		projectDID: fakeDocument(projectDID, projectKr),
	}}
	ownService := didcomm.NewService(resolver, "")
	projectService := didcomm.NewService(resolver, "")

	sealedFromProject, err := projectService.Generate(context.Background(), vc.VC{
		Issuer:       vc.Issuer{ID: projectDID},
		IssuanceDate: vc.Now(),
		Type:         []string{"VerifiableCredential", "StudioOperation"},
	}, projectDID, projectKr, ownDID, []byte(`{"kind":"update-binary"}`))
	require.NoError(t, err)

	ackCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/message/list":
			resp := map[string]any{
				"messages": []map[string]any{{"id": "msg-1", "message": sealedFromProject}},
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		case "/v1/message/ack":
			ackCalled = true
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	worker := studio.New(studio.Config{
		BaseURL:    server.URL,
		Interval:   20 * time.Millisecond,
		OwnDID:     ownDID,
		ProjectDID: projectDID,
		OwnKeyring: ownKr,
		DIDComm:    ownService,
		Handle: func(ctx context.Context, credential vc.VC, op studio.Operation) error {
			return context.DeadlineExceeded
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = worker.Run(ctx)

	require.False(t, ackCalled)
}
