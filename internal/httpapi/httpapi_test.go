package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miax-network/miax-agent/internal/didrepo"
	"github.com/miax-network/miax-agent/internal/httpapi"
	"github.com/miax-network/miax-agent/internal/keystore"
)

func newTestService(t *testing.T, sidetree http.HandlerFunc) *httpapi.Service {
	t.Helper()
	server := httptest.NewServer(sidetree)
	t.Cleanup(server.Close)

	store := keystore.NewStore(filepath.Join(t.TempDir(), "config.json"))
	repo := didrepo.NewWithClient(server.URL, server.Client())
	return httpapi.NewService(store, repo)
}

func TestCreateIdentifier_PersistsAssignedDid(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"did_document": map[string]any{"id": "did:miax:test123"},
		})
	})

	resp, err := svc.CreateIdentifier(context.Background())
	require.NoError(t, err)
	require.Equal(t, "did:miax:test123", resp.DidDocument.ID)
}

func TestCreateIdentifier_SurfacesUpstreamFailure(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})

	_, err := svc.CreateIdentifier(context.Background())
	require.Error(t, err)
	var upstream *didrepo.ErrSidetreeRequestFailed
	require.ErrorAs(t, err, &upstream)
}

func TestFindIdentifier_ReturnsNilOnNotFound(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	resp, err := svc.FindIdentifier(context.Background(), "did:miax:missing")
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestRouter_CreateIdentifierRoundTrip(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"did_document": map[string]any{"id": "did:miax:router-test"},
		})
	})
	router := httpapi.NewRouter(svc, "1.0.0")

	req := httptest.NewRequest(http.MethodPost, "/miax/create_identifier", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out didrepo.DidResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "did:miax:router-test", out.DidDocument.ID)
}

func TestRouter_FindIdentifierNotFoundReturnsNull(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router := httpapi.NewRouter(svc, "1.0.0")

	req := httptest.NewRequest(http.MethodGet, "/miax/identifiers/did:miax:missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestRouter_GetVersion(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})
	router := httpapi.NewRouter(svc, "1.2.3")

	req := httptest.NewRequest(http.MethodGet, "/internal/version/get", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "1.2.3", out.Version)
}
