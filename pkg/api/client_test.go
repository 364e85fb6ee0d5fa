package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelink-io/edgelink-go/pkg/auth"
	"github.com/edgelink-io/edgelink-go/pkg/identity"
)

type fakeEndpoint struct {
	handshakes atomic.Int32
}

func (e *fakeEndpoint) RequestChallenge(ctx context.Context, deviceID string) (*auth.Challenge, error) {
	now := time.Now()
	return &auth.Challenge{
		Nonce:     []byte("nonce-0123456789abcdef0123456789"),
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Minute),
	}, nil
}

func (e *fakeEndpoint) Handshake(ctx context.Context, req *auth.HandshakeRequest) (*auth.HandshakeResponse, error) {
	n := e.handshakes.Add(1)
	now := time.Now()
	token := "token-1"
	if n > 1 {
		token = "token-2"
	}
	return &auth.HandshakeResponse{
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}, nil
}

func newTestClient(t *testing.T, baseURL string) (*Client, *fakeEndpoint) {
	t.Helper()
	creds, err := identity.NewManager(identity.Config{DeviceID: "device-api-test"})
	require.NoError(t, err)
	endpoint := &fakeEndpoint{}
	authClient := auth.NewClient(endpoint, creds)
	return NewClient(baseURL, authClient), endpoint
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.Get(context.Background(), "/devices", &out))
	assert.True(t, out.OK)
	assert.Equal(t, "Bearer token-1", gotAuth)
}

func TestClientPostRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]string
		require.NoError(t, jsonDecode(r, &in))
		w.Write([]byte(`{"name":"` + in["name"] + `","id":"d-1"}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	var out struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	}
	err := client.Post(context.Background(), "/devices", map[string]string{"name": "sensor"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "sensor", out.Name)
	assert.Equal(t, "d-1", out.ID)
}

func TestClientClassifiesStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"bad request", http.StatusBadRequest, ErrPermanent},
		{"not found", http.StatusNotFound, ErrPermanent},
		{"too many requests", http.StatusTooManyRequests, ErrTransient},
		{"server error", http.StatusInternalServerError, ErrTransient},
		{"bad gateway", http.StatusBadGateway, ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			client, _ := newTestClient(t, srv.URL)
			err := client.Get(context.Background(), "/devices", nil)
			assert.ErrorIs(t, err, tt.want)

			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.Code)
		})
	}
}

func TestClientNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	client, _ := newTestClient(t, srv.URL)
	err := client.Get(context.Background(), "/devices", nil)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestClientRetriesOnceOnUnauthorized(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			http.Error(w, "token expired", http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer token-2", r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, endpoint := newTestClient(t, srv.URL)
	require.NoError(t, client.Get(context.Background(), "/devices", nil))

	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, int32(2), endpoint.handshakes.Load(), "401 must force a re-handshake")
}

func TestClientDelete(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	require.NoError(t, client.Delete(context.Background(), "/webhooks/w-1"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/webhooks/w-1", gotPath)
}

func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
