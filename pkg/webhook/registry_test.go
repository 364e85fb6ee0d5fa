package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelink-io/edgelink-go/pkg/api"
	"github.com/edgelink-io/edgelink-go/pkg/auth"
	"github.com/edgelink-io/edgelink-go/pkg/identity"
)

type stubEndpoint struct{}

func (stubEndpoint) RequestChallenge(ctx context.Context, deviceID string) (*auth.Challenge, error) {
	now := time.Now()
	return &auth.Challenge{
		Nonce:     []byte("nonce-0123456789abcdef0123456789"),
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Minute),
	}, nil
}

func (stubEndpoint) Handshake(ctx context.Context, req *auth.HandshakeRequest) (*auth.HandshakeResponse, error) {
	now := time.Now()
	return &auth.HandshakeResponse{
		Token:     "registry-token",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}, nil
}

func newTestRegistry(t *testing.T, baseURL string) *Registry {
	t.Helper()
	creds, err := identity.NewManager(identity.Config{DeviceID: "device-reg-test"})
	require.NoError(t, err)
	authClient := auth.NewClient(stubEndpoint{}, creds)
	return NewRegistry(api.NewClient(baseURL, authClient))
}

func TestRegistryRegister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/webhooks", r.URL.Path)

		var req Registration
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://example.com/hook", req.URL)
		assert.Equal(t, "device-reg-test", req.DeviceID)
		assert.Equal(t, []EventType{EventDataUpdate, EventAlert}, req.Events)

		req.ID = "wh-1"
		req.Secret = "s3cret"
		json.NewEncoder(w).Encode(req)
	}))
	defer srv.Close()

	reg := newTestRegistry(t, srv.URL)
	created, err := reg.Register(context.Background(), "https://example.com/hook",
		"device-reg-test", []EventType{EventDataUpdate, EventAlert})
	require.NoError(t, err)
	assert.Equal(t, "wh-1", created.ID)
	assert.Equal(t, "s3cret", created.Secret)
}

func TestRegistryListAndDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "device-reg-test", r.URL.Query().Get("device_id"))
			json.NewEncoder(w).Encode([]Registration{
				{ID: "wh-1", URL: "https://example.com/a"},
				{ID: "wh-2", URL: "https://example.com/b"},
			})
		case http.MethodDelete:
			assert.Equal(t, "/webhooks/wh-1", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	reg := newTestRegistry(t, srv.URL)

	webhooks, err := reg.List(context.Background(), "device-reg-test")
	require.NoError(t, err)
	require.Len(t, webhooks, 2)
	assert.Equal(t, "wh-1", webhooks[0].ID)

	require.NoError(t, reg.Delete(context.Background(), "wh-1"))
}

func TestRegistryTest(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	reg := newTestRegistry(t, srv.URL)
	require.NoError(t, reg.Test(context.Background(), "wh-9"))
	assert.Equal(t, "/webhooks/wh-9/test", gotPath)
}

func TestSignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"event":"data_update"}`)

	sig := Signature("s3cret", payload)
	assert.Len(t, sig, 64) // hex-encoded SHA-256

	assert.True(t, VerifySignature("s3cret", payload, sig))
	assert.False(t, VerifySignature("wrong", payload, sig))
	assert.False(t, VerifySignature("s3cret", []byte("tampered"), sig))
	assert.False(t, VerifySignature("s3cret", payload, "not-hex"))
}

func TestSignatureIsDeterministic(t *testing.T) {
	payload := []byte("stable")
	assert.Equal(t, Signature("k", payload), Signature("k", payload))
	assert.NotEqual(t, Signature("k", payload), Signature("k2", payload))
}
