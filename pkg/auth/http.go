package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTP endpoint paths.
const (
	ChallengePath = "/auth/challenge"
	HandshakePath = "/auth/handshake"
)

// DefaultRequestTimeout is the default HTTP request timeout.
const DefaultRequestTimeout = 30 * time.Second

// HTTPEndpoint talks to the dashboard's challenge and handshake
// endpoints over HTTP with JSON bodies.
type HTTPEndpoint struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEndpoint creates an endpoint client for the given base URL.
// A nil httpClient uses a client with the default timeout.
func NewHTTPEndpoint(baseURL string, httpClient *http.Client) *HTTPEndpoint {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &HTTPEndpoint{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// challengeRequest is the JSON body of a challenge request.
type challengeRequest struct {
	DeviceID string `json:"device_id"`
}

// challengeResponse is the JSON body of a challenge response.
type challengeResponse struct {
	Nonce     string `json:"nonce"` // base64
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// handshakeRequest is the JSON body of a handshake submission.
type handshakeRequest struct {
	DeviceID  string `json:"device_id"`
	PublicKey string `json:"public_key"` // base64
	Nonce     string `json:"nonce"`      // base64
	Signature string `json:"signature"`  // base64
}

// handshakeResponse is the JSON body of a successful handshake.
type handshakeResponse struct {
	Token     string `json:"token"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// errorResponse is the JSON body of a failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// RequestChallenge implements Endpoint.
func (e *HTTPEndpoint) RequestChallenge(ctx context.Context, deviceID string) (*Challenge, error) {
	var resp challengeResponse
	if err := e.post(ctx, ChallengePath, &challengeRequest{DeviceID: deviceID}, &resp); err != nil {
		return nil, err
	}

	nonce, err := base64.StdEncoding.DecodeString(resp.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid challenge nonce encoding: %w", err)
	}

	return &Challenge{
		Nonce:     nonce,
		IssuedAt:  time.Unix(resp.IssuedAt, 0),
		ExpiresAt: time.Unix(resp.ExpiresAt, 0),
	}, nil
}

// Handshake implements Endpoint.
func (e *HTTPEndpoint) Handshake(ctx context.Context, req *HandshakeRequest) (*HandshakeResponse, error) {
	body := &handshakeRequest{
		DeviceID:  req.DeviceID,
		PublicKey: base64.StdEncoding.EncodeToString(req.PublicKey),
		Nonce:     base64.StdEncoding.EncodeToString(req.Nonce),
		Signature: base64.StdEncoding.EncodeToString(req.Signature),
	}

	var resp handshakeResponse
	if err := e.post(ctx, HandshakePath, body, &resp); err != nil {
		return nil, err
	}

	return &HandshakeResponse{
		Token:     resp.Token,
		IssuedAt:  time.Unix(resp.IssuedAt, 0),
		ExpiresAt: time.Unix(resp.ExpiresAt, 0),
	}, nil
}

// post sends a JSON POST and decodes the JSON response, mapping
// failure statuses onto the auth error taxonomy.
func (e *HTTPEndpoint) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mapStatusError(resp.StatusCode, resp.Body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// mapStatusError converts an HTTP failure status into an auth error.
func mapStatusError(status int, body io.Reader) error {
	var er errorResponse
	_ = json.NewDecoder(body).Decode(&er)

	switch {
	case status >= 500:
		return fmt.Errorf("%w: server status %d", ErrTransientNetwork, status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if er.Error == "challenge_expired" {
			return ErrChallengeExpired
		}
		return fmt.Errorf("%w: %s", ErrInvalidSignature, er.Error)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: rate limited", ErrTransientNetwork)
	default:
		return fmt.Errorf("auth request failed: status %d: %s", status, er.Error)
	}
}
