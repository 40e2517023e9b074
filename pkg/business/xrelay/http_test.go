package xrelay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientDoSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := newHTTPClient(HTTPClientConfig{BaseURL: server.URL})
	raw, err := c.do(context.Background(), "GET", "/ping", "tok-123", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, raw.statusCode)
	assert.JSONEq(t, `{"ok":true}`, string(raw.body))
}

func TestHTTPClientDoRejectsUnsupportedContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<html></html>`))
	}))
	defer server.Close()

	c := newHTTPClient(HTTPClientConfig{BaseURL: server.URL})
	_, err := c.do(context.Background(), "GET", "/ping", "tok", nil)
	require.Error(t, err)
	var perm *PermanentError
	require.ErrorAs(t, err, &perm)
	assert.ErrorIs(t, perm, ErrUnsupportedContentType)
}

func TestReadValidatedRejectsMissingContentType(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
	}

	c := newHTTPClient(HTTPClientConfig{})
	_, err := c.readValidated(resp)
	require.ErrorIs(t, err, ErrUnsupportedContentType)
}

func TestHTTPClientDoRejectsOversizedBody(t *testing.T) {
	oversized := strings.Repeat("a", maxResponseSize+1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`"` + oversized + `"`))
	}))
	defer server.Close()

	c := newHTTPClient(HTTPClientConfig{BaseURL: server.URL})
	_, err := c.do(context.Background(), "GET", "/ping", "tok", nil)
	require.Error(t, err)
	var perm *PermanentError
	require.ErrorAs(t, err, &perm)
	assert.ErrorIs(t, perm, ErrResponseTooLarge)
}

func TestHTTPClientDoAcceptsProblemJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD","message":"nope"}}`))
	}))
	defer server.Close()

	c := newHTTPClient(HTTPClientConfig{BaseURL: server.URL})
	raw, err := c.do(context.Background(), "GET", "/ping", "tok", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, raw.statusCode)
}

func TestHTTPClientDoTransportFailureIsTemporary(t *testing.T) {
	c := newHTTPClient(HTTPClientConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := c.do(context.Background(), "GET", "/ping", "tok", nil)
	require.Error(t, err)
	var temp *TemporaryError
	require.ErrorAs(t, err, &temp)
}

func TestParseAPIErrorExtractsCodeAndMessage(t *testing.T) {
	err := parseAPIError(500, []byte(`{"error":{"code":"INTERNAL","message":"boom"}}`))
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, 500, apiErr.StatusCode)
	assert.Equal(t, "INTERNAL", apiErr.Code)
	assert.Equal(t, "boom", apiErr.Message)
	assert.True(t, apiErr.Retryable())
}
