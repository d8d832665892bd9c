package httpclient

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_Do(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"echo":"` + body["name"] + `"}`))
	}))
	defer server.Close()

	client := New(time.Second, Retry{}, map[string]string{"Authorization": "Bearer token"}, discardLogger())

	var out struct {
		Echo string `json:"echo"`
	}

	require.NoError(t, client.Do(t.Context(), http.MethodPost, server.URL, map[string]string{"name": "run"}, &out))
	assert.Equal(t, "run", out.Echo)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(time.Second, Retry{Attempts: 3, Delay: time.Millisecond}, nil, discardLogger())

	require.NoError(t, client.Do(t.Context(), http.MethodGet, server.URL, nil, nil))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`not found`))
	}))
	defer server.Close()

	client := New(time.Second, Retry{Attempts: 3, Delay: time.Millisecond}, nil, discardLogger())

	err := client.Do(t.Context(), http.MethodGet, server.URL, nil, nil)
	require.ErrorIs(t, err, ErrHTTPClientError)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}
