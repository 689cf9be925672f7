package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveCorrelated(req *http.Request) (seen string, rr *httptest.ResponseRecorder) {
	h := withCorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = correlationID(r.Context())
	}))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return seen, rr
}

func TestWithCorrelationID(t *testing.T) {
	t.Run("keeps caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set(correlationHeader, "ops-7f3a")

		seen, rr := serveCorrelated(req)
		assert.Equal(t, "ops-7f3a", seen)
		assert.Equal(t, "ops-7f3a", rr.Header().Get(correlationHeader))
	})

	t.Run("generates uuid", func(t *testing.T) {
		seen, rr := serveCorrelated(httptest.NewRequest(http.MethodGet, "/status", nil))

		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
		assert.Equal(t, seen, rr.Header().Get(correlationHeader))
	})

	t.Run("absent outside a request", func(t *testing.T) {
		assert.Empty(t, correlationID(context.Background()))
	})
}

func TestLogRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	h := withCorrelationID(logRequests(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(correlationHeader, "c-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ops request", entry["message"])
	assert.Equal(t, "/healthz", entry["path"])
	assert.Equal(t, "c-1", entry["correlation_id"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.EqualValues(t, 15, entry["bytes"])
}

func TestJSONResponses(t *testing.T) {
	h := jsonResponses(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}
