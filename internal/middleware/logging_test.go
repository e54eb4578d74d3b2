// internal/middleware/logging_test.go
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMiddlewareRecordsStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()

	handler := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "http request", entry.Message)
	assert.Equal(t, http.MethodGet, entry.Data["method"])
	assert.Equal(t, "/ping", entry.Data["path"])
	assert.Equal(t, http.StatusNoContent, entry.Data["status"])
}

func TestLogMiddlewareSkipsStatusWhenHijacked(t *testing.T) {
	logger, hook := test.NewNullLogger()

	// A handler that never writes a header, like a ws upgrade that took
	// the connection away.
	handler := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws", nil))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	_, present := entry.Data["status"]
	assert.False(t, present)
}

func TestWebSocketSessionLogs(t *testing.T) {
	logger, hook := test.NewNullLogger()

	LogWebSocketConnect(logger, "1.2.3.4:5678", "/ws")
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "websocket session opened", entry.Message)
	assert.Equal(t, "1.2.3.4:5678", entry.Data["remote"])

	LogWebSocketDisconnect(logger, "1.2.3.4:5678", "/ws", assert.AnError)
	entry = hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "websocket session closed", entry.Message)
	assert.Equal(t, assert.AnError.Error(), entry.Data["reason"])
}
