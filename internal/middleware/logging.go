// internal/middleware/logging.go

// Package middleware carries the HTTP-level logging for the game service.
// The websocket endpoint is the only meaningful route, so connect and
// disconnect get their own helpers alongside the per-request middleware.
package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// statusWriter captures the response code; the ws upgrade path never calls
// WriteHeader, so the zero value reads as "hijacked". Hijack and Unwrap
// pass through so the websocket upgrade still works behind the wrapper.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot be hijacked")
	}
	return hj.Hijack()
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LogMiddleware logs one line per HTTP request with the fields the rest of
// the service uses: method, path, status, duration and the remote address.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			fields := logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}
			if sw.status != 0 {
				fields["status"] = sw.status
			}
			logger.WithFields(fields).Info("http request")
		})
	}
}

// LogWebSocketConnect marks the start of a client session on the ws
// endpoint.
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr string, path string) {
	logger.WithFields(logrus.Fields{
		"remote": remoteAddr,
		"path":   path,
	}).Info("websocket session opened")
}

// LogWebSocketDisconnect marks the end of a session; err is the read error
// that ended the pump, nil for a clean close.
func LogWebSocketDisconnect(logger *logrus.Logger, remoteAddr string, path string, err error) {
	fields := logrus.Fields{
		"remote": remoteAddr,
		"path":   path,
	}
	if err != nil {
		fields["reason"] = err.Error()
	}
	logger.WithFields(fields).Info("websocket session closed")
}
