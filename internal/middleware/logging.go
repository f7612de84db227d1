package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// logWriter is a wrapper around http.ResponseWriter that allows us to capture
// the HTTP status code and bytes written to the response.
type logWriter struct {
	http.ResponseWriter
	code, bytes int
}

var _ http.ResponseWriter = (*logWriter)(nil)

var _ http.Flusher = (*logWriter)(nil)

var _ http.Hijacker = (*logWriter)(nil)

// Write implements http.ResponseWriter.
func (r *logWriter) Write(p []byte) (int, error) {
	written, err := r.ResponseWriter.Write(p)
	r.bytes += written
	return written, err
}

// Note this is generally only called when sending an HTTP error, so it's
// important to set the `code` value to 200 as a default.
func (r *logWriter) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher.
func (r *logWriter) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker. The notification stream needs it.
func (r *logWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		r.code = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("http.Hijacker not implemented")
}

// Logging returns a middleware logging every request and its response.
func Logging(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			writer := &logWriter{code: http.StatusOK, ResponseWriter: w}
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"addr", r.RemoteAddr,
				"request_id", RequestIDFromContext(r.Context()))
			next.ServeHTTP(writer, r)
			elapsed := time.Since(start)

			level := log.InfoLevel
			if writer.code >= http.StatusInternalServerError {
				level = log.ErrorLevel
			}
			logger.Log(level, "response",
				"method", r.Method,
				"path", r.URL.Path,
				"status", fmt.Sprintf("%d %s", writer.code, http.StatusText(writer.code)),
				"bytes", humanize.Bytes(uint64(writer.bytes)), //nolint:gosec
				"time", elapsed,
				"request_id", RequestIDFromContext(r.Context()))
		})
	}
}
