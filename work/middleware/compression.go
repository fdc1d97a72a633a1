package middleware

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"stream-front/work/logger"

	"github.com/klauspost/compress/gzip"
)

// gzipWriterPool maintains a reusable pool of gzip writers to avoid repeated
// allocation overhead on every compressed response. Writers are initialized at
// BestSpeed compression level since the payloads here are small HTML fragments
// and JSON bodies where latency matters more than ratio.
var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	},
}

// gzipResponseWriter wraps an http.ResponseWriter with a gzip-compressing
// io.Writer, intercepting Write calls to transparently compress response
// bodies. It tracks header write state to ensure proper status code handling.
type gzipResponseWriter struct {
	io.Writer                // Embedded gzip writer for compressed output
	http.ResponseWriter      // Embedded original response writer for header access
	wroteHeader         bool // Tracks whether WriteHeader has been called
}

// WriteHeader records the HTTP status code on the underlying ResponseWriter and
// marks the header as written to prevent duplicate header writes.
func (w *gzipResponseWriter) WriteHeader(status int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

// Write compresses and writes the byte slice to the underlying gzip writer,
// defaulting the status to 200 OK before the first chunk if no explicit code
// has been set.
func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.Writer.Write(b)
}

// Flush flushes both the gzip compression buffer and the underlying HTTP
// response writer so fragments can be delivered incrementally.
func (w *gzipResponseWriter) Flush() {
	if gzw, ok := w.Writer.(*gzip.Writer); ok {
		gzw.Flush()
	}

	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// GzipMiddleware wraps an http.HandlerFunc with transparent gzip response
// compression. Clients that do not advertise gzip support in Accept-Encoding
// are passed through unmodified. The middleware manages the full lifecycle of
// the pooled writer: acquisition, reset to the current response writer, and
// deferred close/return to the pool.
func GzipMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		// pass through if the client doesn't accept gzip encoding
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next(w, r)
			return
		}

		// compressed size is unknown until the response is fully written
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")

		gz := gzipWriterPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			if err := gz.Close(); err != nil {
				logger.Error("{middleware - GzipMiddleware} failed to close gzip writer for: %s %s - %v", r.Method, r.URL.Path, err)
			}
			gzipWriterPool.Put(gz)
		}()

		gzw := &gzipResponseWriter{
			Writer:         gz,
			ResponseWriter: w,
		}

		next(gzw, r)
	}
}
