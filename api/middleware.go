package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"marketlens/logger"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// CORSMiddleware adds CORS headers to responses
func (s *Server) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestMiddleware tags the request with an id and logs its outcome
func (s *Server) RequestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), logger.RequestIDKey, reqID)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(sw, r.WithContext(ctx))

		s.log.WithContext(ctx).Info("Request handled", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sw.status,
			"duration": time.Since(start).String(),
		})
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// zstdWriter streams the response body through a zstd encoder
type zstdWriter struct {
	http.ResponseWriter
	enc *zstd.Encoder
}

func (w *zstdWriter) WriteHeader(status int) {
	// length of the encoded body is unknown up front
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(status)
}

func (w *zstdWriter) Write(b []byte) (int, error) {
	return w.enc.Write(b)
}

// Flush pushes buffered frames to the client before the handler returns
func (w *zstdWriter) Flush() {
	if err := w.enc.Flush(); err != nil {
		return
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController
func (w *zstdWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func acceptsZstd(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(name, "zstd") {
			return true
		}
	}
	return false
}

// ZstdMiddleware compresses responses for clients that list zstd in Accept-Encoding
func ZstdMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")
		if !acceptsZstd(r) {
			next.ServeHTTP(w, r)
			return
		}

		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			SendInternalServerError(w)
			return
		}
		defer enc.Close()

		w.Header().Set("Content-Encoding", "zstd")
		next.ServeHTTP(&zstdWriter{ResponseWriter: w, enc: enc}, r)
	})
}
