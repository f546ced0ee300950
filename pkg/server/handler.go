package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/ubermorgenland/yas-mcp/pkg/memory"
)

// ReloadResponse represents the response from a reload operation
type ReloadResponse struct {
	Success bool   `json:"success"`
	Tools   int    `json:"tools"`
	Error   string `json:"error,omitempty"`
}

// HandleReload handles POST /reload, recompiling the tool set
func HandleReload(logger *log.Logger, reloadFunc func() (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		count, err := reloadFunc()
		response := ReloadResponse{Success: err == nil, Tools: count}
		status := http.StatusOK
		if err != nil {
			response.Error = err.Error()
			status = http.StatusInternalServerError
			logger.Error().Err(err).Msg("reload failed")
		} else {
			logger.Info().Int("tools", count).Msg("tools reloaded")
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error().Err(err).Msg("failed to encode reload response")
		}
	}
}

// HandleHealth handles the /health endpoint
func HandleHealth(logger *log.Logger, service string, toolCount func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := map[string]interface{}{
			"status":  "healthy",
			"service": service,
			"tools":   toolCount(),
			"memory":  memory.ReadStats(),
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error().Err(err).Msg("failed to encode health response")
		}
	}
}

// CORSMiddleware answers preflight requests and sets permissive CORS headers.
// An empty allowOrigins list allows any origin.
func CORSMiddleware(allowOrigins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(allowOrigins) > 0 {
			origin = ""
			reqOrigin := r.Header.Get("Origin")
			for _, o := range allowOrigins {
				if o == "*" || strings.EqualFold(o, reqOrigin) {
					origin = reqOrigin
					break
				}
			}
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, x-session-id")
		w.Header().Set("Access-Control-Expose-Headers", "x-session-id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the recorder
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingMiddleware logs each request with credential headers masked
func LoggingMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		entry := logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr)
		if v := r.Header.Get("Authorization"); v != "" {
			entry = entry.Str("authorization", MaskSensitive(v))
		}
		if v := r.Header.Get("X-API-Key"); v != "" {
			entry = entry.Str("x_api_key", MaskSensitive(v))
		}
		if v := r.Header.Get("x-session-id"); v != "" {
			entry = entry.Str("session", v)
		}
		entry.Msg("incoming request")

		next.ServeHTTP(rec, r)

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request completed")
	})
}
