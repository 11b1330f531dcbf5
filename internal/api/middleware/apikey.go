package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// APIKeyAuth is middleware that validates API key authentication.
//
// When enabled (at least one key configured), requests to /api/* must
// include a valid API key via:
//   - Authorization: Bearer <key>
//   - X-API-Key: <key>
//
// /health, /version and /metrics are always public. CORS preflight requests
// pass through so browsers can negotiate before sending credentials.
type APIKeyAuth struct {
	keys [][]byte
}

// NewAPIKeyAuth creates API key auth from configured keys. Blank keys are
// ignored; with no keys auth is disabled.
func NewAPIKeyAuth(keys []string) *APIKeyAuth {
	auth := &APIKeyAuth{}
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			auth.keys = append(auth.keys, []byte(key))
		}
	}
	return auth
}

// Enabled returns whether API key auth is active.
func (a *APIKeyAuth) Enabled() bool {
	return len(a.keys) > 0
}

// Middleware returns an http.Handler middleware that enforces API key auth.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := extractAPIKey(r)
		if apiKey == "" {
			respondUnauthorized(w, "API key required. Set Authorization: Bearer <key> or X-API-Key header.")
			return
		}
		if !a.validateKey(apiKey) {
			respondUnauthorized(w, "Invalid API key.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// validateKey compares against every key in constant time.
func (a *APIKeyAuth) validateKey(candidate string) bool {
	ok := false
	for _, key := range a.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), key) == 1 {
			ok = true
		}
	}
	return ok
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func isPublicPath(path string) bool {
	switch path {
	case "/health", "/version", "/metrics":
		return true
	}
	return false
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="visualizer"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
	})
}
