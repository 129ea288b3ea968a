package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth guards privileged routes with role keys: market administration
// (open, pause, fee withdrawal) needs the operator key, resolution needs the
// oracle key. Trading and query routes stay public. An empty key disables
// its role's check, for development setups.
type Auth struct {
	operatorKey string
	oracleKey   string
}

func NewAuth(operatorKey, oracleKey string) *Auth {
	return &Auth{operatorKey: operatorKey, oracleKey: oracleKey}
}

// Operator wraps a handler that requires the operator key.
func (a *Auth) Operator(next http.HandlerFunc) http.HandlerFunc {
	return a.require(a.operatorKey, next)
}

// Oracle wraps a handler that requires the oracle key.
func (a *Auth) Oracle(next http.HandlerFunc) http.HandlerFunc {
	return a.require(a.oracleKey, next)
}

func (a *Auth) require(key string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key == "" {
			next(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			writeUnauthorized(w, "missing authentication token")
			return
		}
		// Constant-time comparison to prevent timing attacks.
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
			writeUnauthorized(w, "invalid authentication token")
			return
		}
		next(w, r)
	}
}

// extractToken looks for a Bearer token in the Authorization header or a
// static key in X-API-Key.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
