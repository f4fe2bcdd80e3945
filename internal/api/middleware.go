// Package api implements the local tree HTTP API using chi.
package api

import (
	"crypto/subtle"
	"mime"
	"net/http"
	"strings"
)

// AuthMiddleware checks the bearer token of every API request when token
// auth is enabled. With auth disabled the API relies on the loopback bind
// and on RequireJSON.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSON rejects POST, PUT and PATCH requests that are not declared as
// application/json, with or without a body. Browsers cannot send that type
// cross-origin without a preflight, which this API never answers, so pages
// on other origins cannot create or change trees.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				writeJSON(w, http.StatusUnsupportedMediaType, errorBody("Content-Type must be application/json"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
