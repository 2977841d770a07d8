package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/pysugar/creator-insights/internal/db"
	"gorm.io/gorm"
)

// APIKeyAuth validates the API key from the Authorization or x-api-key
// header against the key stored in database.
func APIKeyAuth(database *gorm.DB) func(next http.Handler) http.Handler {
	return APIKeyAuthFunc(func() string { return db.GetAPIKey(database) })
}

// APIKeyAuthFunc is APIKeyAuth with the expected key supplied by key. An
// empty key lets every request through (first run).
func APIKeyAuthFunc(key func() string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expectedKey := key()
			if expectedKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && keyEqual(token, expectedKey) {
				next.ServeHTTP(w, r)
				return
			}
			if keyEqual(r.Header.Get("x-api-key"), expectedKey) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": {"message": "Invalid API key", "type": "authentication_error"}}`))
		})
	}
}

func keyEqual(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
