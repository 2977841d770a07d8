package handlers

import (
	"net/http"
	"strings"

	"github.com/pysugar/creator-insights/internal/db"
	"github.com/pysugar/creator-insights/internal/logging"
	"gorm.io/gorm"
)

// GetAPIKeyHandler returns the current API key.
func GetAPIKeyHandler(database *gorm.DB, mask bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := db.GetAPIKey(database)
		if mask {
			apiKey = maskAPIKey(apiKey)
		}
		writeJSON(w, http.StatusOK, map[string]any{"api_key": apiKey, "masked": mask})
	}
}

// RegenerateAPIKeyHandler generates a new API key.
func RegenerateAPIKeyHandler(database *gorm.DB, mask bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey, err := db.RegenerateAPIKey(database)
		if err != nil {
			writeError(w, r, err)
			return
		}
		logging.Entry(r.Context()).WithField("key", maskAPIKey(apiKey)).Info("API key regenerated")
		if mask {
			apiKey = maskAPIKey(apiKey)
		}
		writeJSON(w, http.StatusOK, map[string]any{"api_key": apiKey, "masked": mask})
	}
}

func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 10 {
		return "***"
	}
	return apiKey[:6] + strings.Repeat("*", len(apiKey)-10) + apiKey[len(apiKey)-4:]
}
