package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RefreshInsightsHandler handles POST /api/accounts/{id}/refresh and runs
// the insight update of every handle of the account.
func RefreshInsightsHandler(d Digger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := d.UpdateAllHandlesInsights(r.Context(), chi.URLParam(r, "id"))
		if err != nil && len(docs) == 0 {
			writeError(w, r, err)
			return
		}
		body := map[string]any{"status": "ok", "documents": len(docs)}
		if err != nil {
			body["warning"] = err.Error()
		}
		writeJSON(w, http.StatusOK, body)
	}
}
