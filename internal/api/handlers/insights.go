package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/creator-insights/internal/insights"
	"github.com/pysugar/creator-insights/internal/platform"
)

type tableResponse struct {
	Start int64           `json:"start_date"`
	End   int64           `json:"end_date"`
	Table *insights.Table `json:"insights"`
}

// AccountInsightsHandler handles GET /api/accounts/{id}/insights
func AccountInsightsHandler(svc InsightsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rng, err := queryRange(r, svc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tables, err := svc.CalculateAccountMetrics(r.Context(), chi.URLParam(r, "id"), rng, viewerID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make(map[platform.Platform]tableResponse, len(tables))
		for p, t := range tables {
			out[p] = tableResponse{Start: rng.Start.Unix(), End: rng.End.Unix(), Table: t}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// PlatformInsightsHandler handles GET /api/accounts/{id}/insights/{platform}
func PlatformInsightsHandler(svc InsightsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := parsePlatform(chi.URLParam(r, "platform"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		rng, err := queryRange(r, svc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		t, err := svc.CalculatePlatformMetric(r.Context(), chi.URLParam(r, "id"), p, rng, viewerID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tableResponse{Start: rng.Start.Unix(), End: rng.End.Unix(), Table: t})
	}
}

// HandleInsightsHandler handles GET /api/handles/{id}/insights
func HandleInsightsHandler(svc InsightsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rng, err := queryRange(r, svc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		t, err := svc.GetHandleInsights(r.Context(), chi.URLParam(r, "id"), rng, viewerID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tableResponse{Start: rng.Start.Unix(), End: rng.End.Unix(), Table: t})
	}
}
