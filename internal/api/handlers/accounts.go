package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/creator-insights/internal/db/models"
)

type accountView struct {
	ID             string              `json:"id"`
	Username       string              `json:"username"`
	EntityType     string              `json:"entity_type,omitempty"`
	Description    string              `json:"description,omitempty"`
	Avatar         string              `json:"avatar,omitempty"`
	PrivateMetrics map[string][]string `json:"private_metrics"`
	CreatedAt      time.Time           `json:"created_at"`
}

func newAccountView(acc *models.Account) accountView {
	private := acc.PrivateMetrics.Data()
	if private == nil {
		private = models.PrivateMetrics{}
	}
	return accountView{
		ID:             acc.ID,
		Username:       acc.Username,
		EntityType:     acc.EntityType,
		Description:    acc.Description,
		Avatar:         acc.Avatar,
		PrivateMetrics: private,
		CreatedAt:      acc.CreatedAt,
	}
}

// CreateAccountHandler handles POST /api/accounts
func CreateAccountHandler(store AccountStore) http.HandlerFunc {
	type request struct {
		Username   string `json:"username"`
		EntityType string `json:"entity_type"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
			writeError(w, r, badRequest("username is required"))
			return
		}
		acc, err := store.CreateAccount(r.Context(), req.Username, req.EntityType)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newAccountView(acc))
	}
}

// GetAccountHandler handles GET /api/accounts/{id}
func GetAccountHandler(store AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := store.GetAccount(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAccountView(acc))
	}
}

// SetPrivacyHandler handles PUT /api/accounts/{id}/privacy/{platform}. Only
// the owner may change which metrics are hidden.
func SetPrivacyHandler(store AccountStore) http.HandlerFunc {
	type request struct {
		Metrics []string `json:"metrics"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if viewer := viewerID(r); viewer != id {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error": map[string]any{"message": "only the account owner can change privacy", "status": http.StatusForbidden},
			})
			return
		}
		p, err := parsePlatform(chi.URLParam(r, "platform"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, badRequest("invalid request body"))
			return
		}
		acc, err := store.SetPrivateMetrics(r.Context(), id, p, req.Metrics)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAccountView(acc))
	}
}
