package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/creator-insights/internal/accounts"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/digger"
	"github.com/pysugar/creator-insights/internal/platform"
)

// handleView is a handle without its credentials.
type handleView struct {
	ID             string         `json:"id"`
	Platform       string         `json:"platform"`
	HandleUID      string         `json:"handle_uid"`
	URL            string         `json:"url,omitempty"`
	Username       string         `json:"username,omitempty"`
	Avatar         string         `json:"avatar,omitempty"`
	FollowerCount  int64          `json:"follower_count"`
	MediaCount     int64          `json:"media_count"`
	MetaData       map[string]any `json:"meta_data,omitempty"`
	TokenExpiresAt *time.Time     `json:"token_expires_at,omitempty"`
	LastSyncedAt   *time.Time     `json:"last_synced_at,omitempty"`
	LastSyncError  string         `json:"last_sync_error,omitempty"`
}

func newHandleViews(handles []models.SocialMediaHandle) []handleView {
	out := make([]handleView, 0, len(handles))
	for _, h := range handles {
		v := handleView{
			ID:            h.ID,
			Platform:      h.Platform,
			HandleUID:     h.HandleUID,
			URL:           h.HandleURL,
			Username:      h.Username,
			Avatar:        h.Avatar,
			FollowerCount: h.FollowerCount,
			MediaCount:    h.MediaCount,
			MetaData:      h.MetaData,
			LastSyncedAt:  h.LastSyncedAt,
			LastSyncError: h.LastSyncError,
		}
		if !h.TokenExpiresAt.IsZero() {
			exp := h.TokenExpiresAt
			v.TokenExpiresAt = &exp
		}
		out = append(out, v)
	}
	return out
}

// ListHandlesHandler handles GET /api/accounts/{id}/handles?platform=
func ListHandlesHandler(store AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var p platform.Platform
		if raw := r.URL.Query().Get("platform"); raw != "" {
			var err error
			if p, err = parsePlatform(raw); err != nil {
				writeError(w, r, err)
				return
			}
		}
		if _, err := store.GetAccount(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		handles, err := store.ListHandles(r.Context(), id, p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(handles) == 0 {
			writeError(w, r, accounts.ErrNoSocialMediaHandle)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"handles": newHandleViews(handles)})
	}
}

// ConnectHandler handles POST /api/accounts/{id}/handles/{platform}.
//
// The body carries either the platform tokens (access_token, expires_in,
// refresh_token) or, for platforms with a code exchanger, an OAuth code and
// its redirect_url.
func ConnectHandler(d Digger, exchangers map[platform.Platform]CodeExchanger) http.HandlerFunc {
	type request struct {
		AccessToken  string `json:"access_token"`
		ExpiresIn    int64  `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
		Code         string `json:"code"`
		RedirectURL  string `json:"redirect_url"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
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

		creds := digger.Credentials{AccessToken: req.AccessToken, RefreshToken: req.RefreshToken, ExpiresIn: req.ExpiresIn}
		switch {
		case req.Code != "":
			ex, ok := exchangers[p]
			if !ok {
				writeError(w, r, badRequest("%s does not accept authorization codes", p))
				return
			}
			if creds, err = ex.ExchangeCode(r.Context(), req.Code, req.RedirectURL); err != nil {
				writeError(w, r, err)
				return
			}
		case req.AccessToken == "":
			writeError(w, r, badRequest("access_token or code is required"))
			return
		}

		handles, err := d.CreateOrUpdateHandles(r.Context(), id, p, creds)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"handles": newHandleViews(handles)})
	}
}

// ResyncHandler handles POST /api/accounts/{id}/resync
func ResyncHandler(d Digger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handles, err := d.ResyncHandles(r.Context(), chi.URLParam(r, "id"))
		if err != nil && len(handles) == 0 {
			writeError(w, r, err)
			return
		}
		body := map[string]any{"handles": newHandleViews(handles)}
		if err != nil {
			body["warning"] = err.Error()
		}
		writeJSON(w, http.StatusOK, body)
	}
}
