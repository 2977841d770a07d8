package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/pysugar/creator-insights/internal/platform"
	"gorm.io/gorm"
)

// Deps are the collaborators behind the API routes.
type Deps struct {
	DB         *gorm.DB
	Accounts   AccountStore
	Digger     Digger
	Insights   InsightsReader
	Exchangers map[platform.Platform]CodeExchanger
	// MaskAPIKey hides the middle of the API key in responses.
	MaskAPIKey bool
}

// Register mounts the API routes on r.
func Register(r chi.Router, d Deps) {
	r.Post("/api/accounts", CreateAccountHandler(d.Accounts))
	r.Route("/api/accounts/{id}", func(r chi.Router) {
		r.Get("/", GetAccountHandler(d.Accounts))
		r.Put("/privacy/{platform}", SetPrivacyHandler(d.Accounts))
		r.Get("/handles", ListHandlesHandler(d.Accounts))
		r.Post("/handles/{platform}", ConnectHandler(d.Digger, d.Exchangers))
		r.Post("/resync", ResyncHandler(d.Digger))
		r.Post("/refresh", RefreshInsightsHandler(d.Digger))
		r.Get("/insights", AccountInsightsHandler(d.Insights))
		r.Get("/insights/{platform}", PlatformInsightsHandler(d.Insights))
	})
	r.Get("/api/handles/{id}/insights", HandleInsightsHandler(d.Insights))

	if d.DB != nil {
		r.Get("/api/config/apikey", GetAPIKeyHandler(d.DB, d.MaskAPIKey))
		r.Post("/api/config/apikey/regenerate", RegenerateAPIKeyHandler(d.DB, d.MaskAPIKey))
	}
}
