package models

import (
	"time"

	"gorm.io/datatypes"
)

// PrivateMetrics maps a platform to the metric names the account owner hides
// from other viewers.
type PrivateMetrics map[string][]string

// Account is a creator account owning social media handles.
type Account struct {
	ID             string `gorm:"primaryKey"` // UUID
	Username       string `gorm:"uniqueIndex;size:25;not null"`
	EntityType     string
	Description    string
	Avatar         string
	IsDisabled     bool                               `gorm:"default:false"`
	PrivateMetrics datatypes.JSONType[PrivateMetrics] // platform -> [metric]
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PrivateFor returns the private metric names for platform.
func (a *Account) PrivateFor(platform string) []string {
	return a.PrivateMetrics.Data()[platform]
}
