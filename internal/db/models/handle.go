package models

import (
	"time"

	"gorm.io/datatypes"
)

// SocialMediaHandle is one external platform account connected to an Account.
// Handles are never deleted by the digger, only disabled.
type SocialMediaHandle struct {
	ID        string `gorm:"primaryKey"` // UUID
	AccountID string `gorm:"index;not null"`
	Platform  string `gorm:"uniqueIndex:idx_platform_uid;not null"`
	HandleUID string `gorm:"uniqueIndex:idx_platform_uid;not null"` // platform side id
	HandleURL string
	Username  string
	Avatar    string

	AccessToken             string
	RefreshToken            string
	IsRefreshTokenDependent bool
	TokenExpiresAt          time.Time

	FollowerCount int64
	MediaCount    int64
	MetaData      datatypes.JSONMap // platform specific profile fields

	IsDisabled    bool `gorm:"default:false;index"`
	LastTokenUse  *time.Time
	LastSyncedAt  *time.Time
	LastSyncError string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TokenExpired reports whether the access token must be refreshed at now.
func (h *SocialMediaHandle) TokenExpired(now time.Time) bool {
	return !h.TokenExpiresAt.IsZero() && !now.Before(h.TokenExpiresAt)
}
