// Package accounts persists creator accounts and their connected handles.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/platform"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository reads and writes accounts and handles.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns a Repository backed by db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateAccount registers a new account under username.
func (r *Repository) CreateAccount(ctx context.Context, username, entityType string) (*models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	acc := &models.Account{
		ID:             uuid.New().String(),
		Username:       username,
		EntityType:     entityType,
		PrivateMetrics: datatypes.NewJSONType(models.PrivateMetrics{}),
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Account{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAccountAlreadyExists
		}
		return tx.Create(acc).Error
	})
	if isUniqueViolation(err) {
		return nil, ErrAccountAlreadyExists
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// GetAccount loads an account by id.
func (r *Repository) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var acc models.Account
	if err := r.db.WithContext(ctx).First(&acc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountDoesNotExist
		}
		return nil, err
	}
	return &acc, nil
}

// GetAccountByUsername loads an account by username.
func (r *Repository) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	var acc models.Account
	if err := r.db.WithContext(ctx).First(&acc, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountDoesNotExist
		}
		return nil, err
	}
	return &acc, nil
}

// SetPrivateMetrics replaces the private metric list of one platform.
func (r *Repository) SetPrivateMetrics(ctx context.Context, accountID string, p platform.Platform, metrics []string) (*models.Account, error) {
	acc, err := r.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	private := models.PrivateMetrics{}
	for k, v := range acc.PrivateMetrics.Data() {
		private[k] = v
	}
	cleaned := make([]string, 0, len(metrics))
	for _, m := range metrics {
		if m = strings.TrimSpace(m); m != "" {
			cleaned = append(cleaned, m)
		}
	}
	if len(cleaned) == 0 {
		delete(private, p.String())
	} else {
		private[p.String()] = cleaned
	}
	acc.PrivateMetrics = datatypes.NewJSONType(private)
	if err := r.db.WithContext(ctx).Model(acc).Update("private_metrics", acc.PrivateMetrics).Error; err != nil {
		return nil, err
	}
	return acc, nil
}

// ListAccountIDs returns the ids of enabled accounts with at least one
// enabled handle.
func (r *Repository) ListAccountIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.SocialMediaHandle{}).
		Joins("JOIN accounts ON accounts.id = social_media_handles.account_id").
		Where("social_media_handles.is_disabled = ? AND accounts.is_disabled = ?", false, false).
		Distinct().
		Order("social_media_handles.account_id").
		Pluck("social_media_handles.account_id", &ids).Error
	return ids, err
}

// ListHandles returns the enabled handles of an account. An empty platform
// matches every platform.
func (r *Repository) ListHandles(ctx context.Context, accountID string, p platform.Platform) ([]models.SocialMediaHandle, error) {
	q := r.db.WithContext(ctx).Where("account_id = ? AND is_disabled = ?", accountID, false)
	if p != "" {
		q = q.Where("platform = ?", p.String())
	}
	var handles []models.SocialMediaHandle
	if err := q.Order("created_at").Find(&handles).Error; err != nil {
		return nil, err
	}
	return handles, nil
}

// GetHandle loads a handle by id.
func (r *Repository) GetHandle(ctx context.Context, id string) (*models.SocialMediaHandle, error) {
	var h models.SocialMediaHandle
	if err := r.db.WithContext(ctx).First(&h, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSocialMediaHandle
		}
		return nil, err
	}
	return &h, nil
}

// HandlesByUID returns the existing handles of p keyed by platform uid.
func (r *Repository) HandlesByUID(ctx context.Context, p platform.Platform, uids []string) (map[string]models.SocialMediaHandle, error) {
	out := make(map[string]models.SocialMediaHandle, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	var handles []models.SocialMediaHandle
	if err := r.db.WithContext(ctx).Where("platform = ? AND handle_uid IN ?", p.String(), uids).Find(&handles).Error; err != nil {
		return nil, err
	}
	for _, h := range handles {
		out[h.HandleUID] = h
	}
	return out, nil
}

// CreateHandles inserts new handles in one transaction.
func (r *Repository) CreateHandles(ctx context.Context, handles []*models.SocialMediaHandle) error {
	if len(handles) == 0 {
		return nil
	}
	for _, h := range handles {
		if h.ID == "" {
			h.ID = uuid.New().String()
		}
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(handles).Error
	})
	if isUniqueViolation(err) {
		return ErrHandleAlreadyExists
	}
	return err
}

// handleWritableFields are the columns the digger refreshes.
var handleWritableFields = []string{
	"access_token", "refresh_token", "is_refresh_token_dependent", "token_expires_at",
	"username", "avatar", "handle_url", "follower_count", "media_count", "meta_data",
	"is_disabled", "last_token_use", "last_synced_at", "last_sync_error",
}

// BulkUpdateHandles writes the token and profile columns of every handle in
// one transaction.
func (r *Repository) BulkUpdateHandles(ctx context.Context, handles []models.SocialMediaHandle) error {
	if len(handles) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range handles {
			h := &handles[i]
			if err := tx.Model(h).Select(handleWritableFields).Updates(h).Error; err != nil {
				return fmt.Errorf("update handle %s: %w", h.ID, err)
			}
		}
		return nil
	})
}

// DisableHandle soft-disables a handle.
func (r *Repository) DisableHandle(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.SocialMediaHandle{}).Where("id = ?", id).Update("is_disabled", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoSocialMediaHandle
	}
	return nil
}

// HandlesWithExpiringTokens returns enabled handles whose token expires
// before deadline.
func (r *Repository) HandlesWithExpiringTokens(ctx context.Context, deadline time.Time) ([]models.SocialMediaHandle, error) {
	var handles []models.SocialMediaHandle
	err := r.db.WithContext(ctx).
		Where("is_disabled = ? AND token_expires_at < ?", false, deadline).
		Order("token_expires_at").
		Find(&handles).Error
	return handles, err
}
