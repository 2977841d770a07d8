// Package db opens the SQLite store and owns the small key/value settings
// kept next to the domain tables.
package db

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const apiKeyConfigKey = "api_key"

// InitDB opens the SQLite database at dbPath and runs migrations.
func InitDB(dbPath string, verbose bool) (*gorm.DB, error) {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(withPragmas(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	if _, err := ensureAPIKey(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.SocialMediaHandle{},
		&models.MetricDocument{},
		&models.Config{},
	)
}

// withPragmas turns on WAL and a busy timeout so the scheduler and API
// handlers can share the file.
func withPragmas(dbPath string) string {
	if strings.Contains(dbPath, "_pragma=") || strings.Contains(dbPath, ":memory:") {
		return dbPath
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// ensureAPIKey generates the API key on first run.
func ensureAPIKey(db *gorm.DB) (string, error) {
	var config models.Config
	err := db.Where("key = ?", apiKeyConfigKey).First(&config).Error
	if err == nil {
		return config.Value, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	apiKey := newAPIKey()
	if err := db.Create(&models.Config{Key: apiKeyConfigKey, Value: apiKey}).Error; err != nil {
		return "", err
	}
	logrus.WithField("prefix", apiKey[:7]).Info("generated new API key")
	return apiKey, nil
}

// GetAPIKey returns the stored API key, or "" if none exists.
func GetAPIKey(db *gorm.DB) string {
	var config models.Config
	db.Where("key = ?", apiKeyConfigKey).First(&config)
	return config.Value
}

// RegenerateAPIKey replaces the API key and returns the new one.
func RegenerateAPIKey(db *gorm.DB) (string, error) {
	apiKey := newAPIKey()
	res := db.Model(&models.Config{}).Where("key = ?", apiKeyConfigKey).Update("value", apiKey)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		if err := db.Create(&models.Config{Key: apiKeyConfigKey, Value: apiKey}).Error; err != nil {
			return "", err
		}
	}
	logrus.WithField("prefix", apiKey[:7]).Info("regenerated API key")
	return apiKey, nil
}

// newAPIKey returns sk-<32 hex chars>.
func newAPIKey() string {
	keyBytes := make([]byte, 16)
	_, _ = rand.Read(keyBytes)
	return "sk-" + hex.EncodeToString(keyBytes)
}
