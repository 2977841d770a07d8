package models

import (
	"time"

	"gorm.io/datatypes"
)

// MetricDocument is the persisted form of one handle's metric window. Metrics
// holds metric -> day -> key -> value, MetaData holds totals and prev_totals.
type MetricDocument struct {
	ID        string    `gorm:"primaryKey"` // UUID
	HandleID  string    `gorm:"index:idx_handle_window,priority:1;not null"`
	Platform  string    `gorm:"index;not null"`
	CreatedOn time.Time `gorm:"index:idx_handle_window,priority:2;not null"`
	ExpiredOn time.Time `gorm:"index;not null"`
	Metrics   datatypes.JSON
	MetaData  datatypes.JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}
