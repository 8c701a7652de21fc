package model

import (
	"time"

	"gorm.io/gorm"
)

// Backpack represents a GPS-equipped backpack tracker
type Backpack struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Serial       string         `json:"serial" gorm:"uniqueIndex;size:32"` // printed on the backpack tag
	Label        string         `json:"label" gorm:"size:100"`
	Status       int            `json:"status" gorm:"default:1"` // 0: inactive, 1: active
	Battery      *int           `json:"battery,omitempty"`       // percent, last reported
	LastReportAt *time.Time     `json:"last_report_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

// BackpackShadow represents the real-time state of a backpack (stored in Redis)
type BackpackShadow struct {
	Serial    string  `json:"serial"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Battery   int     `json:"battery"`
	Timestamp int64   `json:"ts"`
}

// Position represents an immutable GPS reading for a backpack
type Position struct {
	Time       time.Time `json:"time" gorm:"primaryKey"`
	BackpackID string    `json:"backpack_id" gorm:"primaryKey;size:32"` // backpack serial
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Battery    *int      `json:"battery,omitempty"`
	Extras     JSONMap   `json:"extras,omitempty" gorm:"type:jsonb"`
}

// JSONMap is a helper type for JSONB fields
type JSONMap map[string]interface{}

// ImportResult summarizes an Excel backpack import
type ImportResult struct {
	TaskID   string   `json:"task_id"`
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}
