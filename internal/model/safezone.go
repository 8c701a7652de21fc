package model

import (
	"time"

	"gorm.io/gorm"
)

// Safe zone limits. The mobile app exposes the radius as a 50-1000 m
// slider with 150 m preselected, and caps zones at five per backpack.
const (
	MaxZonesPerBackpack = 5
	MinZoneRadiusMeters = 50
	MaxZoneRadiusMeters = 1000
	DefaultZoneRadius   = 150
)

// SafeZone represents a circular safe area configured for a backpack
type SafeZone struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	BackpackID string         `json:"backpack_id" gorm:"size:32;not null;index"` // backpack serial
	Name       string         `json:"name" gorm:"size:100"`
	Lat        float64        `json:"lat" gorm:"not null"`
	Lon        float64        `json:"lon" gorm:"not null"`
	Radius     float64        `json:"radius" gorm:"not null"` // meters
	Status     int            `json:"status" gorm:"default:1"` // 0: inactive, 1: active
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// CreateZoneRequest represents a safe zone creation
type CreateZoneRequest struct {
	Name   string   `json:"name"`
	Lat    *float64 `json:"lat" binding:"required"`
	Lon    *float64 `json:"lon" binding:"required"`
	Radius *float64 `json:"radius"` // defaults to DefaultZoneRadius
}

// UpdateZoneRequest represents editable safe zone fields
type UpdateZoneRequest struct {
	Name   *string  `json:"name"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Radius *float64 `json:"radius"`
	Status *int     `json:"status"`
}
