package model

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// AlertType classifies an alert
type AlertType string

const (
	AlertTypeZoneExit   AlertType = "ZONE_EXIT"
	AlertTypeOffline    AlertType = "OFFLINE"
	AlertTypeLowBattery AlertType = "LOW_BATTERY"
)

// AlertStatus is the read state toggled from the notifications screen
type AlertStatus string

const (
	AlertStatusUnread AlertStatus = "unread"
	AlertStatusRead   AlertStatus = "read"
)

// Alert is a persisted notification record for a guardian
type Alert struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	Type       AlertType   `json:"type" gorm:"size:20;not null;index"`
	BackpackID string      `json:"backpack_id" gorm:"size:32;not null;index"`
	ChildName  string      `json:"child_name" gorm:"size:100"`
	ZoneID     *uint       `json:"zone_id,omitempty"`
	ZoneName   string      `json:"zone_name" gorm:"size:100"`
	Message    string      `json:"message" gorm:"type:text"`
	Lat        *float64    `json:"lat,omitempty"`
	Lon        *float64    `json:"lon,omitempty"`
	Distance   *float64    `json:"distance,omitempty"` // meters from zone center at trigger time
	Status     AlertStatus `json:"status" gorm:"size:10;not null;default:'unread';index"`
	CreatedAt  time.Time   `json:"created_at" gorm:"not null;index"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

// AlertRule gates alert creation per type. Conditions is type-specific
// JSON, e.g. {"offline_minutes": 10} or {"battery_below": 20}.
type AlertRule struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	Type         AlertType       `json:"type" gorm:"size:20;not null;uniqueIndex"`
	Enabled      bool            `json:"enabled" gorm:"not null;default:true"`
	AllBackpacks bool            `json:"all_backpacks" gorm:"not null;default:true"`
	BackpackIDs  pq.Int64Array   `json:"backpack_ids,omitempty" gorm:"type:bigint[]"`
	Conditions   json.RawMessage `json:"conditions" gorm:"type:jsonb;default:'{}'"`
	SilenceUntil *time.Time      `json:"silence_until,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (AlertRule) TableName() string {
	return "alert_rules"
}

// AlertMessage is the wire form published to NATS and pushed over WebSocket
type AlertMessage struct {
	Type       AlertType `json:"type"`
	BackpackID string    `json:"backpack_id"`
	ChildName  string    `json:"child_name,omitempty"`
	ZoneID     *uint     `json:"zone_id,omitempty"`
	ZoneName   string    `json:"zone_name,omitempty"`
	Message    string    `json:"message"`
	Lat        *float64  `json:"lat,omitempty"`
	Lon        *float64  `json:"lon,omitempty"`
	Distance   *float64  `json:"distance,omitempty"`
	Timestamp  int64     `json:"timestamp"`
}

// AlertListQuery are the filters accepted by the alert list endpoint
type AlertListQuery struct {
	BackpackID string      `form:"backpack_id"`
	Type       AlertType   `form:"type"`
	Status     AlertStatus `form:"status"`
	Page       int         `form:"page,default=1"`
	PageSize   int         `form:"page_size,default=20"`
}

// BatchReadRequest marks a set of alerts as read
type BatchReadRequest struct {
	IDs []uint `json:"ids" binding:"required"`
}
