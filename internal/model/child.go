package model

import (
	"time"

	"gorm.io/gorm"
)

// Child represents a supervised child profile
type Child struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	Name       string         `json:"name" gorm:"size:100;not null"`
	Age        *int           `json:"age,omitempty"`
	School     string         `json:"school" gorm:"size:100"`
	Period     string         `json:"period" gorm:"size:20"` // morning, afternoon, full-time
	PhotoURL   string         `json:"photo_url" gorm:"size:500"`
	UserID     uint           `json:"user_id" gorm:"not null;index"`
	User       *User          `json:"user,omitempty"`
	BackpackID *uint          `json:"backpack_id,omitempty"`
	Backpack   *Backpack      `json:"backpack,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// CreateChildRequest represents a child profile creation
type CreateChildRequest struct {
	Name           string `json:"name" binding:"required"`
	Age            *int   `json:"age"`
	School         string `json:"school"`
	Period         string `json:"period"`
	PhotoURL       string `json:"photo_url"`
	BackpackSerial string `json:"backpack_serial"` // optional, binds at creation
}

// UpdateChildRequest represents editable child profile fields
type UpdateChildRequest struct {
	Name     string `json:"name"`
	Age      *int   `json:"age"`
	School   string `json:"school"`
	Period   string `json:"period"`
	PhotoURL string `json:"photo_url"`
}

// BindBackpackRequest binds a child to a backpack by serial
type BindBackpackRequest struct {
	Serial string `json:"serial" binding:"required"`
}
