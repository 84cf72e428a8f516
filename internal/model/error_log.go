package model

import "time"

// ErrorLog is an opaque diagnostic line reported by a Wallet client.
type ErrorLog struct {
	ID        int64     `gorm:"primaryKey"`
	Message   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}
