package model

import "time"

// Device is a Wallet client that registered for updates. The library
// identifier alone is not unique; the (library identifier, push token) pair is
// the dedup key at registration time.
type Device struct {
	ID                int64  `gorm:"primaryKey"`
	LibraryIdentifier string `gorm:"size:256;not null;index:idx_device_dedup"`
	PushToken         string `gorm:"size:256;not null;index:idx_device_dedup"`
	CreatedAt         time.Time
}
