package model

import "time"

// Registration binds one device to one artifact for push updates. The unique
// index backs up the read-then-insert duplicate check at the storage layer.
type Registration struct {
	ID         int64  `gorm:"primaryKey"`
	DeviceID   int64  `gorm:"not null;uniqueIndex:idx_registration_pair"`
	ArtifactID string `gorm:"size:64;not null;uniqueIndex:idx_registration_pair"`
	CreatedAt  time.Time

	// Associations
	Device   Device   `gorm:"constraint:OnDelete:CASCADE"`
	Artifact Artifact `gorm:"constraint:OnDelete:CASCADE"`
}
