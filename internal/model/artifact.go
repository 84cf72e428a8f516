package model

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Artifact is a single Wallet pass or order tracked for update delivery.
// The authentication token is generated once at creation and never rewritten.
type Artifact struct {
	ID                  string `gorm:"primaryKey;size:64"`
	Family              string `gorm:"size:8;not null;index:idx_artifact_lookup"`
	TypeIdentifier      string `gorm:"size:256;not null;index:idx_artifact_lookup"`
	AuthenticationToken string `gorm:"size:64;not null"`
	CreatedAt           time.Time
	UpdatedAt           time.Time `gorm:"not null;index"`

	// Associations
	Registrations []Registration `gorm:"foreignKey:ArtifactID"`
}

// NewAuthenticationToken returns a fresh random bearer token for an artifact.
func NewAuthenticationToken() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
