package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"wallet-pass-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	// Artifact lifecycle. EnsureArtifact and TouchArtifact are the hooks the
	// host application calls after creating or updating its domain record.
	FindArtifact(ctx context.Context, family, typeIdentifier, serial string) (*model.Artifact, error)
	EnsureArtifact(ctx context.Context, family, typeIdentifier, serial string) (*model.Artifact, error)
	TouchArtifact(ctx context.Context, artifactID string) error

	FindOrCreateDevice(ctx context.Context, libraryIdentifier, pushToken string) (*model.Device, error)

	FindRegistration(ctx context.Context, family, libraryIdentifier, typeIdentifier, serial string) (*model.Registration, error)
	RegistrationsForDevice(ctx context.Context, family, libraryIdentifier, typeIdentifier string, updatedSince time.Time) ([]model.Registration, error)
	RegistrationsForArtifact(ctx context.Context, artifactID string) ([]model.Registration, error)
	CreateRegistrationIfAbsent(ctx context.Context, deviceID int64, artifactID string) (bool, error)
	DeleteRegistration(ctx context.Context, registrationID int64) error
	DeleteDeviceAndRegistrations(ctx context.Context, deviceID int64) error

	CreateErrorLogs(ctx context.Context, messages []string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// FindArtifact resolves an artifact by family, type identifier and serial.
func (s *gormStore) FindArtifact(ctx context.Context, family, typeIdentifier, serial string) (*model.Artifact, error) {
	var artifact model.Artifact
	err := s.db.WithContext(ctx).
		Where("family = ? AND type_identifier = ? AND id = ?", family, typeIdentifier, serial).
		First(&artifact).Error
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}

// EnsureArtifact creates the artifact row if it does not exist yet. The
// authentication token is generated exactly once, on the creating call. An
// empty serial gets a fresh UUID.
func (s *gormStore) EnsureArtifact(ctx context.Context, family, typeIdentifier, serial string) (*model.Artifact, error) {
	if serial == "" {
		serial = uuid.NewString()
	}

	artifact, err := s.FindArtifact(ctx, family, typeIdentifier, serial)
	if err == nil {
		return artifact, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := model.Artifact{
		ID:                  serial,
		Family:              family,
		TypeIdentifier:      typeIdentifier,
		AuthenticationToken: model.NewAuthenticationToken(),
	}
	if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, fmt.Errorf("failed to create artifact %s/%s: %w", typeIdentifier, serial, err)
	}
	return &created, nil
}

// TouchArtifact bumps the artifact's update timestamp so registered devices
// see it as changed. The caller is responsible for the push fan-out.
func (s *gormStore) TouchArtifact(ctx context.Context, artifactID string) error {
	res := s.db.WithContext(ctx).
		Model(&model.Artifact{}).
		Where("id = ?", artifactID).
		Update("updated_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindOrCreateDevice deduplicates on the exact (library identifier, push
// token) pair; a row is only created when no existing device matches both.
func (s *gormStore) FindOrCreateDevice(ctx context.Context, libraryIdentifier, pushToken string) (*model.Device, error) {
	var device model.Device
	err := s.db.WithContext(ctx).
		Where("library_identifier = ? AND push_token = ?", libraryIdentifier, pushToken).
		First(&device).Error
	if err == nil {
		return &device, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	device = model.Device{LibraryIdentifier: libraryIdentifier, PushToken: pushToken}
	if err := s.db.WithContext(ctx).Create(&device).Error; err != nil {
		return nil, fmt.Errorf("failed to create device %s: %w", libraryIdentifier, err)
	}
	return &device, nil
}

// FindRegistration resolves the registration joining a device (by library
// identifier) to an artifact (by family, type identifier and serial).
func (s *gormStore) FindRegistration(ctx context.Context, family, libraryIdentifier, typeIdentifier, serial string) (*model.Registration, error) {
	var registration model.Registration
	err := s.db.WithContext(ctx).
		Preload("Device").Preload("Artifact").
		Joins("JOIN devices ON devices.id = registrations.device_id").
		Joins("JOIN artifacts ON artifacts.id = registrations.artifact_id").
		Where("devices.library_identifier = ?", libraryIdentifier).
		Where("artifacts.family = ? AND artifacts.type_identifier = ? AND artifacts.id = ?", family, typeIdentifier, serial).
		First(&registration).Error
	if err != nil {
		return nil, err
	}
	return &registration, nil
}

// RegistrationsForDevice returns all registrations for a device under one type
// identifier, optionally restricted to artifacts updated after updatedSince.
// Device and artifact rows are loaded eagerly.
func (s *gormStore) RegistrationsForDevice(ctx context.Context, family, libraryIdentifier, typeIdentifier string, updatedSince time.Time) ([]model.Registration, error) {
	q := s.db.WithContext(ctx).
		Preload("Device").Preload("Artifact").
		Joins("JOIN devices ON devices.id = registrations.device_id").
		Joins("JOIN artifacts ON artifacts.id = registrations.artifact_id").
		Where("devices.library_identifier = ?", libraryIdentifier).
		Where("artifacts.family = ? AND artifacts.type_identifier = ?", family, typeIdentifier)
	if !updatedSince.IsZero() {
		q = q.Where("artifacts.updated_at > ?", updatedSince)
	}

	var registrations []model.Registration
	if err := q.Find(&registrations).Error; err != nil {
		return nil, err
	}
	return registrations, nil
}

// RegistrationsForArtifact returns every registration for one artifact with
// the device rows loaded, for push fan-out and token listing.
func (s *gormStore) RegistrationsForArtifact(ctx context.Context, artifactID string) ([]model.Registration, error) {
	var registrations []model.Registration
	err := s.db.WithContext(ctx).
		Preload("Device").Preload("Artifact").
		Where("artifact_id = ?", artifactID).
		Find(&registrations).Error
	if err != nil {
		return nil, err
	}
	return registrations, nil
}

// CreateRegistrationIfAbsent inserts the (device, artifact) pairing unless it
// already exists. Returns true when a new row was created. The existence check
// runs before the insert; the unique index only backs it up under concurrent
// duplicate attempts.
func (s *gormStore) CreateRegistrationIfAbsent(ctx context.Context, deviceID int64, artifactID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Registration{}).
		Where("device_id = ? AND artifact_id = ?", deviceID, artifactID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	registration := model.Registration{DeviceID: deviceID, ArtifactID: artifactID}
	if err := s.db.WithContext(ctx).Create(&registration).Error; err != nil {
		return false, fmt.Errorf("failed to create registration: %w", err)
	}
	return true, nil
}

// DeleteRegistration removes a single registration; the device stays.
func (s *gormStore) DeleteRegistration(ctx context.Context, registrationID int64) error {
	return s.db.WithContext(ctx).Delete(&model.Registration{}, registrationID).Error
}

// DeleteDeviceAndRegistrations removes a device together with every
// registration it holds. Used by the push-failure path when APNs reports the
// token as gone.
func (s *gormStore) DeleteDeviceAndRegistrations(ctx context.Context, deviceID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", deviceID).Delete(&model.Registration{}).Error; err != nil {
			return fmt.Errorf("failed to delete registrations for device %d: %w", deviceID, err)
		}
		if err := tx.Delete(&model.Device{}, deviceID).Error; err != nil {
			return fmt.Errorf("failed to delete device %d: %w", deviceID, err)
		}
		return nil
	})
}

// CreateErrorLogs persists one entry per reported line, preserving order.
func (s *gormStore) CreateErrorLogs(ctx context.Context, messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	entries := make([]model.ErrorLog, len(messages))
	for i, msg := range messages {
		entries[i] = model.ErrorLog{Message: msg}
	}
	return s.db.WithContext(ctx).Create(&entries).Error
}
