package push

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"

	"wallet-pass-backend/config"
	"wallet-pass-backend/internal/model"
	"wallet-pass-backend/internal/store"
)

// Sender delivers one APNs notification. *apns2.Client satisfies it; tests
// substitute a fake.
type Sender interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// NewAPNSClient builds a certificate-authenticated APNs client from the same
// signing material used for bundles, which is how Wallet update pushes are
// authorized.
func NewAPNSClient(cfg *config.WalletConfig, production bool) (*apns2.Client, error) {
	certPEM, err := os.ReadFile(cfg.CertificatePath())
	if err != nil {
		return nil, fmt.Errorf("failed to read push certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(cfg.KeyPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read push key: %w", err)
	}

	cert, err := certificate.FromPemBytes(append(certPEM, keyPEM...), cfg.KeyPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to load push certificate: %w", err)
	}

	client := apns2.NewClient(cert)
	if production {
		return client.Production(), nil
	}
	return client.Development(), nil
}

// Dispatcher fans out update notifications to every device registered for an
// artifact and removes devices whose tokens APNs reports as gone.
type Dispatcher struct {
	store  store.Store
	sender Sender
}

// NewDispatcher creates a dispatcher on top of the given sender.
func NewDispatcher(s store.Store, sender Sender) *Dispatcher {
	return &Dispatcher{store: s, sender: sender}
}

// SendUpdates sends one content-empty background notification per
// registration, topic set to the artifact's type identifier, immediate
// non-collapsed delivery. A BadDeviceToken or Unregistered response deletes
// the device and all its registrations; any other failure is collected per
// registration and does not stop the remaining sends.
func (d *Dispatcher) SendUpdates(ctx context.Context, artifact *model.Artifact) error {
	registrations, err := d.store.RegistrationsForArtifact(ctx, artifact.ID)
	if err != nil {
		return fmt.Errorf("failed to load registrations for %s: %w", artifact.ID, err)
	}

	var errs []error
	for _, registration := range registrations {
		notification := &apns2.Notification{
			DeviceToken: registration.Device.PushToken,
			Topic:       artifact.TypeIdentifier,
			Payload:     []byte("{}"),
			PushType:    apns2.PushTypeBackground,
			Expiration:  time.Unix(0, 0),
		}

		res, err := d.sender.Push(notification)
		if err != nil {
			errs = append(errs, fmt.Errorf("push to device %d: %w", registration.DeviceID, err))
			continue
		}
		if res.Sent() {
			continue
		}

		switch res.Reason {
		case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered:
			log.Printf("APNs rejected token for device %d (%s); removing device and registrations", registration.DeviceID, res.Reason)
			if err := d.store.DeleteDeviceAndRegistrations(ctx, registration.DeviceID); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove device %d: %w", registration.DeviceID, err))
			}
		default:
			errs = append(errs, fmt.Errorf("push to device %d rejected: %s", registration.DeviceID, res.Reason))
		}
	}
	return errors.Join(errs...)
}

// PushTokens lists the push tokens of all devices registered for an artifact.
func (d *Dispatcher) PushTokens(ctx context.Context, artifactID string) ([]string, error) {
	registrations, err := d.store.RegistrationsForArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(registrations))
	for _, registration := range registrations {
		tokens = append(tokens, registration.Device.PushToken)
	}
	return tokens, nil
}
