package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-connections/core"
)

type userDocument struct {
	ID          string            `bson:"_id"`
	UID         string            `bson:"uid"`
	Name        string            `bson:"name"`
	Email       string            `bson:"email"`
	Image       string            `bson:"image"`
	Settings    core.Settings     `bson:"settings"`
	Connections []core.Connection `bson:"connections"`
	Version     int64             `bson:"version"`
	CreatedAt   time.Time         `bson:"createdAt"`
	UpdatedAt   time.Time         `bson:"updatedAt"`
}

func (d userDocument) toDomain(ctx context.Context, vault core.CredentialVault) (core.User, error) {
	connections, err := core.OpenConnections(ctx, vault, d.Connections)
	if err != nil {
		return core.User{}, err
	}
	return core.User{
		UID:         d.UID,
		Name:        d.Name,
		Email:       d.Email,
		Image:       d.Image,
		Settings:    d.Settings,
		Connections: connections,
		Version:     d.Version,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}

// latestBinder picks the holder whose connection to the resource has the
// latest connectedAt. Ties keep the first holder in the given order.
func latestBinder(holders []userDocument, provider core.ProviderKind, resourceID string) (string, bool) {
	var (
		owner   string
		boundAt time.Time
		found   bool
	)
	for _, holder := range holders {
		for _, connection := range holder.Connections {
			if connection.Provider != provider || connection.ResourceID() != resourceID {
				continue
			}
			var at time.Time
			if connection.ConnectedAt != nil {
				at = *connection.ConnectedAt
			}
			if !found || at.After(boundAt) {
				owner, boundAt, found = holder.UID, at, true
			}
		}
	}
	return owner, found
}

// resourceField is the embedded connection key webhooks correlate on.
func resourceField(provider core.ProviderKind) (string, error) {
	switch provider {
	case core.ProviderFacebook:
		return "pageId", nil
	case core.ProviderWhatsApp:
		return "phoneNumberId", nil
	default:
		return "", fmt.Errorf("mongostore: unsupported provider %q", provider)
	}
}

func correlationField(field string) (string, error) {
	switch field {
	case core.CorrelationLastSenderPSID, core.CorrelationLastCustomerWaID:
		return field, nil
	default:
		return "", fmt.Errorf("mongostore: unsupported correlation field %q", field)
	}
}
