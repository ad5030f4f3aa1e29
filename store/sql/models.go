package sqlstore

import (
	"context"
	"time"

	"github.com/goliatone/go-connections/core"
	"github.com/uptrace/bun"
)

// userRecord keeps connections embedded as a JSON document. Token fields in
// the document are always sealed.
type userRecord struct {
	bun.BaseModel `bun:"table:connection_users,alias:cu"`

	ID          string            `bun:"id,pk"`
	UID         string            `bun:"uid,notnull"`
	Name        string            `bun:"name,notnull"`
	Email       string            `bun:"email,notnull"`
	Image       string            `bun:"image,notnull"`
	Settings    core.Settings     `bun:"settings,type:jsonb,notnull"`
	Connections []core.Connection `bun:"connections,type:jsonb,notnull"`
	Version     int64             `bun:"version,notnull"`
	CreatedAt   time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// resourceRecord indexes provider resource ids to the users holding them so
// webhook correlation does not scan JSON documents. Several users may hold the
// same resource; the one with the latest BoundAt owns it.
type resourceRecord struct {
	bun.BaseModel `bun:"table:connection_resources,alias:cr"`

	Provider   string    `bun:"provider,pk"`
	ResourceID string    `bun:"resource_id,pk"`
	UID        string    `bun:"uid,pk"`
	BoundAt    time.Time `bun:"bound_at,nullzero,notnull,default:current_timestamp"`
}

func newUserRecord(id string, in core.RegisterUserInput, defaults core.Settings, now time.Time) *userRecord {
	return &userRecord{
		ID:          id,
		UID:         in.UID,
		Name:        in.Name,
		Email:       in.Email,
		Image:       in.Image,
		Settings:    defaults,
		Connections: []core.Connection{},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *userRecord) toDomain(ctx context.Context, vault core.CredentialVault) (core.User, error) {
	if r == nil {
		return core.User{}, nil
	}
	connections, err := core.OpenConnections(ctx, vault, r.Connections)
	if err != nil {
		return core.User{}, err
	}
	return core.User{
		UID:         r.UID,
		Name:        r.Name,
		Email:       r.Email,
		Image:       r.Image,
		Settings:    r.Settings,
		Connections: connections,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}, nil
}

func resourceRecordsFor(record *userRecord, now time.Time) []resourceRecord {
	out := make([]resourceRecord, 0, len(record.Connections))
	for _, connection := range record.Connections {
		resourceID := connection.ResourceID()
		if resourceID == "" {
			continue
		}
		boundAt := now
		if connection.ConnectedAt != nil {
			boundAt = connection.ConnectedAt.UTC()
		}
		out = append(out, resourceRecord{
			Provider:   string(connection.Provider),
			ResourceID: resourceID,
			UID:        record.UID,
			BoundAt:    boundAt,
		})
	}
	return out
}
