package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultMaxAttempts bounds the versioned write loop before a conflict is
// reported.
const DefaultMaxAttempts = 5

var errStaleVersion = errors.New("sqlstore: stale user version")

// UserStore persists users with their embedded connections. Every mutation is
// a read-modify-write guarded by the version column.
type UserStore struct {
	db          *bun.DB
	repo        repository.Repository[*userRecord]
	vault       core.CredentialVault
	maxAttempts int
	now         func() time.Time
	newID       func() string

	// beforeWrite runs inside the write transaction; tests use it to force
	// version races.
	beforeWrite func(ctx context.Context, tx bun.Tx, uid string) error
}

type Option func(*UserStore)

func WithMaxAttempts(attempts int) Option {
	return func(s *UserStore) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *UserStore) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *UserStore) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func NewUserStore(db *bun.DB, vault core.CredentialVault, opts ...Option) (*UserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if vault == nil {
		return nil, fmt.Errorf("sqlstore: credential vault is required")
	}
	repo := repository.NewRepository[*userRecord](db, userHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid user repository wiring: %w", err)
		}
	}
	store := &UserStore{
		db:          db,
		repo:        repo,
		vault:       vault,
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *UserStore) FindByUID(ctx context.Context, uid string) (core.User, error) {
	if s == nil || s.db == nil {
		return core.User{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	uid = strings.TrimSpace(uid)
	record, err := findUserByUID(ctx, s.db, uid)
	if err != nil {
		return core.User{}, err
	}
	if record == nil {
		return core.User{}, core.UserNotFoundError(uid)
	}
	return record.toDomain(ctx, s.vault)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (core.User, error) {
	if s == nil || s.repo == nil {
		return core.User{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	email = normalizeEmail(email)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("email", "=", email),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return core.User{}, err
	}
	if len(records) == 0 {
		return core.User{}, core.NotFoundError("connections: user not found", map[string]any{"email": email})
	}
	return records[0].toDomain(ctx, s.vault)
}

// UpsertOnInsert creates the user unless the email is already registered, in
// which case the stored record is returned unchanged.
func (s *UserStore) UpsertOnInsert(ctx context.Context, in core.RegisterUserInput, defaults core.Settings) (core.User, bool, error) {
	if s == nil || s.repo == nil {
		return core.User{}, false, fmt.Errorf("sqlstore: user store is not configured")
	}
	in.UID = strings.TrimSpace(in.UID)
	in.Email = normalizeEmail(in.Email)
	if in.UID == "" || in.Email == "" {
		return core.User{}, false, fmt.Errorf("sqlstore: uid and email are required")
	}

	existing, err := s.FindByEmail(ctx, in.Email)
	if err == nil {
		return existing, false, nil
	}
	if !core.HasTextCode(err, core.ErrorNotFound) {
		return core.User{}, false, err
	}

	record := newUserRecord(s.newID(), in, defaults, s.now())
	created, createErr := s.repo.Create(ctx, record)
	if createErr != nil {
		// a concurrent registration for the same email wins the unique index
		if winner, findErr := s.FindByEmail(ctx, in.Email); findErr == nil {
			return winner, false, nil
		}
		return core.User{}, false, createErr
	}
	user, err := created.toDomain(ctx, s.vault)
	if err != nil {
		return core.User{}, false, err
	}
	return user, true, nil
}

func (s *UserStore) ReplaceConnection(ctx context.Context, uid string, connection core.Connection) (core.User, error) {
	if s == nil || s.db == nil {
		return core.User{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	sealed, err := core.SealConnection(ctx, s.vault, connection)
	if err != nil {
		return core.User{}, err
	}
	record, _, err := s.mutate(ctx, uid, true, func(record *userRecord) (bool, error) {
		record.Connections = core.ReplaceConnection(record.Connections, sealed)
		return true, nil
	})
	if err != nil {
		return core.User{}, err
	}
	return record.toDomain(ctx, s.vault)
}

func (s *UserStore) RemoveConnection(ctx context.Context, uid string, provider core.ProviderKind) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: user store is not configured")
	}
	_, removed, err := s.mutate(ctx, uid, true, func(record *userRecord) (bool, error) {
		next, removed := core.RemoveConnection(record.Connections, provider)
		if !removed {
			return false, nil
		}
		record.Connections = next
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// UpdateCorrelation writes a correlation field on the connection bound to the
// provider resource. It reports false when no user owns the resource.
func (s *UserStore) UpdateCorrelation(ctx context.Context, provider core.ProviderKind, resourceID string, field string, value string, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: user store is not configured")
	}
	uid, found, err := s.ResourceOwner(ctx, provider, resourceID)
	if err != nil || !found {
		return false, err
	}
	_, updated, err := s.mutate(ctx, uid, false, func(record *userRecord) (bool, error) {
		for index := range record.Connections {
			connection := &record.Connections[index]
			if connection.Provider != provider || connection.ResourceID() != resourceID {
				continue
			}
			if err := core.ApplyCorrelation(connection, field, value, at); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		if core.HasTextCode(err, core.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	return updated, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, uid string, update core.ProfileUpdate) (core.User, error) {
	if s == nil || s.db == nil {
		return core.User{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	record, _, err := s.mutate(ctx, uid, false, func(record *userRecord) (bool, error) {
		if update.Name != nil {
			record.Name = *update.Name
		}
		if update.Image != nil {
			record.Image = *update.Image
		}
		if update.Settings != nil {
			record.Settings = *update.Settings
		}
		return true, nil
	})
	if err != nil {
		return core.User{}, err
	}
	return record.toDomain(ctx, s.vault)
}

// ResourceOwner returns the uid that bound the resource most recently.
func (s *UserStore) ResourceOwner(ctx context.Context, provider core.ProviderKind, resourceID string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: user store is not configured")
	}
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return "", false, nil
	}
	record := &resourceRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider = ?", string(provider)).
		Where("?TableAlias.resource_id = ?", resourceID).
		OrderExpr("?TableAlias.bound_at DESC, ?TableAlias.uid ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return record.UID, true, nil
}

func (s *UserStore) mutate(
	ctx context.Context,
	uid string,
	reindex bool,
	apply func(record *userRecord) (bool, error),
) (*userRecord, bool, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, false, core.ValidationError("uid", "uid is required")
	}
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var (
			result  *userRecord
			changed bool
		)
		err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			record, err := findUserByUID(ctx, tx, uid)
			if err != nil {
				return err
			}
			if record == nil {
				return core.UserNotFoundError(uid)
			}
			changed, err = apply(record)
			if err != nil {
				return err
			}
			result = record
			if !changed {
				return nil
			}
			if s.beforeWrite != nil {
				if err := s.beforeWrite(ctx, tx, uid); err != nil {
					return err
				}
			}
			return s.writeVersioned(ctx, tx, record, reindex)
		})
		if errors.Is(err, errStaleVersion) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return result, changed, nil
	}
	return nil, false, core.ConflictError("connections: user was modified concurrently", map[string]any{
		"uid":      uid,
		"attempts": s.maxAttempts,
	})
}

func (s *UserStore) writeVersioned(ctx context.Context, tx bun.Tx, record *userRecord, reindex bool) error {
	expected := record.Version
	now := s.now().UTC()
	record.Version = expected + 1
	record.UpdatedAt = now
	if record.Connections == nil {
		record.Connections = []core.Connection{}
	}

	res, err := tx.NewUpdate().
		Model(record).
		Column("name", "image", "settings", "connections", "version", "updated_at").
		Where("uid = ?", record.UID).
		Where("version = ?", expected).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errStaleVersion
	}
	if !reindex {
		return nil
	}
	return syncResources(ctx, tx, record, now)
}

// syncResources rewrites this user's rows in the resource index. Rows of
// other users are never touched, so when the latest binder lets go of a
// resource an earlier holder owns it again.
func syncResources(ctx context.Context, tx bun.Tx, record *userRecord, now time.Time) error {
	rows := resourceRecordsFor(record, now)
	stale := tx.NewDelete().
		Model((*resourceRecord)(nil)).
		Where("uid = ?", record.UID)
	for _, row := range rows {
		stale = stale.Where("NOT (provider = ? AND resource_id = ?)", row.Provider, row.ResourceID)
	}
	if _, err := stale.Exec(ctx); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	_, err := tx.NewInsert().
		Model(&rows).
		On("CONFLICT (provider, resource_id, uid) DO UPDATE").
		Set("bound_at = EXCLUDED.bound_at").
		Exec(ctx)
	return err
}

func findUserByUID(ctx context.Context, db bun.IDB, uid string) (*userRecord, error) {
	record := &userRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.uid = ?", uid).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if record.Connections == nil {
		record.Connections = []core.Connection{}
	}
	return record, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
