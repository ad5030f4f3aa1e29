package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMaxAttempts bounds the versioned write loop.
const DefaultMaxAttempts = 5

type UserStore struct {
	users       *mongo.Collection
	vault       core.CredentialVault
	maxAttempts int
	now         func() time.Time
	newID       func() string
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

func WithCollection(name string) Option {
	return func(s *UserStore) {
		if name = strings.TrimSpace(name); name != "" && s.users != nil {
			s.users = s.users.Database().Collection(name)
		}
	}
}

// NewUserStore binds the users collection and ensures its indexes.
func NewUserStore(ctx context.Context, db *mongo.Database, vault core.CredentialVault, opts ...Option) (*UserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("mongostore: database is required")
	}
	if vault == nil {
		return nil, fmt.Errorf("mongostore: credential vault is required")
	}
	store := &UserStore{
		users:       db.Collection(DefaultCollection),
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
	if err := store.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// NewFromConfig dials store.mongo_uri and opens store.database.
func NewFromConfig(ctx context.Context, cfg core.StoreConfig, vault core.CredentialVault, opts ...Option) (*UserStore, *mongo.Client, error) {
	client, err := Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	store, err := NewUserStore(ctx, client.Database(databaseName(cfg.Database)), vault, opts...)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return store, client, nil
}

func (s *UserStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "uid", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "connections.provider", Value: 1}, {Key: "connections.pageId", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "connections.provider", Value: 1}, {Key: "connections.phoneNumberId", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("mongostore: create indexes: %w", err)
	}
	return nil
}

func (s *UserStore) FindByUID(ctx context.Context, uid string) (core.User, error) {
	uid = strings.TrimSpace(uid)
	doc, err := s.findOne(ctx, bson.M{"uid": uid})
	if err != nil {
		return core.User{}, err
	}
	if doc == nil {
		return core.User{}, core.UserNotFoundError(uid)
	}
	return doc.toDomain(ctx, s.vault)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (core.User, error) {
	email = normalizeEmail(email)
	doc, err := s.findOne(ctx, bson.M{"email": email})
	if err != nil {
		return core.User{}, err
	}
	if doc == nil {
		return core.User{}, core.NotFoundError("connections: user not found", map[string]any{"email": email})
	}
	return doc.toDomain(ctx, s.vault)
}

// UpsertOnInsert matches on email and only writes fields through
// $setOnInsert, so an existing user is returned untouched.
func (s *UserStore) UpsertOnInsert(ctx context.Context, in core.RegisterUserInput, defaults core.Settings) (core.User, bool, error) {
	in.UID = strings.TrimSpace(in.UID)
	in.Email = normalizeEmail(in.Email)
	if in.UID == "" || in.Email == "" {
		return core.User{}, false, fmt.Errorf("mongostore: uid and email are required")
	}
	now := s.now().UTC()
	id := s.newID()
	insert := userDocument{
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

	var doc userDocument
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"email": in.Email},
		bson.M{"$setOnInsert": insert},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// lost the race to a concurrent registration, or the uid is taken
			if existing, findErr := s.FindByEmail(ctx, in.Email); findErr == nil {
				return existing, false, nil
			}
		}
		return core.User{}, false, err
	}
	user, err := doc.toDomain(ctx, s.vault)
	if err != nil {
		return core.User{}, false, err
	}
	return user, doc.ID == id, nil
}

func (s *UserStore) ReplaceConnection(ctx context.Context, uid string, connection core.Connection) (core.User, error) {
	sealed, err := core.SealConnection(ctx, s.vault, connection)
	if err != nil {
		return core.User{}, err
	}
	doc, err := s.mutate(ctx, uid, func(doc *userDocument) {
		doc.Connections = core.ReplaceConnection(doc.Connections, sealed)
	})
	if err != nil {
		return core.User{}, err
	}
	return doc.toDomain(ctx, s.vault)
}

// RemoveConnection pulls the provider entry in one update. A miss is
// resolved into not-found or an idempotent false.
func (s *UserStore) RemoveConnection(ctx context.Context, uid string, provider core.ProviderKind) (bool, error) {
	uid = strings.TrimSpace(uid)
	res, err := s.users.UpdateOne(ctx,
		bson.M{"uid": uid, "connections.provider": provider},
		bson.M{
			"$pull": bson.M{"connections": bson.M{"provider": provider}},
			"$inc":  bson.M{"version": 1},
			"$set":  bson.M{"updatedAt": s.now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}
	doc, err := s.findOne(ctx, bson.M{"uid": uid})
	if err != nil {
		return false, err
	}
	if doc == nil {
		return false, core.UserNotFoundError(uid)
	}
	return false, nil
}

// UpdateCorrelation sets the field on the matching embedded connection with a
// positional update.
func (s *UserStore) UpdateCorrelation(ctx context.Context, provider core.ProviderKind, resourceID string, field string, value string, at time.Time) (bool, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return false, nil
	}
	key, err := resourceField(provider)
	if err != nil {
		return false, err
	}
	target, err := correlationField(field)
	if err != nil {
		return false, err
	}
	owner, found, err := s.ResourceOwner(ctx, provider, resourceID)
	if err != nil || !found {
		return false, err
	}
	res, err := s.users.UpdateOne(ctx,
		bson.M{
			"uid":         owner,
			"connections": bson.M{"$elemMatch": bson.M{"provider": provider, key: resourceID}},
		},
		bson.M{
			"$set": bson.M{
				"connections.$." + target: value,
				"connections.$.lastEventAt": at.UTC(),
				"updatedAt":                 s.now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, uid string, update core.ProfileUpdate) (core.User, error) {
	uid = strings.TrimSpace(uid)
	set := bson.M{"updatedAt": s.now().UTC()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Image != nil {
		set["image"] = *update.Image
	}
	if update.Settings != nil {
		set["settings"] = *update.Settings
	}
	var doc userDocument
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"uid": uid},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return core.User{}, core.UserNotFoundError(uid)
		}
		return core.User{}, err
	}
	return doc.toDomain(ctx, s.vault)
}

// ResourceOwner returns the uid that bound the resource most recently.
func (s *UserStore) ResourceOwner(ctx context.Context, provider core.ProviderKind, resourceID string) (string, bool, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return "", false, nil
	}
	key, err := resourceField(provider)
	if err != nil {
		return "", false, err
	}
	cursor, err := s.users.Find(ctx,
		bson.M{"connections": bson.M{"$elemMatch": bson.M{"provider": provider, key: resourceID}}},
		options.Find().
			SetProjection(bson.M{"uid": 1, "connections": 1}).
			SetSort(bson.D{{Key: "uid", Value: 1}}),
	)
	if err != nil {
		return "", false, err
	}
	var holders []userDocument
	if err := cursor.All(ctx, &holders); err != nil {
		return "", false, err
	}
	owner, found := latestBinder(holders, provider, resourceID)
	return owner, found, nil
}

// mutate applies fn to the current document and writes the connections back
// only if the version is unchanged.
func (s *UserStore) mutate(ctx context.Context, uid string, fn func(doc *userDocument)) (userDocument, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return userDocument{}, core.ValidationError("uid", "uid is required")
	}
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		doc, err := s.findOne(ctx, bson.M{"uid": uid})
		if err != nil {
			return userDocument{}, err
		}
		if doc == nil {
			return userDocument{}, core.UserNotFoundError(uid)
		}
		expected := doc.Version
		fn(doc)
		if doc.Connections == nil {
			doc.Connections = []core.Connection{}
		}
		doc.Version = expected + 1
		doc.UpdatedAt = s.now().UTC()

		res, err := s.users.UpdateOne(ctx,
			bson.M{"uid": uid, "version": expected},
			bson.M{"$set": bson.M{
				"connections": doc.Connections,
				"version":     doc.Version,
				"updatedAt":   doc.UpdatedAt,
			}},
		)
		if err != nil {
			return userDocument{}, err
		}
		if res.MatchedCount == 1 {
			return *doc, nil
		}
	}
	return userDocument{}, core.ConflictError("connections: user was modified concurrently", map[string]any{
		"uid":      uid,
		"attempts": s.maxAttempts,
	})
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*userDocument, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	if doc.Connections == nil {
		doc.Connections = []core.Connection{}
	}
	return &doc, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ core.UserStore = (*UserStore)(nil)
