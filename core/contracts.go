package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// MessagePayload is what SendNotification hands to an adapter. Facebook uses
// Text; WhatsApp uses the template fields.
type MessagePayload struct {
	Text         string
	TemplateName string
	LanguageCode string
	Components   []map[string]any
}

// ProviderAdapter encapsulates one provider's OAuth and messaging API.
type ProviderAdapter interface {
	Provider() ProviderKind
	DefaultScopes() []string
	BuildAuthorizationURL(state string, scopes []string) (string, error)
	ExchangeCode(ctx context.Context, code string) (Token, error)
	UpgradeToken(ctx context.Context, shortLived Token) (Token, error)
	DiscoverResource(ctx context.Context, longLived Token) (ProviderResource, error)
	SendMessage(ctx context.Context, connection Connection, target string, payload MessagePayload) error
}

type Registry interface {
	Register(adapter ProviderAdapter) error
	Get(provider ProviderKind) (ProviderAdapter, bool)
	List() []ProviderAdapter
}

type RegisterUserInput struct {
	UID   string
	Name  string
	Email string
	Image string
}

type ProfileUpdate struct {
	Name     *string
	Image    *string
	Settings *Settings
}

// UserStore is the persistence collaborator. Connection mutations are single
// document operations; concurrent writers resolve last-writer-wins.
type UserStore interface {
	FindByUID(ctx context.Context, uid string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	UpsertOnInsert(ctx context.Context, in RegisterUserInput, defaults Settings) (User, bool, error)
	ReplaceConnection(ctx context.Context, uid string, connection Connection) (User, error)
	RemoveConnection(ctx context.Context, uid string, provider ProviderKind) (bool, error)
	UpdateCorrelation(ctx context.Context, provider ProviderKind, resourceID string, field string, value string, at time.Time) (bool, error)
	UpdateProfile(ctx context.Context, uid string, update ProfileUpdate) (User, error)
}

// ConsistentUserReader is implemented by stores that may answer FindByUID
// from a cache. FindByUIDConsistent always reads the backing store.
type ConsistentUserReader interface {
	FindByUIDConsistent(ctx context.Context, uid string) (User, error)
}

// SessionStore holds per-client values for the duration of one
// authorization round trip.
type SessionStore interface {
	SaveState(ctx context.Context, sessionID string, provider ProviderKind, state string) error
	LoadState(ctx context.Context, sessionID string, provider ProviderKind) (string, bool, error)
	ClearState(ctx context.Context, sessionID string, provider ProviderKind) error
	// TakeState returns and removes the state in one step, so a state can
	// be consumed by at most one callback.
	TakeState(ctx context.Context, sessionID string, provider ProviderKind) (string, bool, error)
	BindUser(ctx context.Context, sessionID string, uid string) error
	BoundUser(ctx context.Context, sessionID string) (string, bool, error)
}

// CredentialVault seals credential strings for storage.
type CredentialVault interface {
	Seal(ctx context.Context, plaintext string) (string, error)
	Open(ctx context.Context, ciphertext string) (string, error)
	IsSealed(value string) bool
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}
