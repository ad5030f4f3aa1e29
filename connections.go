package connections

import "github.com/goliatone/go-connections/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type ProviderKind = core.ProviderKind
type ProviderAdapter = core.ProviderAdapter
type UserStore = core.UserStore
type SessionStore = core.SessionStore
type CredentialVault = core.CredentialVault
type JobEnqueuer = core.JobEnqueuer
type JobDequeuer = core.JobDequeuer

type User = core.User
type Connection = core.Connection
type ConnectionView = core.ConnectionView
type Settings = core.Settings

type BeginAuthorizationRequest = core.BeginAuthorizationRequest
type CompleteAuthorizationRequest = core.CompleteAuthorizationRequest
type DisconnectRequest = core.DisconnectRequest
type SendNotificationRequest = core.SendNotificationRequest
type RegisterUserInput = core.RegisterUserInput
type ProfileUpdate = core.ProfileUpdate

const (
	ProviderFacebook = core.ProviderFacebook
	ProviderWhatsApp = core.ProviderWhatsApp
)

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorFactory    = core.WithErrorFactory
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithRegistry        = core.WithRegistry
	WithUserStore       = core.WithUserStore
	WithSessionStore    = core.WithSessionStore
	WithStateCodec      = core.WithStateCodec
	WithJobEnqueuer     = core.WithJobEnqueuer
	WithClock           = core.WithClock
	WithIDGenerator     = core.WithIDGenerator
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
