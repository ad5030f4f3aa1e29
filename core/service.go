package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	registry        Registry
	users           UserStore
	sessions        SessionStore
	stateCodec      *StateCodec
	jobs            JobEnqueuer
	now             func() time.Time
	newID           func() string
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Registry        Registry
	UserStore       UserStore
	SessionStore    SessionStore
	StateCodec      *StateCodec
	JobEnqueuer     JobEnqueuer
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("connections", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("connections"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}
	if builder.newID == nil {
		builder.newID = newConnectionID
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.stateCodec == nil {
		codec, codecErr := NewStateCodecFromSecret(finalConfig.Security.EncryptionSecret, finalConfig.OAuth.StateTTL)
		if codecErr != nil {
			return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: state codec: %w", codecErr))
		}
		builder.stateCodec = codec
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		registry:        builder.registry,
		users:           builder.userStore,
		sessions:        builder.sessionStore,
		stateCodec:      builder.stateCodec,
		jobs:            builder.jobEnqueuer,
		now:             builder.now,
		newID:           builder.newID,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorFactory:    s.errorFactory,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		Registry:        s.registry,
		UserStore:       s.users,
		SessionStore:    s.sessions,
		StateCodec:      s.stateCodec,
		JobEnqueuer:     s.jobs,
	}
}

func (s *Service) resolveAdapter(provider ProviderKind) (ProviderAdapter, error) {
	if s == nil || s.registry == nil {
		return nil, s.mapError(fmt.Errorf("core: registry unavailable"))
	}
	adapter, ok := s.registry.Get(provider)
	if ok {
		return adapter, nil
	}
	wrapped := s.errorFactory(
		fmt.Sprintf("provider %q is not registered", provider),
		goerrors.CategoryNotFound,
	).WithTextCode(ErrorProviderMissing)
	return nil, s.mapError(wrapped.WithMetadata(map[string]any{"provider": string(provider)}))
}

func (s *Service) requireUsers() (UserStore, error) {
	if s == nil || s.users == nil {
		return nil, s.mapError(fmt.Errorf("core: user store is not configured"))
	}
	return s.users, nil
}

// findUserConsistent is used by lifecycle steps that act on connection state
// and must not see a cached record.
func (s *Service) findUserConsistent(ctx context.Context, users UserStore, uid string) (User, error) {
	if reader, ok := users.(ConsistentUserReader); ok {
		return reader.FindByUIDConsistent(ctx, uid)
	}
	return users.FindByUID(ctx, uid)
}

func (s *Service) requireSessions() (SessionStore, error) {
	if s == nil || s.sessions == nil {
		return nil, s.mapError(fmt.Errorf("core: session store is not configured"))
	}
	return s.sessions, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) timestamp() time.Time {
	if s == nil || s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func newConnectionID() string {
	return uuid.NewString()
}

func parseProvider(value ProviderKind) (ProviderKind, error) {
	kind, err := ParseProviderKind(string(value))
	if err != nil {
		return "", ValidationError("provider", err.Error())
	}
	return kind, nil
}

func requireField(field string, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ValidationError(field, field+" is required")
	}
	return value, nil
}
