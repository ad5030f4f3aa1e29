package connections

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goliatone/go-command"
	gocommand "github.com/goliatone/go-connections/adapters/gocommand"
	gojob "github.com/goliatone/go-connections/adapters/gojob"
	gologger "github.com/goliatone/go-connections/adapters/gologger"
	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/httpapi"
	meta "github.com/goliatone/go-connections/providers/meta/common"
	"github.com/goliatone/go-connections/security"
	"github.com/goliatone/go-connections/session"
	mongostore "github.com/goliatone/go-connections/store/mongo"
	sqlstore "github.com/goliatone/go-connections/store/sql"
	"github.com/goliatone/go-connections/webhooks"
	glog "github.com/goliatone/go-logger/glog"
)

// Runtime is a fully wired connections service with the resources it owns.
type Runtime struct {
	Config   Config
	Service  *Service
	Store    UserStore
	Sessions session.Store
	Webhooks *webhooks.Correlator
	Jobs     *gojob.Jobs
	Logger   glog.Logger

	closers []func(context.Context) error
}

type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	loggerProvider glog.LoggerProvider
	storeClient    any
	metaOptions    []meta.Option
	burst          *webhooks.BurstController
	serviceOptions []Option
}

func WithRuntimeLoggerProvider(provider glog.LoggerProvider) RuntimeOption {
	return func(o *runtimeOptions) {
		o.loggerProvider = provider
	}
}

// WithStoreClient supplies an open *bun.DB or go-persistence-bun client for
// the SQL store. The caller keeps ownership of it.
func WithStoreClient(client any) RuntimeOption {
	return func(o *runtimeOptions) {
		o.storeClient = client
	}
}

func WithProviderOptions(opts ...meta.Option) RuntimeOption {
	return func(o *runtimeOptions) {
		o.metaOptions = append(o.metaOptions, opts...)
	}
}

func WithWebhookBurstController(burst *webhooks.BurstController) RuntimeOption {
	return func(o *runtimeOptions) {
		o.burst = burst
	}
}

// WithServiceOptions forwards extra options to the core service.
func WithServiceOptions(opts ...Option) RuntimeOption {
	return func(o *runtimeOptions) {
		o.serviceOptions = append(o.serviceOptions, opts...)
	}
}

// Bootstrap builds every collaborator named by cfg. On error, anything already
// opened is closed before returning.
func Bootstrap(ctx context.Context, cfg Config, opts ...RuntimeOption) (rt *Runtime, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := runtimeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	provider, logger := gologger.Resolve(options.loggerProvider, nil)
	rt = &Runtime{Config: cfg, Logger: glog.Ensure(logger)}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
			rt = nil
		}
	}()

	vault, err := security.NewVaultFromConfig(cfg)
	if err != nil {
		return rt, err
	}

	if err = rt.openStore(ctx, cfg.Store, vault, options.storeClient); err != nil {
		return rt, err
	}

	sessions, err := session.NewFromConfig(ctx, cfg.Session)
	if err != nil {
		return rt, err
	}
	rt.Sessions = sessions
	rt.closers = append(rt.closers, func(context.Context) error { return sessions.Close() })

	registry, err := NewRegistryFromConfig(cfg, options.metaOptions...)
	if err != nil {
		return rt, err
	}

	webhookOpts := []webhooks.Option{webhooks.WithLogger(gologger.Component(provider, "webhooks"))}
	if options.burst != nil {
		webhookOpts = append(webhookOpts, webhooks.WithBurstController(options.burst))
	}
	rt.Webhooks, err = webhooks.NewCorrelator(rt.Store, WebhookHooksFromConfig(cfg), webhookOpts...)
	if err != nil {
		return rt, err
	}

	jobs, err := gojob.NewFromConfig(ctx, cfg.Jobs, gologger.JobLogger(provider, logger))
	if err != nil {
		return rt, err
	}
	rt.Jobs = jobs
	rt.closers = append(rt.closers, func(context.Context) error { return jobs.Close() })

	serviceOpts := []Option{
		core.WithRegistry(registry),
		core.WithUserStore(rt.Store),
		core.WithSessionStore(sessions),
		core.WithJobEnqueuer(jobs.Enqueuer),
	}
	if provider != nil {
		serviceOpts = append(serviceOpts, core.WithLoggerProvider(provider))
	}
	serviceOpts = append(serviceOpts, options.serviceOptions...)
	rt.Service, err = core.NewService(cfg, serviceOpts...)
	if err != nil {
		return rt, err
	}

	rt.Logger.Info("connections runtime ready",
		"store", cfg.Store.Driver,
		"sessions", cfg.Session.Backend,
		"jobs", cfg.Jobs.Backend,
		"providers", providerNames(registry),
	)
	return rt, nil
}

func (r *Runtime) openStore(ctx context.Context, cfg core.StoreConfig, vault *security.Vault, client any) error {
	if cfg.IsMongoDriver() {
		store, mongoClient, err := mongostore.NewFromConfig(ctx, cfg, vault)
		if err != nil {
			return err
		}
		r.Store = store
		r.closers = append(r.closers, mongoClient.Disconnect)
		return nil
	}

	if client == nil {
		owned, err := sqlstore.NewPersistenceClient(cfg)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, func(context.Context) error { return owned.Close() })
		client = owned
	}
	store, err := sqlstore.NewFromConfig(client, cfg, vault)
	if err != nil {
		return err
	}
	r.Store = store
	return nil
}

// HTTPHandler returns the chi router serving the connections API.
func (r *Runtime) HTTPHandler(opts httpapi.Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
	if opts.CookieName == "" {
		opts.CookieName = r.Config.Session.CookieName
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = r.Config.Session.TTL
	}
	return httpapi.New(r.Service, r.webhookHandler(), opts).Router()
}

// Facade exposes the command and query handlers over this runtime.
func (r *Runtime) Facade() (*Facade, error) {
	return NewFacade(r.Service, WithWebhookHandler(r.webhookHandler()))
}

// RegisterCommandBus registers every connections command and query on a
// go-command registry adapter.
func (r *Runtime) RegisterCommandBus(adapter *gocommand.RegistryAdapter) (gocommand.Subscriptions, error) {
	if adapter == nil {
		return nil, fmt.Errorf("connections: registry adapter is required")
	}
	return gocommand.RegisterHandlers(adapter, gocommand.HandlerDeps{
		Service:  r.Service,
		Webhooks: r.webhookHandler(),
	})
}

// NewCommandBus builds a fresh go-command registry with every handler
// registered and initialized.
func (r *Runtime) NewCommandBus() (*gocommand.RegistryAdapter, gocommand.Subscriptions, error) {
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subs, err := r.RegisterCommandBus(adapter)
	if err != nil {
		return nil, nil, err
	}
	if err := adapter.Initialize(); err != nil {
		subs.Unsubscribe()
		return nil, nil, err
	}
	return adapter, subs, nil
}

// RunNotificationWorker drains the configured queue until ctx is done.
func (r *Runtime) RunNotificationWorker(ctx context.Context) error {
	if r == nil || r.Jobs == nil || r.Service == nil {
		return fmt.Errorf("connections: runtime is not initialized")
	}
	return r.Service.RunNotificationWorker(ctx, r.Jobs.Dequeuer)
}

// Close releases owned resources in reverse order of creation.
func (r *Runtime) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) webhookHandler() WebhookHandler {
	if r.Webhooks == nil {
		return nil
	}
	return r.Webhooks
}

func providerNames(registry *core.ProviderRegistry) []string {
	adapters := registry.List()
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, string(adapter.Provider()))
	}
	return names
}
