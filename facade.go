package connections

import (
	"fmt"

	connectionscommand "github.com/goliatone/go-connections/command"
	connectionsquery "github.com/goliatone/go-connections/query"
)

type CommandQueryService interface {
	connectionscommand.MutatingService
	connectionscommand.NotificationEnqueuer
	connectionsquery.UserReader
}

type WebhookHandler interface {
	connectionscommand.WebhookIngester
	connectionsquery.WebhookVerifier
}

type Commands struct {
	BeginAuthorization    *connectionscommand.BeginAuthorizationCommand
	CompleteAuthorization *connectionscommand.CompleteAuthorizationCommand
	Disconnect            *connectionscommand.DisconnectCommand
	SendNotification      *connectionscommand.SendNotificationCommand
	EnqueueNotification   *connectionscommand.EnqueueNotificationCommand
	RegisterUser          *connectionscommand.RegisterUserCommand
	UpdateProfile         *connectionscommand.UpdateProfileCommand
	IngestWebhook         *connectionscommand.IngestWebhookCommand
}

type Queries struct {
	GetUser         *connectionsquery.GetUserQuery
	ListConnections *connectionsquery.ListConnectionsQuery
	VerifyWebhook   *connectionsquery.VerifyWebhookQuery
}

// Facade groups ready-made command and query handlers over one service.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	webhooks WebhookHandler
}

// WithWebhookHandler adds the webhook ingest command and verify query.
func WithWebhookHandler(handler WebhookHandler) FacadeOption {
	return func(options *facadeOptions) {
		options.webhooks = handler
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("connections: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		BeginAuthorization:    connectionscommand.NewBeginAuthorizationCommand(service),
		CompleteAuthorization: connectionscommand.NewCompleteAuthorizationCommand(service),
		Disconnect:            connectionscommand.NewDisconnectCommand(service),
		SendNotification:      connectionscommand.NewSendNotificationCommand(service),
		EnqueueNotification:   connectionscommand.NewEnqueueNotificationCommand(service),
		RegisterUser:          connectionscommand.NewRegisterUserCommand(service),
		UpdateProfile:         connectionscommand.NewUpdateProfileCommand(service),
	}
	facade.queries = Queries{
		GetUser:         connectionsquery.NewGetUserQuery(service),
		ListConnections: connectionsquery.NewListConnectionsQuery(service),
	}
	if cfg.webhooks != nil {
		facade.commands.IngestWebhook = connectionscommand.NewIngestWebhookCommand(cfg.webhooks)
		facade.queries.VerifyWebhook = connectionsquery.NewVerifyWebhookQuery(cfg.webhooks)
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
