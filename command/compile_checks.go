package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/webhooks"
)

var (
	_ gocmd.Commander[BeginAuthorizationMessage]    = (*BeginAuthorizationCommand)(nil)
	_ gocmd.Commander[CompleteAuthorizationMessage] = (*CompleteAuthorizationCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]            = (*DisconnectCommand)(nil)
	_ gocmd.Commander[SendNotificationMessage]      = (*SendNotificationCommand)(nil)
	_ gocmd.Commander[EnqueueNotificationMessage]   = (*EnqueueNotificationCommand)(nil)
	_ gocmd.Commander[RegisterUserMessage]          = (*RegisterUserCommand)(nil)
	_ gocmd.Commander[UpdateProfileMessage]         = (*UpdateProfileCommand)(nil)
	_ gocmd.Commander[IngestWebhookMessage]         = (*IngestWebhookCommand)(nil)

	_ MutatingService      = (*core.Service)(nil)
	_ NotificationEnqueuer = (*core.Service)(nil)
	_ WebhookIngester      = (*webhooks.Correlator)(nil)
)
