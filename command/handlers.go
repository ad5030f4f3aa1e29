package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/webhooks"
)

// MutatingService is the write side of the connections service.
type MutatingService interface {
	BeginAuthorization(ctx context.Context, req core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error)
	CompleteAuthorization(ctx context.Context, req core.CompleteAuthorizationRequest) (core.CompleteAuthorizationResponse, error)
	Disconnect(ctx context.Context, req core.DisconnectRequest) (core.DisconnectResult, error)
	SendNotification(ctx context.Context, req core.SendNotificationRequest) error
	RegisterUser(ctx context.Context, in core.RegisterUserInput) (core.User, bool, error)
	UpdateProfile(ctx context.Context, uid string, update core.ProfileUpdate) (core.User, error)
}

type NotificationEnqueuer interface {
	EnqueueNotification(ctx context.Context, req core.SendNotificationRequest) (string, error)
}

type WebhookIngester interface {
	Ingest(ctx context.Context, req webhooks.InboundRequest) (webhooks.IngestResult, error)
}

type BeginAuthorizationCommand struct {
	service MutatingService
}

func NewBeginAuthorizationCommand(service MutatingService) *BeginAuthorizationCommand {
	return &BeginAuthorizationCommand{service: service}
}

func (c *BeginAuthorizationCommand) Execute(ctx context.Context, msg BeginAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.BeginAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteAuthorizationCommand struct {
	service MutatingService
}

func NewCompleteAuthorizationCommand(service MutatingService) *CompleteAuthorizationCommand {
	return &CompleteAuthorizationCommand{service: service}
}

func (c *CompleteAuthorizationCommand) Execute(ctx context.Context, msg CompleteAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.CompleteAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service MutatingService
}

func NewDisconnectCommand(service MutatingService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: disconnect service is required")
	}
	out, err := c.service.Disconnect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SendNotificationCommand struct {
	service MutatingService
}

func NewSendNotificationCommand(service MutatingService) *SendNotificationCommand {
	return &SendNotificationCommand{service: service}
}

func (c *SendNotificationCommand) Execute(ctx context.Context, msg SendNotificationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notification service is required")
	}
	return c.service.SendNotification(ctx, msg.Request)
}

// EnqueueNotificationResult carries the job idempotency key.
type EnqueueNotificationResult struct {
	IdempotencyKey string `json:"idempotencyKey"`
}

type EnqueueNotificationCommand struct {
	enqueuer NotificationEnqueuer
}

func NewEnqueueNotificationCommand(enqueuer NotificationEnqueuer) *EnqueueNotificationCommand {
	return &EnqueueNotificationCommand{enqueuer: enqueuer}
}

func (c *EnqueueNotificationCommand) Execute(ctx context.Context, msg EnqueueNotificationMessage) error {
	if c == nil || c.enqueuer == nil {
		return commandDependencyError("command: notification enqueuer is required")
	}
	key, err := c.enqueuer.EnqueueNotification(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, EnqueueNotificationResult{IdempotencyKey: key})
	return nil
}

// RegisterUserResult reports whether the user was inserted by this call.
type RegisterUserResult struct {
	User    core.User
	Created bool
}

type RegisterUserCommand struct {
	service MutatingService
}

func NewRegisterUserCommand(service MutatingService) *RegisterUserCommand {
	return &RegisterUserCommand{service: service}
}

func (c *RegisterUserCommand) Execute(ctx context.Context, msg RegisterUserMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: user service is required")
	}
	user, created, err := c.service.RegisterUser(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, RegisterUserResult{User: user, Created: created})
	return nil
}

type UpdateProfileCommand struct {
	service MutatingService
}

func NewUpdateProfileCommand(service MutatingService) *UpdateProfileCommand {
	return &UpdateProfileCommand{service: service}
}

func (c *UpdateProfileCommand) Execute(ctx context.Context, msg UpdateProfileMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: user service is required")
	}
	user, err := c.service.UpdateProfile(ctx, msg.UID, msg.Update)
	if err != nil {
		return err
	}
	storeResult(ctx, user)
	return nil
}

type IngestWebhookCommand struct {
	ingester WebhookIngester
}

func NewIngestWebhookCommand(ingester WebhookIngester) *IngestWebhookCommand {
	return &IngestWebhookCommand{ingester: ingester}
}

func (c *IngestWebhookCommand) Execute(ctx context.Context, msg IngestWebhookMessage) error {
	if c == nil || c.ingester == nil {
		return commandDependencyError("command: webhook correlator is required")
	}
	out, err := c.ingester.Ingest(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
