package command

import (
	"strings"

	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/webhooks"
)

const (
	TypeBeginAuthorization    = "connections.command.authorization.begin"
	TypeCompleteAuthorization = "connections.command.authorization.complete"
	TypeDisconnect            = "connections.command.disconnect"
	TypeSendNotification      = "connections.command.notification.send"
	TypeEnqueueNotification   = "connections.command.notification.enqueue"
	TypeRegisterUser          = "connections.command.user.register"
	TypeUpdateProfile         = "connections.command.user.update_profile"
	TypeIngestWebhook         = "connections.command.webhook.ingest"
)

type BeginAuthorizationMessage struct {
	Request core.BeginAuthorizationRequest
}

func (BeginAuthorizationMessage) Type() string { return TypeBeginAuthorization }

func (m BeginAuthorizationMessage) Validate() error {
	if err := validateProvider(m.Request.Provider); err != nil {
		return err
	}
	return requireText("uid", m.Request.UID)
}

type CompleteAuthorizationMessage struct {
	Request core.CompleteAuthorizationRequest
}

func (CompleteAuthorizationMessage) Type() string { return TypeCompleteAuthorization }

func (m CompleteAuthorizationMessage) Validate() error {
	if err := validateProvider(m.Request.Provider); err != nil {
		return err
	}
	return requireText("code", m.Request.Code)
}

type DisconnectMessage struct {
	Request core.DisconnectRequest
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	if err := validateProvider(m.Request.Provider); err != nil {
		return err
	}
	return requireText("uid", m.Request.UID)
}

type SendNotificationMessage struct {
	Request core.SendNotificationRequest
}

func (SendNotificationMessage) Type() string { return TypeSendNotification }

func (m SendNotificationMessage) Validate() error {
	return validateNotification(m.Request)
}

// EnqueueNotificationMessage schedules the send on the job queue instead of
// calling the provider inline.
type EnqueueNotificationMessage struct {
	Request core.SendNotificationRequest
}

func (EnqueueNotificationMessage) Type() string { return TypeEnqueueNotification }

func (m EnqueueNotificationMessage) Validate() error {
	return validateNotification(m.Request)
}

type RegisterUserMessage struct {
	Input core.RegisterUserInput
}

func (RegisterUserMessage) Type() string { return TypeRegisterUser }

func (m RegisterUserMessage) Validate() error {
	fields := []struct{ name, value string }{
		{"uid", m.Input.UID},
		{"name", m.Input.Name},
		{"email", m.Input.Email},
		{"image", m.Input.Image},
	}
	for _, field := range fields {
		if err := requireText(field.name, field.value); err != nil {
			return err
		}
	}
	return nil
}

type UpdateProfileMessage struct {
	UID    string
	Update core.ProfileUpdate
}

func (UpdateProfileMessage) Type() string { return TypeUpdateProfile }

func (m UpdateProfileMessage) Validate() error {
	if err := requireText("uid", m.UID); err != nil {
		return err
	}
	if m.Update.Name == nil && m.Update.Image == nil && m.Update.Settings == nil {
		return commandValidationError("update", "at least one profile field is required")
	}
	if m.Update.Settings != nil {
		if err := m.Update.Settings.Validate(); err != nil {
			return commandWrapValidation(err, "command: invalid settings")
		}
	}
	return nil
}

type IngestWebhookMessage struct {
	Request webhooks.InboundRequest
}

func (IngestWebhookMessage) Type() string { return TypeIngestWebhook }

func (m IngestWebhookMessage) Validate() error {
	return validateProvider(m.Request.Provider)
}

func validateNotification(req core.SendNotificationRequest) error {
	if err := validateProvider(req.Provider); err != nil {
		return err
	}
	if err := requireText("uid", req.UID); err != nil {
		return err
	}
	return requireText("target", req.Target)
}

func validateProvider(provider core.ProviderKind) error {
	if _, err := core.ParseProviderKind(string(provider)); err != nil {
		return commandWrapValidation(err, "command: invalid provider")
	}
	return nil
}

func requireText(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return commandValidationError(field, field+" is required")
	}
	return nil
}
