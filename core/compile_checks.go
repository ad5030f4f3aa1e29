package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// ConnectionService is the surface the command, query and HTTP layers use.
type ConnectionService interface {
	BeginAuthorization(ctx context.Context, req BeginAuthorizationRequest) (BeginAuthorizationResponse, error)
	CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (CompleteAuthorizationResponse, error)
	Disconnect(ctx context.Context, req DisconnectRequest) (DisconnectResult, error)
	SendNotification(ctx context.Context, req SendNotificationRequest) error
	EnqueueNotification(ctx context.Context, req SendNotificationRequest) (string, error)
	RegisterUser(ctx context.Context, in RegisterUserInput) (User, bool, error)
	GetUser(ctx context.Context, uid string) (User, error)
	ListConnections(ctx context.Context, uid string) ([]ConnectionView, error)
	UpdateProfile(ctx context.Context, uid string, update ProfileUpdate) (User, error)
}

var (
	_ ConnectionService = (*Service)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
