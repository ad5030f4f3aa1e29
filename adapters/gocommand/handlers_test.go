package gocommand

import (
	"context"
	"testing"

	"github.com/goliatone/go-command"
	connectionscommand "github.com/goliatone/go-connections/command"
	"github.com/goliatone/go-connections/core"
	connectionsquery "github.com/goliatone/go-connections/query"
	"github.com/goliatone/go-connections/webhooks"
)

func TestRegisterHandlers_DispatchAndQuery(t *testing.T) {
	svc := &stubConnectionsService{}
	adapter := NewRegistryAdapter(command.NewRegistry())

	subs, err := RegisterHandlers(adapter, HandlerDeps{Service: svc, Webhooks: stubWebhooks{}})
	if err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	defer subs.Unsubscribe()
	if len(subs) != 11 {
		t.Fatalf("expected 11 subscriptions, got %d", len(subs))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if err := Dispatch(context.Background(), connectionscommand.DisconnectMessage{
		Request: core.DisconnectRequest{UID: "u1", Provider: core.ProviderFacebook},
	}); err != nil {
		t.Fatalf("dispatch disconnect: %v", err)
	}
	if svc.disconnects != 1 {
		t.Fatalf("expected one disconnect, got %d", svc.disconnects)
	}

	user, err := Query[connectionsquery.GetUserMessage, core.User](context.Background(), connectionsquery.GetUserMessage{UID: "u1"})
	if err != nil {
		t.Fatalf("query user: %v", err)
	}
	if user.UID != "u1" {
		t.Fatalf("unexpected user: %#v", user)
	}
}

func TestRegisterHandlers_RequiresService(t *testing.T) {
	if _, err := RegisterHandlers(NewRegistryAdapter(nil), HandlerDeps{}); err == nil {
		t.Fatalf("expected missing service to fail")
	}
}

type stubConnectionsService struct {
	disconnects int
}

func (s *stubConnectionsService) BeginAuthorization(context.Context, core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error) {
	return core.BeginAuthorizationResponse{}, nil
}

func (s *stubConnectionsService) CompleteAuthorization(context.Context, core.CompleteAuthorizationRequest) (core.CompleteAuthorizationResponse, error) {
	return core.CompleteAuthorizationResponse{}, nil
}

func (s *stubConnectionsService) Disconnect(context.Context, core.DisconnectRequest) (core.DisconnectResult, error) {
	s.disconnects++
	return core.DisconnectResult{Removed: true}, nil
}

func (s *stubConnectionsService) SendNotification(context.Context, core.SendNotificationRequest) error {
	return nil
}

func (s *stubConnectionsService) EnqueueNotification(context.Context, core.SendNotificationRequest) (string, error) {
	return "key", nil
}

func (s *stubConnectionsService) RegisterUser(_ context.Context, in core.RegisterUserInput) (core.User, bool, error) {
	return core.User{UID: in.UID}, true, nil
}

func (s *stubConnectionsService) UpdateProfile(_ context.Context, uid string, _ core.ProfileUpdate) (core.User, error) {
	return core.User{UID: uid}, nil
}

func (s *stubConnectionsService) GetUser(_ context.Context, uid string) (core.User, error) {
	return core.User{UID: uid}, nil
}

func (s *stubConnectionsService) ListConnections(context.Context, string) ([]core.ConnectionView, error) {
	return nil, nil
}

type stubWebhooks struct{}

func (stubWebhooks) Ingest(context.Context, webhooks.InboundRequest) (webhooks.IngestResult, error) {
	return webhooks.IngestResult{}, nil
}

func (stubWebhooks) Verify(_ context.Context, _ core.ProviderKind, query webhooks.HandshakeQuery) (string, error) {
	return query.Challenge, nil
}
