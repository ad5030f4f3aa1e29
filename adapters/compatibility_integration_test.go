package adapters_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-connections/adapters/gocommand"
	"github.com/goliatone/go-connections/adapters/gojob"
	"github.com/goliatone/go-connections/adapters/gologger"
	"github.com/goliatone/go-connections/adapters/gozerolog"
	connectionscommand "github.com/goliatone/go-connections/command"
	"github.com/goliatone/go-connections/core"
	connectionsquery "github.com/goliatone/go-connections/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

func TestRuntimeCompatibility_ZerologGoJobGoLogger(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	provider := gozerolog.NewProvider(gozerolog.New(gozerolog.Options{Output: &buf}))

	jobs, err := gojob.NewFromConfig(ctx, core.JobsConfig{Backend: gojob.BackendMemory, MaxAttempts: 1}, gologger.JobLogger(provider, nil))
	if err != nil {
		t.Fatalf("new jobs: %v", err)
	}
	defer jobs.Close()

	if err := jobs.Enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          gojob.JobIDNotification,
		ScriptPath:     "connections.notification.send",
		Parameters:     map[string]any{"uid": "u1", "provider": "facebook", "target": "123"},
		IdempotencyKey: "idem_1",
		DedupPolicy:    "drop",
	}); err != nil {
		t.Fatalf("enqueue via gojob adapter: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	delivery, err := jobs.Dequeuer.Dequeue(waitCtx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if delivery.Message().JobID != core.NotificationJobID {
		t.Fatalf("unexpected job id %q", delivery.Message().JobID)
	}
	if err := delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "upstream 500"}); err != nil {
		t.Fatalf("nack: %v", err)
	}

	logged := buf.String()
	if !strings.Contains(logged, "job dead-lettered") || !strings.Contains(logged, `"logger":"connections.jobs"`) {
		t.Fatalf("expected dead letter logged through zerolog, got %q", logged)
	}
}

func TestRuntimeCompatibility_CommandBusAndQueueResolver(t *testing.T) {
	svc := &compatService{}
	queueRegistry := jobqueuecommand.NewRegistry()
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}

	subs, err := gocommand.RegisterHandlers(adapter, gocommand.HandlerDeps{Service: svc})
	if err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	defer subs.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, ok := queueRegistry.Get(connectionscommand.TypeSendNotification); !ok {
		t.Fatalf("expected send notification command mirrored into the go-job queue registry")
	}

	if err := gocommand.Dispatch(context.Background(), connectionscommand.SendNotificationMessage{
		Request: core.SendNotificationRequest{UID: "u1", Provider: core.ProviderFacebook, Target: "123"},
	}); err != nil {
		t.Fatalf("dispatch send: %v", err)
	}
	if svc.sent != 1 {
		t.Fatalf("expected one send, got %d", svc.sent)
	}

	views, err := gocommand.Query[connectionsquery.ListConnectionsMessage, []core.ConnectionView](
		context.Background(), connectionsquery.ListConnectionsMessage{UID: "u1"},
	)
	if err != nil {
		t.Fatalf("query connections: %v", err)
	}
	if len(views) != 1 || views[0].PageID != "p1" {
		t.Fatalf("unexpected views: %#v", views)
	}
}

type compatService struct {
	sent int
}

func (s *compatService) BeginAuthorization(context.Context, core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error) {
	return core.BeginAuthorizationResponse{}, nil
}

func (s *compatService) CompleteAuthorization(context.Context, core.CompleteAuthorizationRequest) (core.CompleteAuthorizationResponse, error) {
	return core.CompleteAuthorizationResponse{}, nil
}

func (s *compatService) Disconnect(context.Context, core.DisconnectRequest) (core.DisconnectResult, error) {
	return core.DisconnectResult{}, nil
}

func (s *compatService) SendNotification(context.Context, core.SendNotificationRequest) error {
	s.sent++
	return nil
}

func (s *compatService) EnqueueNotification(context.Context, core.SendNotificationRequest) (string, error) {
	return "", nil
}

func (s *compatService) RegisterUser(context.Context, core.RegisterUserInput) (core.User, bool, error) {
	return core.User{}, false, nil
}

func (s *compatService) UpdateProfile(context.Context, string, core.ProfileUpdate) (core.User, error) {
	return core.User{}, nil
}

func (s *compatService) GetUser(_ context.Context, uid string) (core.User, error) {
	return core.User{UID: uid}, nil
}

func (s *compatService) ListConnections(context.Context, string) ([]core.ConnectionView, error) {
	return []core.ConnectionView{{Provider: core.ProviderFacebook, PageID: "p1"}}, nil
}
