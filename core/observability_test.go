package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]capturedLog, len(*l.records))
	copy(out, *l.records)
	return out
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func findLog(items []capturedLog, level string, message string) (capturedLog, bool) {
	for _, item := range items {
		if item.level == level && item.msg == message {
			return item, true
		}
	}
	return capturedLog{}, false
}

func TestServiceObservability_BeginAuthorizationSuccess(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	fixture := newLifecycleFixture(
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)

	beginFacebook(t, fixture, "sess-1")

	if !hasCounter(metrics.counters, "connections.begin_authorization.total", "success") {
		t.Fatalf("expected begin_authorization success counter")
	}
	if len(metrics.histograms) == 0 || metrics.histograms[0].name != "connections.begin_authorization.duration_ms" {
		t.Fatalf("expected begin_authorization duration histogram")
	}
	record, ok := findLog(logger.snapshot(), "info", "begin_authorization succeeded")
	if !ok {
		t.Fatalf("expected success log")
	}
	if record.fields["provider"] != "facebook" || record.fields["uid"] != "u1" {
		t.Fatalf("expected provider and uid fields, got %v", record.fields)
	}
	if record.fields["connection_id"] != "conn_1" {
		t.Fatalf("expected connection id field, got %v", record.fields["connection_id"])
	}
}

func TestServiceObservability_FailureCarriesTextCode(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	fixture := newLifecycleFixture(
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)

	_ = fixture.svc.SendNotification(context.Background(), SendNotificationRequest{
		UID: "u1", Provider: ProviderFacebook, Target: "123",
	})

	if !hasCounter(metrics.counters, "connections.send_notification.total", "failure") {
		t.Fatalf("expected send_notification failure counter")
	}
	record, ok := findLog(logger.snapshot(), "error", "send_notification failed")
	if !ok {
		t.Fatalf("expected failure log")
	}
	if record.fields["text_code"] != ErrorNotConnected {
		t.Fatalf("expected text code field, got %v", record.fields["text_code"])
	}
	for _, counter := range metrics.counters {
		if counter.tags["text_code"] == ErrorNotConnected {
			return
		}
	}
	t.Fatalf("expected text code metric tag")
}

func TestOperationEvent_TagsLeaveUserIdentifiersInLogs(t *testing.T) {
	event := newOperationEvent("Complete-Authorization", time.Now(), NotConnectedError("u1", ProviderFacebook), map[string]any{
		"uid":           "u1",
		"provider":      ProviderFacebook,
		"step":          "exchange_code",
		"connection_id": "conn_1",
	})

	if event.message() != "complete_authorization failed" {
		t.Fatalf("unexpected message %q", event.message())
	}
	tags := event.tags()
	if tags["provider"] != "facebook" || tags["step"] != "exchange_code" || tags["status"] != "failure" {
		t.Fatalf("unexpected tags %v", tags)
	}
	if _, ok := tags["uid"]; ok {
		t.Fatalf("expected uid to stay out of metric tags")
	}
	if _, ok := tags["connection_id"]; ok {
		t.Fatalf("expected connection id to stay out of metric tags")
	}
	fields := event.logFields()
	if fields["uid"] != "u1" || fields["connection_id"] != "conn_1" {
		t.Fatalf("expected identifiers in log fields, got %v", fields)
	}
	if fields["text_code"] != ErrorNotConnected || tags["text_code"] != ErrorNotConnected {
		t.Fatalf("expected text code in fields and tags")
	}
}
