package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const metricsPrefix = "connections"

// operationTagFields are the lifecycle fields copied onto metric tags. uid,
// connection ids and idempotency keys stay in logs only.
var operationTagFields = []string{"provider", "step"}

// operationEvent is one finished lifecycle call as seen by logs and metrics.
type operationEvent struct {
	operation string
	failed    bool
	duration  time.Duration
	textCode  string
	err       error
	fields    map[string]any
}

func newOperationEvent(operation string, startedAt time.Time, err error, fields map[string]any) operationEvent {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	return operationEvent{
		operation: operation,
		failed:    err != nil,
		duration:  time.Since(startedAt),
		textCode:  errorTextCode(err),
		err:       err,
		fields:    fields,
	}
}

func (e operationEvent) status() string {
	if e.failed {
		return "failure"
	}
	return "success"
}

// message reads e.g. "complete_authorization failed".
func (e operationEvent) message() string {
	if e.failed {
		return e.operation + " failed"
	}
	return e.operation + " succeeded"
}

func (e operationEvent) logFields() map[string]any {
	out := cloneFields(e.fields)
	out["event_type"] = e.operation
	out["status"] = e.status()
	out["duration_ms"] = e.duration.Milliseconds()
	if e.err != nil {
		out["error"] = e.err.Error()
	}
	if e.textCode != "" {
		out["text_code"] = e.textCode
	}
	return out
}

func (e operationEvent) tags() map[string]string {
	tags := map[string]string{
		"operation": e.operation,
		"status":    e.status(),
	}
	for _, key := range operationTagFields {
		if value, ok := e.fields[key]; ok && value != nil {
			if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
				tags[key] = text
			}
		}
	}
	if e.textCode != "" {
		tags["text_code"] = e.textCode
	}
	return tags
}

func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	event := newOperationEvent(operation, startedAt, err, fields)
	tags := event.tags()
	s.recordCounter(ctx, metricName(event.operation, "total"), 1, tags)
	s.recordHistogram(ctx, metricName(event.operation, "duration_ms"), float64(event.duration.Milliseconds()), tags)

	level := levelInfo
	if event.failed {
		level = levelError
	}
	s.log(ctx, level, event.message(), event.logFields())
}

// metricName yields e.g. connections.complete_authorization.total.
func metricName(operation string, suffix string) string {
	return metricsPrefix + "." + operation + "." + suffix
}

type logLevel int

const (
	levelInfo logLevel = iota
	levelWarn
	levelError
)

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	s.log(ctx, levelInfo, message, fields)
}

func (s *Service) logWarn(ctx context.Context, message string, fields map[string]any) {
	s.log(ctx, levelWarn, message, fields)
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	s.log(ctx, levelError, message, fields)
}

// log prefers structured fields when the logger supports them and always
// passes the same fields as sorted key/value args.
func (s *Service) log(ctx context.Context, level logLevel, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch level {
	case levelError:
		logger.Error(message, args...)
	case levelWarn:
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, name, value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, name, value, cloneTags(tags))
}

// NopMetricsRecorder drops every sample. It is the default recorder.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}

func cloneTags(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return maps.Clone(tags)
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	return maps.Clone(fields)
}

func flattenFields(fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return args
}

func errorTextCode(err error) string {
	var richErr *goerrors.Error
	if err != nil && goerrors.As(err, &richErr) {
		return strings.TrimSpace(richErr.TextCode)
	}
	return ""
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(operation)
}
