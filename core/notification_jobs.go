package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	NotificationJobID          = "connections.notification.send"
	notificationScriptPath     = "connections.notification.send"
	notificationRetryDelay     = 30 * time.Second
	notificationDedupDrop      = "drop"
	defaultNotificationAttempt = 1
)

// attemptAwareDelivery is implemented by deliveries that bound retries.
type attemptAwareDelivery interface {
	NackForAttempt(ctx context.Context, opts JobNackOptions, attempt int) error
}

type attemptReporter interface {
	Attempt() int
}

// EnqueueNotification schedules SendNotification on the job queue and returns
// the idempotency key.
func (s *Service) EnqueueNotification(ctx context.Context, req SendNotificationRequest) (key string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider": string(req.Provider),
		"uid":      req.UID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "enqueue_notification", err, fields)
	}()

	if s == nil || s.jobs == nil {
		err = s.mapError(fmt.Errorf("core: job enqueuer is not configured"))
		return "", err
	}
	if _, err = requireField("uid", req.UID); err != nil {
		return "", err
	}
	if _, err = requireField("target", req.Target); err != nil {
		return "", err
	}
	if _, err = parseProvider(req.Provider); err != nil {
		return "", err
	}

	key = uuid.NewString()
	msg := &JobExecutionMessage{
		JobID:          NotificationJobID,
		ScriptPath:     notificationScriptPath,
		Parameters:     notificationParameters(req),
		IdempotencyKey: key,
		DedupPolicy:    notificationDedupDrop,
	}
	if err = s.jobs.Enqueue(ctx, msg); err != nil {
		err = s.mapError(err)
		return "", err
	}
	fields["idempotency_key"] = key
	return key, nil
}

// ProcessNotification handles one delivery. Upstream 5xx failures are
// requeued; anything else goes to the dead letter queue.
func (s *Service) ProcessNotification(ctx context.Context, delivery JobDelivery) error {
	if delivery == nil {
		return fmt.Errorf("core: job delivery is required")
	}
	msg := delivery.Message()
	if msg == nil || msg.JobID != NotificationJobID {
		return nackDelivery(ctx, delivery, JobNackOptions{
			DeadLetter: true,
			Reason:     "unsupported job",
		}, deliveryAttempt(delivery, msg))
	}
	req, err := notificationRequestFromParameters(msg.Parameters)
	if err != nil {
		return nackDelivery(ctx, delivery, JobNackOptions{
			DeadLetter: true,
			Reason:     err.Error(),
		}, deliveryAttempt(delivery, msg))
	}

	sendErr := s.SendNotification(ctx, req)
	if sendErr == nil {
		return delivery.Ack(ctx)
	}
	opts := JobNackOptions{Reason: sendErr.Error()}
	if isRetryable(sendErr) {
		opts.Requeue = true
		opts.Delay = notificationRetryDelay
	} else {
		opts.DeadLetter = true
	}
	if nackErr := nackDelivery(ctx, delivery, opts, deliveryAttempt(delivery, msg)); nackErr != nil {
		return nackErr
	}
	return sendErr
}

// RunNotificationWorker drains the dequeuer until ctx is done.
func (s *Service) RunNotificationWorker(ctx context.Context, dequeuer JobDequeuer) error {
	if dequeuer == nil {
		return fmt.Errorf("core: job dequeuer is required")
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		delivery, err := dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if delivery == nil {
			continue
		}
		if err := s.ProcessNotification(ctx, delivery); err != nil {
			s.logWarn(ctx, "notification job failed", map[string]any{"error": err.Error()})
		}
	}
}

func isRetryable(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryExternal && richErr.Code >= http.StatusInternalServerError
}

func nackDelivery(ctx context.Context, delivery JobDelivery, opts JobNackOptions, attempt int) error {
	if bounded, ok := delivery.(attemptAwareDelivery); ok {
		return bounded.NackForAttempt(ctx, opts, attempt)
	}
	return delivery.Nack(ctx, opts)
}

func deliveryAttempt(delivery JobDelivery, msg *JobExecutionMessage) int {
	if reporter, ok := delivery.(attemptReporter); ok && reporter.Attempt() > 0 {
		return reporter.Attempt()
	}
	if msg != nil {
		switch value := msg.Parameters["attempt"].(type) {
		case int:
			if value > 0 {
				return value
			}
		case float64:
			if value > 0 {
				return int(value)
			}
		}
	}
	return defaultNotificationAttempt
}

func notificationParameters(req SendNotificationRequest) map[string]any {
	params := map[string]any{
		"uid":      strings.TrimSpace(req.UID),
		"provider": string(req.Provider),
		"target":   strings.TrimSpace(req.Target),
	}
	if req.Message.Text != "" {
		params["text"] = req.Message.Text
	}
	if req.Message.TemplateName != "" {
		params["template_name"] = req.Message.TemplateName
	}
	if req.Message.LanguageCode != "" {
		params["language_code"] = req.Message.LanguageCode
	}
	if len(req.Message.Components) > 0 {
		components := make([]any, 0, len(req.Message.Components))
		for _, component := range req.Message.Components {
			components = append(components, component)
		}
		params["components"] = components
	}
	return params
}

func notificationRequestFromParameters(params map[string]any) (SendNotificationRequest, error) {
	// Identifiers are trimmed; message fields go to the provider as given,
	// the same as a synchronous send.
	raw := func(key string) string {
		value, _ := params[key].(string)
		return value
	}
	id := func(key string) string {
		return strings.TrimSpace(raw(key))
	}
	req := SendNotificationRequest{
		UID:      id("uid"),
		Provider: ProviderKind(id("provider")),
		Target:   id("target"),
		Message: MessagePayload{
			Text:         raw("text"),
			TemplateName: raw("template_name"),
			LanguageCode: raw("language_code"),
		},
	}
	if req.UID == "" || req.Target == "" || req.Provider == "" {
		return SendNotificationRequest{}, fmt.Errorf("core: notification job parameters are invalid")
	}
	if raw, ok := params["components"].([]any); ok {
		for _, item := range raw {
			component, isMap := item.(map[string]any)
			if !isMap {
				return SendNotificationRequest{}, fmt.Errorf("core: notification job components are invalid")
			}
			req.Message.Components = append(req.Message.Components, component)
		}
	}
	return req, nil
}
