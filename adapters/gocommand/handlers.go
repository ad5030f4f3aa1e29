package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	connectionscommand "github.com/goliatone/go-connections/command"
	connectionsquery "github.com/goliatone/go-connections/query"
)

// HandlerDeps are the collaborators behind the connections commands and
// queries. Webhooks may be nil when no provider has webhooks configured.
type HandlerDeps struct {
	Service interface {
		connectionscommand.MutatingService
		connectionscommand.NotificationEnqueuer
		connectionsquery.UserReader
	}
	Webhooks interface {
		connectionscommand.WebhookIngester
		connectionsquery.WebhookVerifier
	}
}

// Subscriptions releases every dispatcher subscription made by
// RegisterHandlers.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterHandlers registers and subscribes every connections command and
// query so they can be reached through Dispatch and Query.
func RegisterHandlers(adapter *RegistryAdapter, deps HandlerDeps) (Subscriptions, error) {
	if deps.Service == nil {
		return nil, fmt.Errorf("gocommand: connections service is required")
	}
	var subs Subscriptions
	fail := func(err error) (Subscriptions, error) {
		subs.Unsubscribe()
		return nil, err
	}
	track := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	svc := deps.Service
	steps := []func() error{
		func() error {
			return track(RegisterAndSubscribe(adapter, connectionscommand.NewBeginAuthorizationCommand(svc)))
		},
		func() error {
			return track(RegisterAndSubscribe(adapter, connectionscommand.NewCompleteAuthorizationCommand(svc)))
		},
		func() error { return track(RegisterAndSubscribe(adapter, connectionscommand.NewDisconnectCommand(svc))) },
		func() error {
			return track(RegisterAndSubscribe(adapter, connectionscommand.NewSendNotificationCommand(svc)))
		},
		func() error {
			return track(RegisterAndSubscribe(adapter, connectionscommand.NewEnqueueNotificationCommand(svc)))
		},
		func() error { return track(RegisterAndSubscribe(adapter, connectionscommand.NewRegisterUserCommand(svc))) },
		func() error { return track(RegisterAndSubscribe(adapter, connectionscommand.NewUpdateProfileCommand(svc))) },
		func() error { return track(RegisterAndSubscribeQuery(adapter, connectionsquery.NewGetUserQuery(svc))) },
		func() error {
			return track(RegisterAndSubscribeQuery(adapter, connectionsquery.NewListConnectionsQuery(svc)))
		},
	}
	if deps.Webhooks != nil {
		steps = append(steps,
			func() error {
				return track(RegisterAndSubscribe(adapter, connectionscommand.NewIngestWebhookCommand(deps.Webhooks)))
			},
			func() error {
				return track(RegisterAndSubscribeQuery(adapter, connectionsquery.NewVerifyWebhookQuery(deps.Webhooks)))
			},
		)
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return fail(err)
		}
	}
	return subs, nil
}
