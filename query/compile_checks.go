package query

import (
	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/webhooks"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetUserMessage, core.User]                     = (*GetUserQuery)(nil)
	_ gocmd.Querier[ListConnectionsMessage, []core.ConnectionView] = (*ListConnectionsQuery)(nil)
	_ gocmd.Querier[VerifyWebhookMessage, string]                  = (*VerifyWebhookQuery)(nil)

	_ UserReader      = (*core.Service)(nil)
	_ WebhookVerifier = (*webhooks.Correlator)(nil)
)
