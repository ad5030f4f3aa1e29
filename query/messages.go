package query

import (
	"strings"

	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/webhooks"
)

const (
	TypeGetUser         = "connections.query.user.get"
	TypeListConnections = "connections.query.connections.list"
	TypeVerifyWebhook   = "connections.query.webhook.verify"
)

type GetUserMessage struct {
	UID string
}

func (GetUserMessage) Type() string { return TypeGetUser }

func (m GetUserMessage) Validate() error {
	return requireUID(m.UID)
}

type ListConnectionsMessage struct {
	UID string
}

func (ListConnectionsMessage) Type() string { return TypeListConnections }

func (m ListConnectionsMessage) Validate() error {
	return requireUID(m.UID)
}

// VerifyWebhookMessage carries the hub.* parameters of a subscription
// handshake. A wrong mode or token is a verification failure, not bad input.
type VerifyWebhookMessage struct {
	Provider core.ProviderKind
	Query    webhooks.HandshakeQuery
}

func (VerifyWebhookMessage) Type() string { return TypeVerifyWebhook }

func (m VerifyWebhookMessage) Validate() error {
	if _, err := core.ParseProviderKind(string(m.Provider)); err != nil {
		return queryWrapValidation(err, "query: invalid provider")
	}
	return nil
}

func requireUID(uid string) error {
	if strings.TrimSpace(uid) == "" {
		return queryValidationError("uid", "uid is required")
	}
	return nil
}
