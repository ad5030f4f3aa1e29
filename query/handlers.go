package query

import (
	"context"

	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/webhooks"
)

type UserReader interface {
	GetUser(ctx context.Context, uid string) (core.User, error)
	ListConnections(ctx context.Context, uid string) ([]core.ConnectionView, error)
}

type WebhookVerifier interface {
	Verify(ctx context.Context, provider core.ProviderKind, query webhooks.HandshakeQuery) (string, error)
}

type GetUserQuery struct {
	reader UserReader
}

func NewGetUserQuery(reader UserReader) *GetUserQuery {
	return &GetUserQuery{reader: reader}
}

func (q *GetUserQuery) Query(ctx context.Context, msg GetUserMessage) (core.User, error) {
	if q == nil || q.reader == nil {
		return core.User{}, queryDependencyError("query: user reader is required")
	}
	return q.reader.GetUser(ctx, msg.UID)
}

// ListConnectionsQuery returns the token-free view of a user's connections.
type ListConnectionsQuery struct {
	reader UserReader
}

func NewListConnectionsQuery(reader UserReader) *ListConnectionsQuery {
	return &ListConnectionsQuery{reader: reader}
}

func (q *ListConnectionsQuery) Query(ctx context.Context, msg ListConnectionsMessage) ([]core.ConnectionView, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: user reader is required")
	}
	return q.reader.ListConnections(ctx, msg.UID)
}

type VerifyWebhookQuery struct {
	verifier WebhookVerifier
}

func NewVerifyWebhookQuery(verifier WebhookVerifier) *VerifyWebhookQuery {
	return &VerifyWebhookQuery{verifier: verifier}
}

// Query returns the challenge to echo back, or a forbidden error.
func (q *VerifyWebhookQuery) Query(ctx context.Context, msg VerifyWebhookMessage) (string, error) {
	if q == nil || q.verifier == nil {
		return "", queryDependencyError("query: webhook verifier is required")
	}
	return q.verifier.Verify(ctx, msg.Provider, msg.Query)
}
