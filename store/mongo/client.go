// Package mongostore persists users as Mongo documents with embedded
// connections. Correlation writes use positional updates; every write bumps a
// version field.
package mongostore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

const (
	DefaultDatabase       = "connections"
	DefaultCollection     = "users"
	defaultConnectTimeout = 10 * time.Second
)

// Connect dials the deployment with the otel command monitor attached and
// verifies it with a primary ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("mongostore: store.mongo_uri is required")
	}
	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(defaultConnectTimeout).
		SetMonitor(otelmongo.NewMonitor())
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	return client, nil
}

func databaseName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return DefaultDatabase
}
