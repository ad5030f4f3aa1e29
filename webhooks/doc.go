// Package webhooks verifies Meta webhook subscriptions and correlates inbound
// deliveries with stored connections.
//
// Ingest never fails a parsed batch: unmatched entries are dropped and
// malformed ones are skipped, so Meta does not retry deliveries that can
// never succeed.
package webhooks
