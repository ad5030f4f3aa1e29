// Package session stores the per-client values of an authorization round
// trip: the issued state per provider and the uid bound to the session.
package session
