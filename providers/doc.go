// Package providers holds the Graph API client shared by the Meta adapters.
// Adapter implementations live under providers/meta.
package providers
