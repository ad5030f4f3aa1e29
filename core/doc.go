// Package core holds the connection domain: users with embedded provider
// connections, the authorization lifecycle that moves a connection from
// pending to connected, and the contracts stores, sessions and provider
// adapters implement. Adapters depend on core; core never imports them.
package core
