package core

import (
	"context"
	"fmt"
)

// SealConnection returns a copy with token fields encrypted. Connections that
// are not connected never carry credentials.
func SealConnection(ctx context.Context, vault CredentialVault, connection Connection) (Connection, error) {
	sealed := connection
	if !connection.IsConnected() {
		sealed.UserAccessToken = ""
		sealed.PageAccessToken = ""
		return sealed, nil
	}
	if vault == nil {
		return Connection{}, fmt.Errorf("core: credential vault is required")
	}
	var err error
	if sealed.UserAccessToken, err = sealValue(ctx, vault, connection.UserAccessToken); err != nil {
		return Connection{}, err
	}
	if sealed.PageAccessToken, err = sealValue(ctx, vault, connection.PageAccessToken); err != nil {
		return Connection{}, err
	}
	return sealed, nil
}

// OpenConnection decrypts token fields read from storage.
func OpenConnection(ctx context.Context, vault CredentialVault, connection Connection) (Connection, error) {
	opened := connection
	if connection.UserAccessToken == "" && connection.PageAccessToken == "" {
		return opened, nil
	}
	if vault == nil {
		return Connection{}, fmt.Errorf("core: credential vault is required")
	}
	var err error
	if opened.UserAccessToken, err = openValue(ctx, vault, connection.UserAccessToken); err != nil {
		return Connection{}, err
	}
	if opened.PageAccessToken, err = openValue(ctx, vault, connection.PageAccessToken); err != nil {
		return Connection{}, err
	}
	return opened, nil
}

func SealConnections(ctx context.Context, vault CredentialVault, connections []Connection) ([]Connection, error) {
	out := make([]Connection, 0, len(connections))
	for _, connection := range connections {
		sealed, err := SealConnection(ctx, vault, connection)
		if err != nil {
			return nil, err
		}
		out = append(out, sealed)
	}
	return out, nil
}

func OpenConnections(ctx context.Context, vault CredentialVault, connections []Connection) ([]Connection, error) {
	out := make([]Connection, 0, len(connections))
	for _, connection := range connections {
		opened, err := OpenConnection(ctx, vault, connection)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	return out, nil
}

func sealValue(ctx context.Context, vault CredentialVault, value string) (string, error) {
	if value == "" || vault.IsSealed(value) {
		return value, nil
	}
	sealed, err := vault.Seal(ctx, value)
	if err != nil {
		return "", fmt.Errorf("core: seal credential: %w", err)
	}
	return sealed, nil
}

func openValue(ctx context.Context, vault CredentialVault, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if !vault.IsSealed(value) {
		return "", fmt.Errorf("core: stored credential is not sealed")
	}
	opened, err := vault.Open(ctx, value)
	if err != nil {
		return "", fmt.Errorf("core: open credential: %w", err)
	}
	return opened, nil
}
