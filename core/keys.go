package core

import (
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Key derivation labels. Each purpose gets its own subkey so the vault and
// the state signer never share key bytes.
const (
	KeyInfoCredentialVault = "connections.vault.v1"
	KeyInfoStateSigning    = "connections.state.v1"
)

const derivedKeySize = 32

// DeriveKey expands the master secret into a purpose-bound 256-bit key.
func DeriveKey(material []byte, info string) ([]byte, error) {
	if len(material) == 0 {
		return nil, fmt.Errorf("core: key material is required")
	}
	info = strings.TrimSpace(info)
	if info == "" {
		return nil, fmt.Errorf("core: key derivation info is required")
	}
	reader := hkdf.New(sha256.New, material, nil, []byte(info))
	key := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("core: derive key: %w", err)
	}
	return key, nil
}
