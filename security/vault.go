package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-connections/core"
)

const defaultKeyID = "app-key"

type Option func(*Vault)

// Vault seals credential strings with AES-256-GCM under a key derived from
// the configured encryption secret.
type Vault struct {
	aead   cipher.AEAD
	keyID  string
	random io.Reader
}

func WithKeyID(id string) Option {
	return func(vault *Vault) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			vault.keyID = trimmed
		}
	}
}

// WithRandom replaces the nonce source. Tests only.
func WithRandom(reader io.Reader) Option {
	return func(vault *Vault) {
		if reader != nil {
			vault.random = reader
		}
	}
}

// NewVault derives the vault key from raw secret material.
func NewVault(material []byte, opts ...Option) (*Vault, error) {
	key, err := core.DeriveKey(material, core.KeyInfoCredentialVault)
	if err != nil {
		return nil, fmt.Errorf("security: derive vault key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	vault := &Vault{
		aead:   aead,
		keyID:  defaultKeyID,
		random: rand.Reader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(vault)
		}
	}
	return vault, nil
}

// NewVaultFromSecret accepts the configured secret, hex or raw, and enforces
// the minimum strength before deriving the key.
func NewVaultFromSecret(secret string, opts ...Option) (*Vault, error) {
	material, err := core.SecretKeyMaterial(secret)
	if err != nil {
		return nil, err
	}
	return NewVault(material, opts...)
}

// NewVaultFromConfig builds the vault from the security config section.
func NewVaultFromConfig(cfg core.Config) (*Vault, error) {
	return NewVaultFromSecret(cfg.Security.EncryptionSecret, WithKeyID(cfg.Security.KeyID))
}

func (v *Vault) Seal(_ context.Context, plaintext string) (string, error) {
	if v == nil || v.aead == nil {
		return "", fmt.Errorf("security: vault is nil")
	}
	if plaintext == "" {
		return "", fmt.Errorf("security: plaintext is required")
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(v.random, nonce); err != nil {
		return "", fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), []byte(v.keyID))
	return encodeEnvelope(envelope{
		KeyID:      v.keyID,
		Algorithm:  envelopeAlgorithm,
		Nonce:      encodePayload(nonce),
		Ciphertext: encodePayload(sealed),
	})
}

func (v *Vault) Open(_ context.Context, ciphertext string) (string, error) {
	if v == nil || v.aead == nil {
		return "", fmt.Errorf("security: vault is nil")
	}
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return "", err
	}
	if env.Algorithm != envelopeAlgorithm {
		return "", fmt.Errorf("security: unsupported envelope algorithm %q", env.Algorithm)
	}
	if env.KeyID != "" && env.KeyID != v.keyID {
		return "", fmt.Errorf("security: key id mismatch: got %q want %q", env.KeyID, v.keyID)
	}
	nonce, err := decodePayload("nonce", env.Nonce)
	if err != nil {
		return "", err
	}
	if len(nonce) != v.aead.NonceSize() {
		return "", fmt.Errorf("security: invalid nonce length %d", len(nonce))
	}
	payload, err := decodePayload("ciphertext", env.Ciphertext)
	if err != nil {
		return "", err
	}
	plaintext, err := v.aead.Open(nil, nonce, payload, []byte(env.KeyID))
	if err != nil {
		return "", fmt.Errorf("security: decrypt payload: %w", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether value carries the envelope prefix.
func (v *Vault) IsSealed(value string) bool {
	return hasEnvelopePrefix(strings.TrimSpace(value))
}

func (v *Vault) KeyID() string {
	if v == nil {
		return ""
	}
	return v.keyID
}

var _ core.CredentialVault = (*Vault)(nil)
