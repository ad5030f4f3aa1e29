package security

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/goliatone/go-connections/core"
)

const testSecret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestVault(t *testing.T, opts ...Option) *Vault {
	t.Helper()
	vault, err := NewVaultFromSecret(testSecret, opts...)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return vault
}

func TestVault_SealOpenRoundTrip(t *testing.T) {
	vault := newTestVault(t, WithKeyID("connections-v1"))

	sealed, err := vault.Seal(context.Background(), "page-token-123")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed == "page-token-123" || strings.Contains(sealed, "page-token-123") {
		t.Fatalf("expected ciphertext to hide the plaintext, got %q", sealed)
	}
	if !strings.HasPrefix(sealed, envelopePrefix) {
		t.Fatalf("expected envelope prefix, got %q", sealed)
	}
	if !vault.IsSealed(sealed) {
		t.Fatalf("expected sealed value to be recognized")
	}

	opened, err := vault.Open(context.Background(), sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "page-token-123" {
		t.Fatalf("expected round trip plaintext, got %q", opened)
	}

	meta, err := ParseEnvelopeMetadata(sealed)
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if meta.KeyID != "connections-v1" || meta.Algorithm != envelopeAlgorithm {
		t.Fatalf("unexpected envelope metadata %+v", meta)
	}
}

func TestVault_SealUsesFreshNonce(t *testing.T) {
	vault := newTestVault(t)
	first, _ := vault.Seal(context.Background(), "same")
	second, _ := vault.Seal(context.Background(), "same")
	if first == second {
		t.Fatalf("expected distinct ciphertexts for the same plaintext")
	}
}

func TestVault_OpenRejectsForeignOrTamperedValues(t *testing.T) {
	vault := newTestVault(t)
	sealed, err := vault.Seal(context.Background(), "secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	otherMaterial := bytes.Repeat([]byte{9}, 32)
	other, err := NewVault(otherMaterial)
	if err != nil {
		t.Fatalf("new other vault: %v", err)
	}
	if _, err := other.Open(context.Background(), sealed); err == nil {
		t.Fatalf("expected a different key to fail")
	}

	rotated := newTestVault(t, WithKeyID("rotated"))
	if _, err := rotated.Open(context.Background(), sealed); err == nil {
		t.Fatalf("expected key id mismatch to fail")
	}

	env, err := decodeEnvelope(sealed)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	payload, _ := decodePayload("ciphertext", env.Ciphertext)
	payload[0] ^= 0xff
	env.Ciphertext = encodePayload(payload)
	tampered, err := encodeEnvelope(env)
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	if _, err := vault.Open(context.Background(), tampered); err == nil {
		t.Fatalf("expected tampered ciphertext to fail")
	}

	for _, value := range []string{"", "plain-token", envelopePrefix + "!!!"} {
		if _, err := vault.Open(context.Background(), value); err == nil {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
}

func TestVault_RejectsWeakSecrets(t *testing.T) {
	if _, err := NewVaultFromSecret(""); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
	if _, err := NewVaultFromSecret("too-short"); err == nil {
		t.Fatalf("expected short secret to fail")
	}
	if _, err := NewVault(nil); err == nil {
		t.Fatalf("expected empty material to fail")
	}
}

func TestVault_SealRejectsEmptyPlaintext(t *testing.T) {
	vault := newTestVault(t)
	if _, err := vault.Seal(context.Background(), ""); err == nil {
		t.Fatalf("expected empty plaintext to fail")
	}
}

func TestVault_WorksWithConnectionSealing(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Security.EncryptionSecret = testSecret
	vault, err := NewVaultFromConfig(cfg)
	if err != nil {
		t.Fatalf("new vault from config: %v", err)
	}
	connection := core.Connection{
		Provider:        core.ProviderFacebook,
		Status:          core.ConnectionStatusConnected,
		PageID:          "p1",
		UserAccessToken: "user-token",
		PageAccessToken: "page-token",
	}
	sealed, err := core.SealConnection(context.Background(), vault, connection)
	if err != nil {
		t.Fatalf("seal connection: %v", err)
	}
	if !vault.IsSealed(sealed.PageAccessToken) || !vault.IsSealed(sealed.UserAccessToken) {
		t.Fatalf("expected both tokens sealed, got %+v", sealed)
	}
	opened, err := core.OpenConnection(context.Background(), vault, sealed)
	if err != nil {
		t.Fatalf("open connection: %v", err)
	}
	if opened.PageAccessToken != "page-token" || opened.UserAccessToken != "user-token" {
		t.Fatalf("unexpected opened connection %+v", opened)
	}
}

func TestGenerateSecret(t *testing.T) {
	secret, err := GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	decoded, err := hex.DecodeString(secret)
	if err != nil || len(decoded) != generatedSecretBytes {
		t.Fatalf("expected 32 hex encoded bytes, got %q", secret)
	}
	if _, err := NewVaultFromSecret(secret); err != nil {
		t.Fatalf("expected generated secret to be accepted: %v", err)
	}

	fixed, err := generateSecretFrom(bytes.NewReader(bytes.Repeat([]byte{1}, 32)))
	if err != nil {
		t.Fatalf("generate from reader: %v", err)
	}
	if fixed != strings.Repeat("01", 32) {
		t.Fatalf("unexpected secret %q", fixed)
	}
	if _, err := generateSecretFrom(bytes.NewReader([]byte{1})); err == nil {
		t.Fatalf("expected short reader to fail")
	}
}
