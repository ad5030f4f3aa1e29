package security

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	envelopePrefix    = "enc:v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

// envelope is the JSON body carried after the prefix, base64url encoded so
// the whole value stays a plain string in the same column.
type envelope struct {
	KeyID      string `json:"kid"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ct"`
}

type EnvelopeMetadata struct {
	KeyID     string
	Algorithm string
}

// ParseEnvelopeMetadata reports the key id and algorithm of a sealed value
// without decrypting it.
func ParseEnvelopeMetadata(value string) (EnvelopeMetadata, error) {
	env, err := decodeEnvelope(value)
	if err != nil {
		return EnvelopeMetadata{}, err
	}
	return EnvelopeMetadata{KeyID: env.KeyID, Algorithm: env.Algorithm}, nil
}

func hasEnvelopePrefix(value string) bool {
	return strings.HasPrefix(value, envelopePrefix)
}

func encodeEnvelope(env envelope) (string, error) {
	data, err := json.Marshal(normalizeEnvelope(env))
	if err != nil {
		return "", fmt.Errorf("security: encode envelope: %w", err)
	}
	return envelopePrefix + base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeEnvelope(value string) (envelope, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return envelope{}, fmt.Errorf("security: ciphertext is required")
	}
	if !hasEnvelopePrefix(value) {
		return envelope{}, fmt.Errorf("security: invalid ciphertext envelope prefix")
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, envelopePrefix))
	if err != nil {
		return envelope{}, fmt.Errorf("security: decode envelope encoding: %w", err)
	}
	parsed := envelope{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return envelope{}, fmt.Errorf("security: decode envelope: %w", err)
	}
	parsed = normalizeEnvelope(parsed)
	if parsed.Algorithm == "" {
		parsed.Algorithm = envelopeAlgorithm
	}
	if parsed.Ciphertext == "" {
		return envelope{}, fmt.Errorf("security: envelope ciphertext is required")
	}
	return parsed, nil
}

func normalizeEnvelope(in envelope) envelope {
	in.KeyID = strings.TrimSpace(in.KeyID)
	in.Algorithm = strings.ToLower(strings.TrimSpace(in.Algorithm))
	return in
}

func encodePayload(value []byte) string {
	return base64.RawURLEncoding.EncodeToString(value)
}

func decodePayload(field string, value string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("security: envelope %s is required", field)
	}
	decoded, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("security: decode %s: %w", field, err)
	}
	return decoded, nil
}
