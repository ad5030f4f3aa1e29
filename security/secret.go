package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

const generatedSecretBytes = 32

// GenerateSecret returns 32 random bytes hex encoded, suitable for
// ENCRYPTION_SECRET.
func GenerateSecret() (string, error) {
	return generateSecretFrom(rand.Reader)
}

func generateSecretFrom(reader io.Reader) (string, error) {
	buf := make([]byte, generatedSecretBytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return "", fmt.Errorf("security: generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
