package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	MetaSignatureHeader = "X-Hub-Signature-256"
	metaSignaturePrefix = "sha256="
)

type Verifier interface {
	Verify(ctx context.Context, req InboundRequest) error
}

type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	var decoded []byte
	var err error
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
	default:
		decoded, err = hex.DecodeString(signature)
	}
	if err != nil {
		return fmt.Errorf("webhooks: decode signature: %w", err)
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

// NewMetaSignatureVerifier checks X-Hub-Signature-256, which Meta computes
// over the raw body with the app secret.
func NewMetaSignatureVerifier(appSecret string) HeaderHMACVerifier {
	return HeaderHMACVerifier{
		Header:   MetaSignatureHeader,
		Prefix:   metaSignaturePrefix,
		Secret:   strings.TrimSpace(appSecret),
		Encoding: "hex",
	}
}

// SignMetaPayload returns the header value Meta would send for body.
func SignMetaPayload(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(appSecret)))
	_, _ = mac.Write(body)
	return metaSignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
