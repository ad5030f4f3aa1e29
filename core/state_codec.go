package core

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const stateNonceBytes = 16

type stateClaims struct {
	UID      string `json:"uid"`
	Provider string `json:"prv"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}

// StateCodec issues and validates the opaque OAuth state. A state is an HS256
// token carrying the owning uid, the provider and a random nonce.
type StateCodec struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
	random     io.Reader
}

type StateCodecOption func(*StateCodec)

func WithStateClock(now func() time.Time) StateCodecOption {
	return func(c *StateCodec) {
		if now != nil {
			c.now = now
		}
	}
}

func WithStateRandom(reader io.Reader) StateCodecOption {
	return func(c *StateCodec) {
		if reader != nil {
			c.random = reader
		}
	}
}

func NewStateCodec(signingKey []byte, ttl time.Duration, opts ...StateCodecOption) (*StateCodec, error) {
	if len(signingKey) < derivedKeySize {
		return nil, fmt.Errorf("core: state signing key must be at least %d bytes", derivedKeySize)
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	codec := &StateCodec{
		signingKey: append([]byte(nil), signingKey...),
		ttl:        ttl,
		now: func() time.Time {
			return time.Now().UTC()
		},
		random: rand.Reader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(codec)
		}
	}
	return codec, nil
}

// NewStateCodecFromSecret derives the signing key from the configured
// encryption secret.
func NewStateCodecFromSecret(secret string, ttl time.Duration, opts ...StateCodecOption) (*StateCodec, error) {
	material, err := SecretKeyMaterial(secret)
	if err != nil {
		return nil, err
	}
	key, err := DeriveKey(material, KeyInfoStateSigning)
	if err != nil {
		return nil, err
	}
	return NewStateCodec(key, ttl, opts...)
}

func (c *StateCodec) Issue(uid string, provider ProviderKind) (string, error) {
	if c == nil {
		return "", fmt.Errorf("core: state codec is not configured")
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return "", fmt.Errorf("core: uid is required to issue oauth state")
	}
	nonce := make([]byte, stateNonceBytes)
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("core: generate oauth state nonce: %w", err)
	}
	issuedAt := c.now()
	claims := stateClaims{
		UID:      uid,
		Provider: string(provider),
		Nonce:    base64.RawURLEncoding.EncodeToString(nonce),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("core: sign oauth state: %w", err)
	}
	return signed, nil
}

// Consume checks the presented state against the session copy and returns
// the embedded uid. The caller clears the session copy on success.
func (c *StateCodec) Consume(state string, sessionState string, provider ProviderKind) (string, error) {
	if c == nil {
		return "", InvalidStateError("codec_unavailable")
	}
	state = strings.TrimSpace(state)
	sessionState = strings.TrimSpace(sessionState)
	if state == "" {
		return "", InvalidStateError("missing_state")
	}
	if sessionState == "" {
		return "", InvalidStateError("missing_session_state")
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(sessionState)) != 1 {
		return "", InvalidStateError("state_mismatch")
	}

	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(*jwt.Token) (any, error) {
		return c.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", InvalidStateError("state_unparseable")
	}
	if claims.Provider != string(provider) {
		return "", InvalidStateError("provider_mismatch")
	}
	uid := strings.TrimSpace(claims.UID)
	if uid == "" || strings.TrimSpace(claims.Nonce) == "" {
		return "", InvalidStateError("state_unparseable")
	}
	return uid, nil
}
