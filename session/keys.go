package session

import (
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
)

const DefaultTTL = 15 * time.Minute

func stateKey(sessionID string, provider core.ProviderKind) string {
	return "state:" + strings.TrimSpace(sessionID) + ":" + string(provider)
}

func userKey(sessionID string) string {
	return "user:" + strings.TrimSpace(sessionID)
}
