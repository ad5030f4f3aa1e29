package webhooks

import (
	"strings"

	"github.com/goliatone/go-connections/core"
)

// InboundRequest is one webhook delivery as received by the HTTP layer.
type InboundRequest struct {
	Provider core.ProviderKind
	Headers  map[string]string
	Body     []byte
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
