package facebook

import (
	"strings"

	"github.com/goliatone/go-connections/core"
	meta "github.com/goliatone/go-connections/providers/meta/common"
	"github.com/goliatone/go-connections/webhooks"
)

const webhookObjectPage = "page"

// WebhookParser maps Messenger deliveries to lastSenderPsid updates keyed by
// Page id.
type WebhookParser struct{}

func (WebhookParser) Provider() core.ProviderKind {
	return core.ProviderFacebook
}

func (WebhookParser) Parse(body []byte) (webhooks.ParseResult, error) {
	payload, err := meta.DecodeWebhook(body)
	if err != nil {
		return webhooks.ParseResult{}, err
	}
	result := webhooks.ParseResult{Malformed: payload.Malformed}
	if payload.Object != webhookObjectPage {
		result.Malformed += len(payload.Entry)
		return result, nil
	}
	for _, entry := range payload.Entry {
		pageID := strings.TrimSpace(entry.ID)
		if pageID == "" {
			result.Malformed++
			continue
		}
		for _, event := range entry.Messaging {
			psid := strings.TrimSpace(event.Sender.ID)
			if psid == "" {
				result.Malformed++
				continue
			}
			// Echoes of the page's own messages carry the page as sender.
			if psid == pageID {
				continue
			}
			result.Correlations = append(result.Correlations, webhooks.Correlation{
				ResourceID: pageID,
				Field:      core.CorrelationLastSenderPSID,
				Value:      psid,
			})
		}
	}
	return result, nil
}

var _ webhooks.PayloadParser = WebhookParser{}
