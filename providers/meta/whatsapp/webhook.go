package whatsapp

import (
	"strings"

	"github.com/goliatone/go-connections/core"
	meta "github.com/goliatone/go-connections/providers/meta/common"
	"github.com/goliatone/go-connections/webhooks"
)

const webhookObjectBusinessAccount = "whatsapp_business_account"

// WebhookParser maps inbound customer messages to lastCustomerWaId updates
// keyed by the receiving phone number id. Status-only changes produce
// nothing.
type WebhookParser struct{}

func (WebhookParser) Provider() core.ProviderKind {
	return core.ProviderWhatsApp
}

func (WebhookParser) Parse(body []byte) (webhooks.ParseResult, error) {
	payload, err := meta.DecodeWebhook(body)
	if err != nil {
		return webhooks.ParseResult{}, err
	}
	result := webhooks.ParseResult{Malformed: payload.Malformed}
	if payload.Object != webhookObjectBusinessAccount {
		result.Malformed += len(payload.Entry)
		return result, nil
	}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) == 0 {
				continue
			}
			phoneNumberID := strings.TrimSpace(change.Value.Metadata.PhoneNumberID)
			waID := strings.TrimSpace(change.Value.Messages[0].From)
			if phoneNumberID == "" || waID == "" {
				result.Malformed++
				continue
			}
			result.Correlations = append(result.Correlations, webhooks.Correlation{
				ResourceID: phoneNumberID,
				Field:      core.CorrelationLastCustomerWaID,
				Value:      waID,
			})
		}
	}
	return result, nil
}

var _ webhooks.PayloadParser = WebhookParser{}
