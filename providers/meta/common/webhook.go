package common

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WebhookEnvelope is a decoded Meta delivery. Malformed counts entries and
// events that were dropped because they did not match the expected shape.
type WebhookEnvelope struct {
	Object    string
	Entry     []WebhookEntry
	Malformed int
}

type WebhookEntry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
	Changes   []WebhookChange  `json:"changes"`
}

type WebhookParty struct {
	ID string `json:"id"`
}

type MessagingEvent struct {
	Sender    WebhookParty `json:"sender"`
	Recipient WebhookParty `json:"recipient"`
	Timestamp int64        `json:"timestamp"`
}

type WebhookChange struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string          `json:"messaging_product"`
	Metadata         ChangeMetadata  `json:"metadata"`
	Messages         []ChangeMessage `json:"messages"`
}

type ChangeMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type ChangeMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
}

type rawEnvelope struct {
	Object string            `json:"object"`
	Entry  []json.RawMessage `json:"entry"`
}

type rawEntry struct {
	ID        string            `json:"id"`
	Time      int64             `json:"time"`
	Messaging []json.RawMessage `json:"messaging"`
	Changes   []json.RawMessage `json:"changes"`
}

// DecodeWebhook parses a Meta delivery. A body without an object field is
// not a Meta webhook and is rejected. Entries, messaging events and changes
// are decoded one by one; a bad item is counted in Malformed and skipped.
func DecodeWebhook(body []byte) (WebhookEnvelope, error) {
	if len(body) == 0 {
		return WebhookEnvelope{}, fmt.Errorf("providers/meta/common: webhook body is required")
	}
	raw := rawEnvelope{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return WebhookEnvelope{}, fmt.Errorf("providers/meta/common: parse webhook payload: %w", err)
	}
	payload := WebhookEnvelope{Object: strings.TrimSpace(strings.ToLower(raw.Object))}
	if payload.Object == "" {
		return WebhookEnvelope{}, fmt.Errorf("providers/meta/common: webhook object is required")
	}
	for _, item := range raw.Entry {
		entry, malformed, ok := decodeEntry(item)
		payload.Malformed += malformed
		if ok {
			payload.Entry = append(payload.Entry, entry)
		}
	}
	return payload, nil
}

func decodeEntry(item json.RawMessage) (WebhookEntry, int, bool) {
	raw := rawEntry{}
	if err := json.Unmarshal(item, &raw); err != nil {
		return WebhookEntry{}, 1, false
	}
	entry := WebhookEntry{ID: raw.ID, Time: raw.Time}
	malformed := 0
	for _, msg := range raw.Messaging {
		event := MessagingEvent{}
		if err := json.Unmarshal(msg, &event); err != nil {
			malformed++
			continue
		}
		entry.Messaging = append(entry.Messaging, event)
	}
	for _, msg := range raw.Changes {
		change := WebhookChange{}
		if err := json.Unmarshal(msg, &change); err != nil {
			malformed++
			continue
		}
		entry.Changes = append(entry.Changes, change)
	}
	return entry, malformed, true
}
