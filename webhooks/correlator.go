package webhooks

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
	glog "github.com/goliatone/go-logger/glog"
)

const HubModeSubscribe = "subscribe"

// Correlation is one targeted update extracted from a webhook entry.
type Correlation struct {
	ResourceID string
	Field      string
	Value      string
}

// ParseResult carries the usable correlations and the count of entries that
// were skipped as malformed.
type ParseResult struct {
	Correlations []Correlation
	Malformed    int
}

// PayloadParser turns one provider's webhook body into correlations. An
// error means the body itself could not be decoded.
type PayloadParser interface {
	Provider() core.ProviderKind
	Parse(body []byte) (ParseResult, error)
}

type HandshakeQuery struct {
	Mode        string
	VerifyToken string
	Challenge   string
}

type IngestResult struct {
	Received  int `json:"received"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	Malformed int `json:"malformed"`
	Coalesced int `json:"coalesced"`
}

// ProviderHooks is the per-provider webhook setup.
type ProviderHooks struct {
	Parser      PayloadParser
	VerifyToken string
	// Signature is optional; nil skips X-Hub-Signature-256 checks.
	Signature Verifier
}

type Option func(*Correlator)

func WithLogger(logger glog.Logger) Option {
	return func(c *Correlator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Correlator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithBurstController(burst *BurstController) Option {
	return func(c *Correlator) {
		c.burst = burst
	}
}

type Correlator struct {
	store  core.UserStore
	hooks  map[core.ProviderKind]ProviderHooks
	burst  *BurstController
	logger glog.Logger
	now    func() time.Time
}

func NewCorrelator(store core.UserStore, hooks map[core.ProviderKind]ProviderHooks, opts ...Option) (*Correlator, error) {
	if store == nil {
		return nil, fmt.Errorf("webhooks: user store is required")
	}
	registered := make(map[core.ProviderKind]ProviderHooks, len(hooks))
	for provider, hook := range hooks {
		if hook.Parser == nil {
			return nil, fmt.Errorf("webhooks: parser is required for %s", provider)
		}
		if hook.Parser.Provider() != provider {
			return nil, fmt.Errorf("webhooks: parser for %s registered under %s", hook.Parser.Provider(), provider)
		}
		registered[provider] = hook
	}
	correlator := &Correlator{
		store:  store,
		hooks:  registered,
		logger: glog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(correlator)
		}
	}
	return correlator, nil
}

func (c *Correlator) Providers() []core.ProviderKind {
	out := make([]core.ProviderKind, 0, len(c.hooks))
	for provider := range c.hooks {
		out = append(out, provider)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Verify answers the subscription handshake. Any failure, including an
// unknown provider or an unset verify token, yields the same 403 error.
func (c *Correlator) Verify(_ context.Context, provider core.ProviderKind, query HandshakeQuery) (string, error) {
	hook, ok := c.hooks[provider]
	if !ok {
		return "", VerificationFailedError()
	}
	expected := strings.TrimSpace(hook.VerifyToken)
	if expected == "" || query.Mode != HubModeSubscribe {
		return "", VerificationFailedError()
	}
	if subtle.ConstantTimeCompare([]byte(query.VerifyToken), []byte(expected)) != 1 {
		return "", VerificationFailedError()
	}
	return query.Challenge, nil
}

// Ingest applies every correlation in a delivery. Only an unknown provider,
// a rejected signature or an unparseable body produce an error.
func (c *Correlator) Ingest(ctx context.Context, req InboundRequest) (IngestResult, error) {
	hook, ok := c.hooks[req.Provider]
	if !ok {
		return IngestResult{}, core.NotFoundError("webhooks: provider has no webhook", map[string]any{
			"provider": string(req.Provider),
		})
	}
	logger := c.logger.WithContext(ctx)
	if hook.Signature != nil {
		if err := hook.Signature.Verify(ctx, req); err != nil {
			logger.Warn("webhook signature rejected", "provider", string(req.Provider), "error", err.Error())
			return IngestResult{}, signatureError(req.Provider, err)
		}
	}

	parsed, err := hook.Parser.Parse(req.Body)
	if err != nil {
		return IngestResult{}, unparseableError(req.Provider, err)
	}

	result := IngestResult{
		Received:  len(parsed.Correlations),
		Malformed: parsed.Malformed,
	}
	if parsed.Malformed > 0 {
		logger.Warn("webhook entries skipped", "provider", string(req.Provider), "malformed", parsed.Malformed)
	}
	at := c.now().UTC()
	for _, correlation := range parsed.Correlations {
		if !c.burst.Allow(req.Provider, correlation) {
			result.Coalesced++
			continue
		}
		matched, updateErr := c.store.UpdateCorrelation(ctx, req.Provider, correlation.ResourceID, correlation.Field, correlation.Value, at)
		if updateErr != nil {
			result.Malformed++
			logger.Warn("webhook correlation failed",
				"provider", string(req.Provider),
				"resource_id", correlation.ResourceID,
				"error", updateErr.Error(),
			)
			continue
		}
		if !matched {
			result.Unmatched++
			logger.Debug("webhook entry has no connection",
				"provider", string(req.Provider),
				"resource_id", correlation.ResourceID,
			)
			continue
		}
		result.Matched++
	}
	return result, nil
}
