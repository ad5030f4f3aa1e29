package webhooks

import (
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-connections/core"
)

type BurstMode string

const (
	BurstModeNone     BurstMode = "none"
	BurstModeCoalesce BurstMode = "coalesce"
)

type BurstOptions struct {
	Mode       BurstMode
	Window     time.Duration
	MaxEntries int
	Now        func() time.Time
}

// BurstController suppresses repeated identical correlation writes inside a
// window. Meta redelivers batches and chat bursts repeat the same sender, so
// most of those writes would change nothing but lastEventAt.
type BurstController struct {
	mode       BurstMode
	window     time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewBurstController(opts BurstOptions) *BurstController {
	window := opts.Window
	if window <= 0 {
		window = 2 * time.Second
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &BurstController{
		mode:       normalizeBurstMode(opts.Mode),
		window:     window,
		maxEntries: maxEntries,
		now:        now,
		entries:    map[string]time.Time{},
	}
}

// Allow reports whether the correlation should be written.
func (c *BurstController) Allow(provider core.ProviderKind, correlation Correlation) bool {
	if c == nil || c.mode == BurstModeNone {
		return true
	}
	key := burstKey(provider, correlation)
	now := c.now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	lastSeen, exists := c.entries[key]
	c.entries[key] = now
	c.cleanup(now)
	if !exists {
		return true
	}
	return now.Sub(lastSeen) >= c.window
}

func (c *BurstController) cleanup(now time.Time) {
	if len(c.entries) <= c.maxEntries {
		for key, seenAt := range c.entries {
			if now.Sub(seenAt) > c.window*4 {
				delete(c.entries, key)
			}
		}
		return
	}
	for key, seenAt := range c.entries {
		if now.Sub(seenAt) > c.window {
			delete(c.entries, key)
		}
		if len(c.entries) <= c.maxEntries {
			break
		}
	}
}

func burstKey(provider core.ProviderKind, correlation Correlation) string {
	return strings.Join([]string{
		string(provider),
		correlation.ResourceID,
		correlation.Field,
		correlation.Value,
	}, "|")
}

func normalizeBurstMode(mode BurstMode) BurstMode {
	if strings.EqualFold(strings.TrimSpace(string(mode)), string(BurstModeCoalesce)) {
		return BurstModeCoalesce
	}
	return BurstModeNone
}
