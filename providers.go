package connections

import (
	"fmt"

	"github.com/goliatone/go-connections/core"
	meta "github.com/goliatone/go-connections/providers/meta/common"
	"github.com/goliatone/go-connections/providers/meta/facebook"
	"github.com/goliatone/go-connections/providers/meta/whatsapp"
	"github.com/goliatone/go-connections/webhooks"
)

func FacebookProvider(cfg facebook.Config, opts ...meta.Option) (core.ProviderAdapter, error) {
	return facebook.New(cfg, opts...)
}

func WhatsAppProvider(cfg whatsapp.Config, opts ...meta.Option) (core.ProviderAdapter, error) {
	return whatsapp.New(cfg, opts...)
}

// NewRegistryFromConfig registers an adapter for every enabled provider
// section.
func NewRegistryFromConfig(cfg Config, opts ...meta.Option) (*core.ProviderRegistry, error) {
	registry := core.NewProviderRegistry()
	if cfg.Facebook.Enabled {
		adapter, err := FacebookProvider(appConfig(cfg, cfg.Facebook), opts...)
		if err != nil {
			return nil, fmt.Errorf("connections: facebook provider: %w", err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	if cfg.WhatsApp.Enabled {
		adapter, err := WhatsAppProvider(appConfig(cfg, cfg.WhatsApp), opts...)
		if err != nil {
			return nil, fmt.Errorf("connections: whatsapp provider: %w", err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// WebhookHooksFromConfig returns the parser, verify token and optional
// signature check for every enabled provider.
func WebhookHooksFromConfig(cfg Config) map[core.ProviderKind]webhooks.ProviderHooks {
	hooks := map[core.ProviderKind]webhooks.ProviderHooks{}
	if cfg.Facebook.Enabled {
		hooks[core.ProviderFacebook] = providerHooks(cfg.Facebook, facebook.WebhookParser{})
	}
	if cfg.WhatsApp.Enabled {
		hooks[core.ProviderWhatsApp] = providerHooks(cfg.WhatsApp, whatsapp.WebhookParser{})
	}
	return hooks
}

func providerHooks(section core.ProviderConfig, parser webhooks.PayloadParser) webhooks.ProviderHooks {
	hook := webhooks.ProviderHooks{
		Parser:      parser,
		VerifyToken: section.VerifyToken,
	}
	if section.VerifySignature {
		hook.Signature = webhooks.NewMetaSignatureVerifier(section.AppSecret)
	}
	return hook
}

func appConfig(cfg Config, section core.ProviderConfig) meta.AppConfig {
	return meta.AppConfig{
		AppID:        section.AppID,
		AppSecret:    section.AppSecret,
		RedirectURI:  section.RedirectURI,
		GraphVersion: cfg.OAuth.GraphVersion,
	}
}
