// Package common holds the Meta OAuth and webhook plumbing shared by the
// Facebook and WhatsApp adapters.
package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/providers"
	"github.com/goliatone/go-connections/transport"
	"golang.org/x/oauth2"
)

const (
	DialogHost              = "https://www.facebook.com"
	grantTypeExchangeToken  = "fb_exchange_token"
	defaultProviderTimeout  = 30 * time.Second
	StepExchangeCode        = "exchange_code"
	StepUpgradeToken        = "upgrade_token"
	StepDiscoverResource    = "discover_resource"
	missingAccessTokenFault = "provider returned no access token"
)

// AppConfig is one Meta app registration.
type AppConfig struct {
	AppID        string
	AppSecret    string
	RedirectURI  string
	GraphVersion string
}

type Option func(*appOptions)

type appOptions struct {
	httpClient *http.Client
	graphBase  string
	dialogBase string
}

// WithHTTPClient sets the client used for token and Graph calls.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *appOptions) {
		if client != nil {
			opts.httpClient = client
		}
	}
}

// WithGraphBaseURL overrides https://graph.facebook.com.
func WithGraphBaseURL(base string) Option {
	return func(opts *appOptions) {
		opts.graphBase = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithDialogBaseURL overrides https://www.facebook.com.
func WithDialogBaseURL(base string) Option {
	return func(opts *appOptions) {
		opts.dialogBase = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// App performs the OAuth steps every Meta product shares: the dialog URL,
// the code exchange and the long-lived token upgrade.
type App struct {
	provider   core.ProviderKind
	cfg        AppConfig
	oauth      *oauth2.Config
	graph      *providers.GraphClient
	httpClient *http.Client
}

func NewApp(provider core.ProviderKind, cfg AppConfig, opts ...Option) (*App, error) {
	cfg.AppID = strings.TrimSpace(cfg.AppID)
	cfg.AppSecret = strings.TrimSpace(cfg.AppSecret)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)
	cfg.GraphVersion = strings.Trim(strings.TrimSpace(cfg.GraphVersion), "/")
	if cfg.GraphVersion == "" {
		cfg.GraphVersion = providers.DefaultGraphVersion
	}
	if cfg.AppID == "" {
		return nil, fmt.Errorf("providers/meta/common: %s app id is required", provider)
	}
	if cfg.AppSecret == "" {
		return nil, fmt.Errorf("providers/meta/common: %s app secret is required", provider)
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("providers/meta/common: %s redirect uri is required", provider)
	}

	resolved := appOptions{
		httpClient: &http.Client{Timeout: defaultProviderTimeout},
		dialogBase: DialogHost,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&resolved)
		}
	}

	graphOpts := []providers.GraphOption{}
	if resolved.graphBase != "" {
		graphOpts = append(graphOpts, providers.WithGraphBaseURL(resolved.graphBase))
	}
	graph := providers.NewGraphClient(cfg.GraphVersion, transport.NewRESTAdapter(resolved.httpClient), graphOpts...)

	return &App{
		provider: provider,
		cfg:      cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   resolved.dialogBase + "/" + cfg.GraphVersion + "/dialog/oauth",
				TokenURL:  graph.URL("oauth/access_token"),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		graph:      graph,
		httpClient: resolved.httpClient,
	}, nil
}

func (a *App) Provider() core.ProviderKind {
	return a.provider
}

func (a *App) Graph() *providers.GraphClient {
	return a.graph
}

// AuthorizationURL builds the dialog URL. Meta expects comma separated
// scopes, so the scope parameter is set directly instead of through
// oauth2.Config.Scopes, which joins with spaces.
func (a *App) AuthorizationURL(state string, scopes []string) (string, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return "", fmt.Errorf("providers/meta/common: state is required")
	}
	opts := []oauth2.AuthCodeOption{}
	if joined := JoinScopes(scopes); joined != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", joined))
	}
	return a.oauth.AuthCodeURL(state, opts...), nil
}

// ExchangeCode trades the redirect code for a short-lived user token.
func (a *App) ExchangeCode(ctx context.Context, code string) (core.Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return core.Token{}, core.ValidationError("code", "authorization code is required")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return core.Token{}, core.UpstreamAuthError(a.provider, StepExchangeCode, exchangeFault(err))
	}
	return core.Token{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// UpgradeToken swaps a short-lived token for a long-lived one.
func (a *App) UpgradeToken(ctx context.Context, short core.Token) (core.Token, error) {
	if strings.TrimSpace(short.AccessToken) == "" {
		return core.Token{}, core.UpstreamAuthError(a.provider, StepUpgradeToken, core.UpstreamFault{Message: missingAccessTokenFault})
	}
	out := tokenResponse{}
	err := a.graph.Get(ctx, "oauth/access_token", map[string]string{
		"grant_type":        grantTypeExchangeToken,
		"client_id":         a.cfg.AppID,
		"client_secret":     a.cfg.AppSecret,
		"fb_exchange_token": short.AccessToken,
	}, &out)
	if err != nil {
		return core.Token{}, core.UpstreamAuthError(a.provider, StepUpgradeToken, providers.FaultFromError(err))
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return core.Token{}, core.UpstreamAuthError(a.provider, StepUpgradeToken, core.UpstreamFault{
			HTTPStatus: http.StatusOK,
			Message:    missingAccessTokenFault,
		})
	}
	return core.Token{
		AccessToken: out.AccessToken,
		TokenType:   out.TokenType,
		ExpiresIn:   out.ExpiresIn,
	}, nil
}

func exchangeFault(err error) core.UpstreamFault {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return providers.DecodeGraphFault(retrieveErr.Response.StatusCode, retrieveErr.Body)
	}
	return providers.FaultFromError(err)
}

// JoinScopes trims, drops empties and duplicates, and keeps order.
func JoinScopes(scopes []string) string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		normalized := strings.TrimSpace(scope)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return strings.Join(out, ",")
}
