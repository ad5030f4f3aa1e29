// Package facebook connects a Facebook Page for Messenger notifications.
package facebook

import (
	"context"
	"strings"

	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/providers"
	meta "github.com/goliatone/go-connections/providers/meta/common"
)

const (
	ScopePublicProfile       = "public_profile"
	ScopePagesShowList       = "pages_show_list"
	ScopePagesManageMetadata = "pages_manage_metadata"
	ScopePagesMessaging      = "pages_messaging"
)

// Messages go out as ACCOUNT_UPDATE tagged messages so they are allowed
// outside the 24 hour standard messaging window.
const (
	MessagingTypeTag  = "MESSAGE_TAG"
	MessageTagAccount = "ACCOUNT_UPDATE"
)

type Config = meta.AppConfig

type Adapter struct {
	app *meta.App
}

func New(cfg Config, opts ...meta.Option) (*Adapter, error) {
	app, err := meta.NewApp(core.ProviderFacebook, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Adapter{app: app}, nil
}

func (*Adapter) Provider() core.ProviderKind {
	return core.ProviderFacebook
}

func (*Adapter) DefaultScopes() []string {
	return []string{
		ScopePublicProfile,
		ScopePagesShowList,
		ScopePagesManageMetadata,
		ScopePagesMessaging,
	}
}

func (a *Adapter) BuildAuthorizationURL(state string, scopes []string) (string, error) {
	return a.app.AuthorizationURL(state, scopes)
}

func (a *Adapter) ExchangeCode(ctx context.Context, code string) (core.Token, error) {
	return a.app.ExchangeCode(ctx, code)
}

func (a *Adapter) UpgradeToken(ctx context.Context, short core.Token) (core.Token, error) {
	return a.app.UpgradeToken(ctx, short)
}

type page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

type accountsResponse struct {
	Data []page `json:"data"`
}

// DiscoverResource connects the first Page that comes back with a page
// token. Pages without one cannot send messages and are skipped.
func (a *Adapter) DiscoverResource(ctx context.Context, long core.Token) (core.ProviderResource, error) {
	out := accountsResponse{}
	err := a.app.Graph().Get(ctx, "me/accounts", map[string]string{
		"fields":       "id,name,access_token",
		"access_token": long.AccessToken,
	}, &out)
	if err != nil {
		return core.ProviderResource{}, core.UpstreamAuthError(core.ProviderFacebook, meta.StepDiscoverResource, providers.FaultFromError(err))
	}
	for _, candidate := range out.Data {
		if strings.TrimSpace(candidate.ID) == "" || strings.TrimSpace(candidate.AccessToken) == "" {
			continue
		}
		return core.ProviderResource{
			PageID:          candidate.ID,
			PageName:        candidate.Name,
			PageAccessToken: candidate.AccessToken,
		}, nil
	}
	return core.ProviderResource{}, core.NoResourceFoundError(core.ProviderFacebook, "No Facebook Pages found for this user")
}

type sendRequest struct {
	Recipient     recipient   `json:"recipient"`
	Message       messageBody `json:"message"`
	MessagingType string      `json:"messaging_type"`
	Tag           string      `json:"tag"`
}

type recipient struct {
	ID string `json:"id"`
}

type messageBody struct {
	Text string `json:"text"`
}

// SendMessage posts a text message to the page-scoped id using the stored
// page token.
func (a *Adapter) SendMessage(ctx context.Context, connection core.Connection, psid string, payload core.MessagePayload) error {
	psid = strings.TrimSpace(psid)
	if psid == "" {
		return core.ValidationError("psid", "psid is required")
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return core.ValidationError("message", "message is required")
	}
	if strings.TrimSpace(connection.PageAccessToken) == "" {
		return core.NotConnectedError("", core.ProviderFacebook)
	}
	err := a.app.Graph().PostJSON(ctx, "me/messages", map[string]string{
		"access_token": connection.PageAccessToken,
	}, sendRequest{
		Recipient:     recipient{ID: psid},
		Message:       messageBody{Text: payload.Text},
		MessagingType: MessagingTypeTag,
		Tag:           MessageTagAccount,
	}, nil)
	if err != nil {
		return core.UpstreamSendError(core.ProviderFacebook, providers.FaultFromError(err))
	}
	return nil
}

var _ core.ProviderAdapter = (*Adapter)(nil)
