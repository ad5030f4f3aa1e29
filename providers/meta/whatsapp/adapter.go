// Package whatsapp connects a WhatsApp Business phone number for template
// notifications.
package whatsapp

import (
	"context"
	"strings"

	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/providers"
	meta "github.com/goliatone/go-connections/providers/meta/common"
)

const (
	ScopeBusinessManagement = "whatsapp_business_management"
	ScopeBusinessMessaging  = "whatsapp_business_messaging"
)

const (
	DefaultTemplateName = "hello_world"
	DefaultLanguageCode = "en_US"
	messagingProduct    = "whatsapp"
	messageTypeTemplate = "template"
)

const discoveryFields = "id,name,whatsapp_business_accounts{name,id,phone_numbers{display_phone_number,id,verified_name}}"

type Config = meta.AppConfig

type Adapter struct {
	app *meta.App
}

func New(cfg Config, opts ...meta.Option) (*Adapter, error) {
	app, err := meta.NewApp(core.ProviderWhatsApp, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Adapter{app: app}, nil
}

func (*Adapter) Provider() core.ProviderKind {
	return core.ProviderWhatsApp
}

func (*Adapter) DefaultScopes() []string {
	return []string{ScopeBusinessManagement, ScopeBusinessMessaging}
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

type phoneNumber struct {
	ID                 string `json:"id"`
	DisplayPhoneNumber string `json:"display_phone_number"`
	VerifiedName       string `json:"verified_name"`
}

type businessAccount struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PhoneNumbers struct {
		Data []phoneNumber `json:"data"`
	} `json:"phone_numbers"`
}

type profileResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	BusinessAccounts struct {
		Data []businessAccount `json:"data"`
	} `json:"whatsapp_business_accounts"`
}

// DiscoverResource connects the first phone number of the first business
// account. Later accounts are not searched when the first has no numbers.
func (a *Adapter) DiscoverResource(ctx context.Context, long core.Token) (core.ProviderResource, error) {
	out := profileResponse{}
	err := a.app.Graph().Get(ctx, "me", map[string]string{
		"fields":       discoveryFields,
		"access_token": long.AccessToken,
	}, &out)
	if err != nil {
		return core.ProviderResource{}, core.UpstreamAuthError(core.ProviderWhatsApp, meta.StepDiscoverResource, providers.FaultFromError(err))
	}
	if len(out.BusinessAccounts.Data) == 0 || strings.TrimSpace(out.BusinessAccounts.Data[0].ID) == "" {
		return core.ProviderResource{}, core.NoResourceFoundError(core.ProviderWhatsApp, "No WhatsApp Business Account found for this user")
	}
	account := out.BusinessAccounts.Data[0]
	if len(account.PhoneNumbers.Data) == 0 || strings.TrimSpace(account.PhoneNumbers.Data[0].ID) == "" {
		return core.ProviderResource{}, core.NoResourceFoundError(core.ProviderWhatsApp, "No phone number found in the WABA")
	}
	phone := account.PhoneNumbers.Data[0]
	return core.ProviderResource{
		WABAID:             account.ID,
		PhoneNumberID:      phone.ID,
		DisplayPhoneNumber: phone.DisplayPhoneNumber,
		VerifiedName:       phone.VerifiedName,
	}, nil
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateBody struct {
	Name       string           `json:"name"`
	Language   templateLanguage `json:"language"`
	Components []map[string]any `json:"components"`
}

type sendRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         templateBody `json:"template"`
}

// TemplateFor fills the template defaults used when a request omits them.
func TemplateFor(payload core.MessagePayload) (name string, language string, components []map[string]any) {
	name = strings.TrimSpace(payload.TemplateName)
	if name == "" {
		name = DefaultTemplateName
	}
	language = strings.TrimSpace(payload.LanguageCode)
	if language == "" {
		language = DefaultLanguageCode
	}
	components = payload.Components
	if components == nil {
		components = []map[string]any{}
	}
	return name, language, components
}

// SendMessage sends a template message from the connected phone number
// using the stored user token.
func (a *Adapter) SendMessage(ctx context.Context, connection core.Connection, to string, payload core.MessagePayload) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return core.ValidationError("to", "recipient phone number is required")
	}
	phoneNumberID := strings.TrimSpace(connection.PhoneNumberID)
	if phoneNumberID == "" || strings.TrimSpace(connection.UserAccessToken) == "" {
		return core.NotConnectedError("", core.ProviderWhatsApp)
	}
	name, language, components := TemplateFor(payload)
	err := a.app.Graph().PostJSON(ctx, phoneNumberID+"/messages", map[string]string{
		"access_token": connection.UserAccessToken,
	}, sendRequest{
		MessagingProduct: messagingProduct,
		To:               to,
		Type:             messageTypeTemplate,
		Template: templateBody{
			Name:       name,
			Language:   templateLanguage{Code: language},
			Components: components,
		},
	}, nil)
	if err != nil {
		return core.UpstreamSendError(core.ProviderWhatsApp, providers.FaultFromError(err))
	}
	return nil
}

var _ core.ProviderAdapter = (*Adapter)(nil)
