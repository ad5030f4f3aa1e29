package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/goliatone/go-connections/core"
	meta "github.com/goliatone/go-connections/providers/meta/common"
	goerrors "github.com/goliatone/go-errors"
)

type graphStub struct {
	mu       sync.Mutex
	profile  string
	sendCode int
	sendBody string

	lastPath  string
	lastQuery url.Values
	lastBody  string
}

func (g *graphStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	g.mu.Lock()
	g.lastPath = r.URL.Path
	g.lastQuery = r.URL.Query()
	g.lastBody = string(data)
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v22.0/me":
		_, _ = w.Write([]byte(g.profile))
	case "/v22.0/ph1/messages":
		if g.sendCode != 0 {
			w.WriteHeader(g.sendCode)
			_, _ = w.Write([]byte(g.sendBody))
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	case "/v22.0/oauth/access_token":
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Error validating access token","type":"OAuthException","code":190}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestAdapter(t *testing.T, graph *graphStub) *Adapter {
	t.Helper()
	server := httptest.NewServer(graph)
	t.Cleanup(server.Close)
	adapter, err := New(Config{
		AppID:        "wa-app",
		AppSecret:    "wa-secret",
		RedirectURI:  "https://app.example/wa/callback",
		GraphVersion: "v22.0",
	}, meta.WithHTTPClient(server.Client()), meta.WithGraphBaseURL(server.URL))
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func TestAdapter_AuthorizationURLUsesBusinessScopes(t *testing.T) {
	adapter := newTestAdapter(t, &graphStub{})
	raw, err := adapter.BuildAuthorizationURL("st", adapter.DefaultScopes())
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	parsed, _ := url.Parse(raw)
	if parsed.Query().Get("scope") != "whatsapp_business_management,whatsapp_business_messaging" {
		t.Fatalf("unexpected scope %q", parsed.Query().Get("scope"))
	}
	if parsed.Query().Get("client_id") != "wa-app" {
		t.Fatalf("unexpected client id in %q", raw)
	}
}

func TestAdapter_DiscoverPicksFirstAccountAndNumber(t *testing.T) {
	graph := &graphStub{profile: `{
		"id": "u",
		"whatsapp_business_accounts": {"data": [
			{"id": "waba1", "name": "Biz", "phone_numbers": {"data": [
				{"id": "ph1", "display_phone_number": "+1 555 0100", "verified_name": "Biz"},
				{"id": "ph2", "display_phone_number": "+1 555 0101"}
			]}},
			{"id": "waba2", "phone_numbers": {"data": [{"id": "ph3"}]}}
		]}
	}`}
	adapter := newTestAdapter(t, graph)
	resource, err := adapter.DiscoverResource(context.Background(), core.Token{AccessToken: "long"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if resource.WABAID != "waba1" || resource.PhoneNumberID != "ph1" || resource.DisplayPhoneNumber != "+1 555 0100" || resource.VerifiedName != "Biz" {
		t.Fatalf("unexpected resource %+v", resource)
	}
	if graph.lastQuery.Get("fields") != discoveryFields || graph.lastQuery.Get("access_token") != "long" {
		t.Fatalf("unexpected discovery query %v", graph.lastQuery)
	}
}

func TestAdapter_DiscoverNoResource(t *testing.T) {
	cases := map[string]string{
		"no accounts":      `{"id":"u"}`,
		"empty accounts":   `{"whatsapp_business_accounts":{"data":[]}}`,
		"no phone numbers": `{"whatsapp_business_accounts":{"data":[{"id":"waba1","phone_numbers":{"data":[]}},{"id":"waba2","phone_numbers":{"data":[{"id":"ph"}]}}]}}`,
	}
	for name, profile := range cases {
		t.Run(name, func(t *testing.T) {
			adapter := newTestAdapter(t, &graphStub{profile: profile})
			_, err := adapter.DiscoverResource(context.Background(), core.Token{AccessToken: "long"})
			if !core.HasTextCode(err, core.ErrorNoResourceFound) {
				t.Fatalf("expected no resource, got %v", err)
			}
		})
	}
}

func TestAdapter_UpgradeWithDeadTokenIsBadGateway(t *testing.T) {
	adapter := newTestAdapter(t, &graphStub{})
	_, err := adapter.UpgradeToken(context.Background(), core.Token{AccessToken: "short"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %v", err)
	}
	if rich.TextCode != core.ErrorUpstreamAuth || rich.Code != http.StatusBadGateway || rich.Metadata["provider_code"] != 190 {
		t.Fatalf("unexpected error %+v", rich)
	}
}

func TestAdapter_SendTemplateDefaults(t *testing.T) {
	graph := &graphStub{}
	adapter := newTestAdapter(t, graph)
	connection := core.Connection{
		Provider:        core.ProviderWhatsApp,
		Status:          core.ConnectionStatusConnected,
		PhoneNumberID:   "ph1",
		UserAccessToken: "user-token",
	}
	if err := adapter.SendMessage(context.Background(), connection, "+15551234567", core.MessagePayload{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if graph.lastPath != "/v22.0/ph1/messages" || graph.lastQuery.Get("access_token") != "user-token" {
		t.Fatalf("unexpected request %s %v", graph.lastPath, graph.lastQuery)
	}
	var body struct {
		MessagingProduct string `json:"messaging_product"`
		To               string `json:"to"`
		Type             string `json:"type"`
		Template         struct {
			Name     string `json:"name"`
			Language struct {
				Code string `json:"code"`
			} `json:"language"`
			Components []any `json:"components"`
		} `json:"template"`
	}
	if err := json.Unmarshal([]byte(graph.lastBody), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.MessagingProduct != "whatsapp" || body.To != "+15551234567" || body.Type != "template" {
		t.Fatalf("unexpected envelope %+v", body)
	}
	if body.Template.Name != "hello_world" || body.Template.Language.Code != "en_US" || body.Template.Components == nil {
		t.Fatalf("expected template defaults, got %+v (raw %s)", body.Template, graph.lastBody)
	}
}

func TestAdapter_SendCustomTemplateAndFailure(t *testing.T) {
	graph := &graphStub{
		sendCode: http.StatusBadRequest,
		sendBody: `{"error":{"message":"(#132001) Template name does not exist in the translation","type":"OAuthException","code":132001}}`,
	}
	adapter := newTestAdapter(t, graph)
	connection := core.Connection{Provider: core.ProviderWhatsApp, Status: core.ConnectionStatusConnected, PhoneNumberID: "ph1", UserAccessToken: "user-token"}

	err := adapter.SendMessage(context.Background(), connection, "+1555", core.MessagePayload{
		TemplateName: "order_update",
		LanguageCode: "he",
		Components:   []map[string]any{{"type": "body"}},
	})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorUpstreamSend || rich.Code != http.StatusBadRequest {
		t.Fatalf("expected upstream send error, got %v", err)
	}
	if rich.Metadata["provider_message"] != "(#132001) Template name does not exist in the translation" {
		t.Fatalf("expected provider message, got %+v", rich.Metadata)
	}
	if err := adapter.SendMessage(context.Background(), connection, "", core.MessagePayload{}); !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected missing recipient to fail validation, got %v", err)
	}
}

func TestTemplateFor_KeepsProvidedValues(t *testing.T) {
	name, language, components := TemplateFor(core.MessagePayload{TemplateName: "t", LanguageCode: "fr", Components: []map[string]any{{"a": 1}}})
	if name != "t" || language != "fr" || len(components) != 1 {
		t.Fatalf("unexpected template %s %s %v", name, language, components)
	}
}
