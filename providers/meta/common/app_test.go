package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/goliatone/go-connections/core"
)

func TestJoinScopes(t *testing.T) {
	got := JoinScopes([]string{" pages_messaging ", "", "public_profile", "pages_messaging"})
	if got != "pages_messaging,public_profile" {
		t.Fatalf("unexpected scopes %q", got)
	}
	if JoinScopes(nil) != "" {
		t.Fatalf("expected empty scopes")
	}
}

func TestApp_AuthorizationURLHonorsVersionAndDialogHost(t *testing.T) {
	app, err := NewApp(core.ProviderFacebook, AppConfig{
		AppID:        "a",
		AppSecret:    "s",
		RedirectURI:  "https://app.example/cb?x=1",
		GraphVersion: "v21.0",
	}, WithDialogBaseURL("https://dialog.example/"))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	raw, err := app.AuthorizationURL("st", nil)
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}
	parsed, _ := url.Parse(raw)
	if parsed.Host != "dialog.example" || parsed.Path != "/v21.0/dialog/oauth" {
		t.Fatalf("unexpected endpoint %q", raw)
	}
	if parsed.Query().Get("redirect_uri") != "https://app.example/cb?x=1" || parsed.Query().Has("scope") {
		t.Fatalf("unexpected query %v", parsed.Query())
	}
	if app.Graph().Version() != "v21.0" {
		t.Fatalf("expected graph version to follow config")
	}
}

func TestApp_UpgradeRejectsEmptyTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
	}))
	defer server.Close()
	app, err := NewApp(core.ProviderWhatsApp, AppConfig{AppID: "a", AppSecret: "s", RedirectURI: "https://x"},
		WithHTTPClient(server.Client()), WithGraphBaseURL(server.URL))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := app.UpgradeToken(context.Background(), core.Token{}); !core.HasTextCode(err, core.ErrorUpstreamAuth) {
		t.Fatalf("expected missing short token to fail, got %v", err)
	}
	if _, err := app.UpgradeToken(context.Background(), core.Token{AccessToken: "short"}); !core.HasTextCode(err, core.ErrorUpstreamAuth) {
		t.Fatalf("expected empty upgrade response to fail, got %v", err)
	}
	if _, err := app.ExchangeCode(context.Background(), " "); !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected empty code to fail validation, got %v", err)
	}
}

func TestDecodeWebhook(t *testing.T) {
	payload, err := DecodeWebhook([]byte(`{"object":"Page","entry":[{"id":"p1","messaging":[{"sender":{"id":"1"}}]}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Object != "page" || payload.Entry[0].Messaging[0].Sender.ID != "1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if _, err := DecodeWebhook([]byte(`{"entry":[]}`)); err == nil {
		t.Fatalf("expected missing object to fail")
	}
}

func TestDecodeWebhook_CountsMalformedItems(t *testing.T) {
	payload, err := DecodeWebhook([]byte(`{"object":"page","entry":[
		"not an entry",
		{"id":"p1","messaging":[{"sender":{"id":"1"}},{"sender":"x"}]},
		{"id":"w1","changes":[{"value":{"metadata":{"phone_number_id":7}}}]}
	]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Entry) != 2 || payload.Malformed != 3 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if len(payload.Entry[0].Messaging) != 1 || len(payload.Entry[1].Changes) != 0 {
		t.Fatalf("unexpected entries %+v", payload.Entry)
	}
}
