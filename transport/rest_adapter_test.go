package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-connections/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestRESTAdapter_SendsQueryHeadersAndBody(t *testing.T) {
	var gotMethod, gotQuery, gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.Query().Get("access_token")
		gotContentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("X-Trace", "abc")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{}}`))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	res, err := adapter.Do(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     server.URL + "/v22.0/me/messages",
		Query:   map[string]string{"access_token": "page-token"},
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    []byte(`{"x":1}`),
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected upstream status to pass through, got %d", res.StatusCode)
	}
	if string(res.Body) != `{"error":{}}` || res.Headers["X-Trace"] != "abc" {
		t.Fatalf("unexpected response %+v", res)
	}
	if gotMethod != http.MethodPost || gotQuery != "page-token" || gotContentType != "application/json" || gotBody != `{"x":1}` {
		t.Fatalf("unexpected request method=%q query=%q ct=%q body=%q", gotMethod, gotQuery, gotContentType, gotBody)
	}
}

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != ErrorTransport {
		t.Fatalf("expected %q text code, got %q", ErrorTransport, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestRESTAdapter_ClientFailureOmitsQuery(t *testing.T) {
	adapter := NewRESTAdapter(failingDoer{})
	_, err := adapter.Do(context.Background(), Request{
		URL:   "https://graph.example/v22.0/me",
		Query: map[string]string{"access_token": "secret"},
	})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %v", err)
	}
	if got, _ := rich.Metadata["url"].(string); strings.Contains(got, "secret") || got == "" {
		t.Fatalf("expected redacted url in metadata, got %q", got)
	}
}

func TestRESTAdapter_RejectsMissingURLAndClient(t *testing.T) {
	adapter := NewRESTAdapter(nil)
	_, err := adapter.Do(context.Background(), Request{})
	if !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input for empty url, got %v", err)
	}

	var nilAdapter *RESTAdapter
	_, err = nilAdapter.Do(context.Background(), Request{URL: "https://graph.example"})
	if !core.HasTextCode(err, core.ErrorInternal) {
		t.Fatalf("expected internal error for nil adapter, got %v", err)
	}
}
