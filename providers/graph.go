package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/transport"
	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultGraphVersion = "v22.0"
	GraphHost           = "https://graph.facebook.com"
)

// GraphError is a non-2xx Graph response. The decoded fault keeps the
// provider message and codes for the caller's error envelope.
type GraphError struct {
	Fault core.UpstreamFault
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("providers: graph request failed (%d): %s", e.Fault.HTTPStatus, e.Fault.Message)
}

type graphErrorBody struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

// DecodeGraphFault reads a Graph error body. Bodies that are not Graph
// errors fall back to the HTTP status text.
func DecodeGraphFault(status int, body []byte) core.UpstreamFault {
	fault := core.UpstreamFault{HTTPStatus: status}
	parsed := graphErrorBody{}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		fault.Message = parsed.Error.Message
		fault.Type = parsed.Error.Type
		fault.Code = parsed.Error.Code
		fault.Subcode = parsed.Error.ErrorSubcode
		fault.TraceID = parsed.Error.FBTraceID
		return fault
	}
	fault.Message = strings.TrimSpace(http.StatusText(status))
	if fault.Message == "" {
		fault.Message = "provider request failed"
	}
	return fault
}

// FaultFromError turns any client error into an UpstreamFault. Requests that
// never got a response report HTTPStatus 0.
func FaultFromError(err error) core.UpstreamFault {
	if err == nil {
		return core.UpstreamFault{}
	}
	var graphErr *GraphError
	if goerrors.As(err, &graphErr) && graphErr != nil {
		return graphErr.Fault
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return core.UpstreamFault{Message: richErr.Message}
	}
	return core.UpstreamFault{Message: err.Error()}
}

type GraphOption func(*GraphClient)

// WithGraphBaseURL points the client at another host. Tests use it with
// httptest servers.
func WithGraphBaseURL(base string) GraphOption {
	return func(client *GraphClient) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			client.host = trimmed
		}
	}
}

// GraphClient issues versioned Graph API calls through a transport executor.
type GraphClient struct {
	host     string
	version  string
	executor transport.Executor
}

func NewGraphClient(version string, executor transport.Executor, opts ...GraphOption) *GraphClient {
	version = strings.Trim(strings.TrimSpace(version), "/")
	if version == "" {
		version = DefaultGraphVersion
	}
	if executor == nil {
		executor = transport.NewRESTAdapter(nil)
	}
	client := &GraphClient{
		host:     GraphHost,
		version:  version,
		executor: executor,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

func (c *GraphClient) Version() string {
	return c.version
}

// URL joins path onto the versioned base.
func (c *GraphClient) URL(path string) string {
	return c.host + "/" + c.version + "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
}

func (c *GraphClient) Get(ctx context.Context, path string, query map[string]string, out any) error {
	return c.do(ctx, transport.Request{
		Method: http.MethodGet,
		URL:    c.URL(path),
		Query:  query,
	}, out)
}

func (c *GraphClient) PostJSON(ctx context.Context, path string, query map[string]string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("providers: encode graph request: %w", err)
	}
	return c.do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     c.URL(path),
		Query:   query,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    payload,
	}, out)
}

func (c *GraphClient) do(ctx context.Context, req transport.Request, out any) error {
	if c == nil || c.executor == nil {
		return fmt.Errorf("providers: graph client is not configured")
	}
	res, err := c.executor.Do(ctx, req)
	if err != nil {
		return err
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return &GraphError{Fault: DecodeGraphFault(res.StatusCode, res.Body)}
	}
	if out == nil || len(res.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return &GraphError{Fault: core.UpstreamFault{
			HTTPStatus: res.StatusCode,
			Message:    "providers: decode graph response: " + err.Error(),
		}}
	}
	return nil
}
