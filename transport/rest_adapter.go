package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const KindREST = "rest"

const (
	defaultRESTClientTimeout           = 30 * time.Second
	defaultRESTResponseBodyLimit int64 = 2 << 20
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter sends Graph API calls through an HTTPDoer and returns the
// upstream status and body untouched. Non-2xx responses are not errors here;
// the provider client decodes the Graph error body itself.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{"Accept": "application/json"},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.Client == nil {
		return Response{}, transportError("transport: rest adapter requires an http client",
			goerrors.CategoryInternal, http.StatusInternalServerError, restMeta(nil))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, target, err := a.newHTTPRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return Response{}, transportWrapError(err, goerrors.CategoryExternal, "transport: execute http request",
			http.StatusBadGateway, restMeta(map[string]any{"method": httpReq.Method, "url": redactedURL(target)}))
	}
	defer httpRes.Body.Close()

	payload, err := readLimited(httpRes, resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes))
	if err != nil {
		return Response{}, err
	}
	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       payload,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"kind":        KindREST,
		},
	}, nil
}

// newHTTPRequest merges req.Query into the URL and applies default headers
// first so per-request headers win.
func (a *RESTAdapter) newHTTPRequest(ctx context.Context, req Request) (*http.Request, *url.URL, error) {
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return nil, nil, transportError("transport: request url is required",
			goerrors.CategoryBadInput, http.StatusBadRequest, restMeta(nil))
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, transportWrapError(err, goerrors.CategoryBadInput, "transport: invalid request url",
			http.StatusBadRequest, restMeta(nil))
	}
	query := target.Query()
	for key, value := range req.Query {
		if key = strings.TrimSpace(key); key != "" {
			query.Set(key, value)
		}
	}
	target.RawQuery = query.Encode()

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, nil, transportWrapError(err, goerrors.CategoryBadInput, "transport: create http request",
			http.StatusBadRequest, restMeta(map[string]any{"method": method, "url": redactedURL(target)}))
	}
	setHeaders(httpReq.Header, a.DefaultHeaders)
	setHeaders(httpReq.Header, req.Headers)
	return httpReq, target, nil
}

func readLimited(res *http.Response, limit int64) ([]byte, error) {
	payload, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryExternal, "transport: read response body",
			http.StatusBadGateway, restMeta(map[string]any{"status_code": res.StatusCode}))
	}
	if int64(len(payload)) > limit {
		return nil, transportError(fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit),
			goerrors.CategoryExternal, http.StatusBadGateway,
			restMeta(map[string]any{"status_code": res.StatusCode, "response_limit_b": limit}))
	}
	return payload, nil
}

func setHeaders(dst http.Header, headers map[string]string) {
	for key, value := range headers {
		if key = strings.TrimSpace(key); key != "" {
			dst.Set(key, strings.TrimSpace(value))
		}
	}
}

func restMeta(extra map[string]any) map[string]any {
	meta := map[string]any{"adapter": KindREST}
	for key, value := range extra {
		meta[key] = value
	}
	return meta
}

// redactedURL drops the query so access tokens never land in error metadata.
func redactedURL(value *url.URL) string {
	if value == nil {
		return ""
	}
	copied := *value
	copied.RawQuery = ""
	return copied.String()
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	switch {
	case requestLimit > 0:
		return requestLimit
	case adapterLimit > 0:
		return adapterLimit
	default:
		return defaultRESTResponseBodyLimit
	}
}

var _ Executor = (*RESTAdapter)(nil)
