package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput        = "CONNECTIONS_BAD_INPUT"
	ErrorInvalidState    = "CONNECTIONS_INVALID_STATE"
	ErrorNotFound        = "CONNECTIONS_NOT_FOUND"
	ErrorNotConnected    = "CONNECTIONS_NOT_CONNECTED"
	ErrorUpstreamAuth    = "CONNECTIONS_UPSTREAM_AUTH"
	ErrorUpstreamSend    = "CONNECTIONS_UPSTREAM_SEND"
	ErrorNoResourceFound = "CONNECTIONS_NO_RESOURCE"
	ErrorConflict        = "CONNECTIONS_CONFLICT"
	ErrorProviderMissing = "CONNECTIONS_PROVIDER_NOT_REGISTERED"
	ErrorInternal        = "CONNECTIONS_INTERNAL_ERROR"
)

// Graph error code for invalid or expired access tokens.
const graphCodeInvalidToken = 190

// UpstreamFault describes a rejected provider call.
type UpstreamFault struct {
	HTTPStatus int
	Message    string
	Type       string
	Code       int
	Subcode    int
	TraceID    string
}

func (f UpstreamFault) metadata() map[string]any {
	out := map[string]any{
		"http_status":      f.HTTPStatus,
		"provider_message": f.Message,
	}
	if f.Code != 0 {
		out["provider_code"] = f.Code
	}
	if f.Subcode != 0 {
		out["provider_subcode"] = f.Subcode
	}
	if strings.TrimSpace(f.Type) != "" {
		out["provider_type"] = f.Type
	}
	if strings.TrimSpace(f.TraceID) != "" {
		out["provider_trace_id"] = f.TraceID
	}
	return out
}

// status maps the provider signal: client errors stay 4xx unless the token
// itself is dead, which the end user cannot fix from the request.
func (f UpstreamFault) status() int {
	if f.Code == graphCodeInvalidToken {
		return http.StatusBadGateway
	}
	if f.HTTPStatus >= http.StatusBadRequest && f.HTTPStatus < http.StatusInternalServerError {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func ValidationError(field string, message string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.NewValidation("connections: validation failed", goerrors.FieldError{
			Field:   field,
			Message: message,
		}).
			WithTextCode(ErrorBadInput),
	)
}

func BadInputError(message string) *goerrors.Error {
	return newServiceError(message, goerrors.CategoryBadInput, ErrorBadInput)
}

func InvalidStateError(reason string) *goerrors.Error {
	return newServiceError("connections: invalid oauth state", goerrors.CategoryBadInput, ErrorInvalidState).
		WithMetadata(map[string]any{"reason": reason})
}

func NotFoundError(message string, metadata map[string]any) *goerrors.Error {
	err := newServiceError(message, goerrors.CategoryNotFound, ErrorNotFound)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func UserNotFoundError(uid string) *goerrors.Error {
	return NotFoundError("connections: user not found", map[string]any{"uid": uid})
}

func NotConnectedError(uid string, provider ProviderKind) *goerrors.Error {
	return newServiceError(
		fmt.Sprintf("connections: %s is not connected for this user", provider),
		goerrors.CategoryNotFound,
		ErrorNotConnected,
	).WithMetadata(map[string]any{"uid": uid, "provider": string(provider)})
}

func NoResourceFoundError(provider ProviderKind, message string) *goerrors.Error {
	return newServiceError(message, goerrors.CategoryBadInput, ErrorNoResourceFound).
		WithMetadata(map[string]any{"provider": string(provider)})
}

func UpstreamAuthError(provider ProviderKind, step string, fault UpstreamFault) *goerrors.Error {
	return upstreamError(provider, step, fault, ErrorUpstreamAuth)
}

func UpstreamSendError(provider ProviderKind, fault UpstreamFault) *goerrors.Error {
	return upstreamError(provider, "send_message", fault, ErrorUpstreamSend)
}

func upstreamError(provider ProviderKind, step string, fault UpstreamFault, textCode string) *goerrors.Error {
	message := strings.TrimSpace(fault.Message)
	if message == "" {
		message = "provider request failed"
	}
	metadata := fault.metadata()
	metadata["provider"] = string(provider)
	metadata["step"] = step
	return goerrors.New(message, goerrors.CategoryExternal).
		WithTextCode(textCode).
		WithCode(fault.status()).
		WithMetadata(metadata)
}

func ConflictError(message string, metadata map[string]any) *goerrors.Error {
	err := newServiceError(message, goerrors.CategoryConflict, ErrorConflict)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// HasTextCode reports whether err carries the given go-errors text code.
func HasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "provider") && strings.Contains(msg, "not registered"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ErrorProviderMissing)
	case strings.Contains(msg, "oauth state"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ErrorInvalidState)
	case strings.Contains(msg, "version conflict"):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ErrorConflict)
	case strings.Contains(msg, "not found"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unsupported"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryExternal:
		return ErrorUpstreamAuth
	default:
		return ErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
