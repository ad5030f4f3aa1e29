package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/goliatone/go-connections/core"
	goerrors "github.com/goliatone/go-errors"
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Message     string                    `json:"message"`
	TextCode    string                    `json:"text_code"`
	Code        int                       `json:"code"`
	Category    string                    `json:"category,omitempty"`
	Metadata    map[string]any            `json:"metadata,omitempty"`
	Validations goerrors.ValidationErrors `json:"validation,omitempty"`
}

// toRichError normalizes anything a handler returns into a go-errors value
// with an HTTP status and a text code.
func toRichError(err error) *goerrors.Error {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		rich = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected error occurred").
			WithTextCode(core.ErrorInternal)
	}
	if rich.Code == 0 {
		rich.Code = statusForCategory(rich.Category)
	}
	if rich.TextCode == "" {
		rich.TextCode = core.ErrorInternal
	}
	return rich
}

func statusForCategory(category goerrors.Category) int {
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
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rich := toRichError(err)
	payload := errorPayload{
		Message:     rich.Message,
		TextCode:    rich.TextCode,
		Code:        rich.Code,
		Category:    string(rich.Category),
		Metadata:    rich.Metadata,
		Validations: rich.AllValidationErrors(),
	}
	// internal causes stay in the log
	if rich.Code >= http.StatusInternalServerError && rich.Category == goerrors.CategoryInternal {
		payload.Message = "An unexpected error occurred"
		payload.Metadata = nil
	}
	logger := h.logger.WithContext(r.Context())
	if rich.Code >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", rich.Code, "error", err.Error())
	} else {
		logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", rich.Code, "text_code", rich.TextCode)
	}
	writeJSON(w, rich.Code, errorBody{Error: payload})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func badBody(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "request body must be valid JSON").
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
}
