package webhooks

import (
	"net/http"

	"github.com/goliatone/go-connections/core"
	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorVerificationFailed = "CONNECTIONS_WEBHOOK_VERIFICATION_FAILED"
	ErrorSignatureInvalid   = "CONNECTIONS_WEBHOOK_SIGNATURE_INVALID"
)

// VerificationFailedError is the fixed answer to a rejected subscription
// handshake. It carries no detail about which check failed.
func VerificationFailedError() *goerrors.Error {
	return goerrors.New("Verification failed", goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(ErrorVerificationFailed)
}

func signatureError(provider core.ProviderKind, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, goerrors.CategoryAuth, "webhooks: delivery signature rejected").
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorSignatureInvalid).
		WithMetadata(map[string]any{"provider": string(provider)})
}

func unparseableError(provider core.ProviderKind, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, goerrors.CategoryBadInput, "webhooks: payload could not be parsed").
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput).
		WithMetadata(map[string]any{"provider": string(provider)})
}
