package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type BeginAuthorizationRequest struct {
	UID       string
	Provider  ProviderKind
	SessionID string
	// Scopes overrides the configured and adapter default scopes.
	Scopes []string
}

type BeginAuthorizationResponse struct {
	URL   string `json:"url"`
	State string `json:"-"`
}

type CompleteAuthorizationRequest struct {
	Provider  ProviderKind
	Code      string
	State     string
	SessionID string
	// UID is only honored when no state was echoed, and then only if it
	// matches the uid bound to the session.
	UID string
}

type CompleteAuthorizationResponse struct {
	UID                string           `json:"uid"`
	Provider           ProviderKind     `json:"provider"`
	Status             ConnectionStatus `json:"status"`
	PageID             string           `json:"pageId,omitempty"`
	PageName           string           `json:"pageName,omitempty"`
	WABAID             string           `json:"wabaId,omitempty"`
	PhoneNumberID      string           `json:"phoneNumberId,omitempty"`
	DisplayPhoneNumber string           `json:"displayPhoneNumber,omitempty"`
	ConnectedAt        time.Time        `json:"connectedAt"`
}

type DisconnectRequest struct {
	UID      string
	Provider ProviderKind
}

type DisconnectResult struct {
	Removed bool `json:"removed"`
}

type SendNotificationRequest struct {
	UID      string
	Provider ProviderKind
	Target   string
	Message  MessagePayload
}

// BeginAuthorization resets the provider connection to pending and returns
// the dialog URL seeded with a freshly issued state.
func (s *Service) BeginAuthorization(ctx context.Context, req BeginAuthorizationRequest) (response BeginAuthorizationResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider": string(req.Provider),
		"uid":      req.UID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "begin_authorization", err, fields)
	}()

	uid, err := requireField("uid", req.UID)
	if err != nil {
		return BeginAuthorizationResponse{}, err
	}
	sessionID, err := requireField("session_id", req.SessionID)
	if err != nil {
		return BeginAuthorizationResponse{}, err
	}
	provider, err := parseProvider(req.Provider)
	if err != nil {
		return BeginAuthorizationResponse{}, err
	}
	users, err := s.requireUsers()
	if err != nil {
		return BeginAuthorizationResponse{}, err
	}
	sessions, err := s.requireSessions()
	if err != nil {
		return BeginAuthorizationResponse{}, err
	}
	adapter, err := s.resolveAdapter(provider)
	if err != nil {
		return BeginAuthorizationResponse{}, err
	}
	if _, err = s.findUserConsistent(ctx, users, uid); err != nil {
		err = s.mapError(err)
		return BeginAuthorizationResponse{}, err
	}

	state, err := s.stateCodec.Issue(uid, provider)
	if err != nil {
		err = s.mapError(err)
		return BeginAuthorizationResponse{}, err
	}
	if err = sessions.SaveState(ctx, sessionID, provider, state); err != nil {
		err = s.mapError(err)
		return BeginAuthorizationResponse{}, err
	}
	if err = sessions.BindUser(ctx, sessionID, uid); err != nil {
		err = s.mapError(err)
		return BeginAuthorizationResponse{}, err
	}

	authURL, err := adapter.BuildAuthorizationURL(state, s.resolveScopes(adapter, req.Scopes))
	if err != nil {
		err = s.mapError(err)
		return BeginAuthorizationResponse{}, err
	}

	pending := Connection{
		ID:               s.newID(),
		Provider:         provider,
		Status:           ConnectionStatusPending,
		AuthorizationURL: authURL,
	}
	if _, err = users.ReplaceConnection(ctx, uid, pending); err != nil {
		err = s.mapError(err)
		return BeginAuthorizationResponse{}, err
	}
	fields["connection_id"] = pending.ID
	return BeginAuthorizationResponse{URL: authURL, State: state}, nil
}

// CompleteAuthorization exchanges the code, upgrades the token and discovers
// the resource, then writes the connected record in one store call. Any
// failure before that write leaves the stored connection untouched.
func (s *Service) CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (response CompleteAuthorizationResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider": string(req.Provider),
	}
	defer func() {
		if response.UID != "" {
			fields["uid"] = response.UID
		}
		s.observeOperation(ctx, startedAt, "complete_authorization", err, fields)
	}()

	code, err := requireField("code", req.Code)
	if err != nil {
		return CompleteAuthorizationResponse{}, err
	}
	provider, err := parseProvider(req.Provider)
	if err != nil {
		return CompleteAuthorizationResponse{}, err
	}
	users, err := s.requireUsers()
	if err != nil {
		return CompleteAuthorizationResponse{}, err
	}
	adapter, err := s.resolveAdapter(provider)
	if err != nil {
		return CompleteAuthorizationResponse{}, err
	}
	uid, err := s.resolveOwner(ctx, provider, req)
	if err != nil {
		err = s.mapError(err)
		return CompleteAuthorizationResponse{}, err
	}
	fields["uid"] = uid
	if _, err = s.findUserConsistent(ctx, users, uid); err != nil {
		err = s.mapError(err)
		return CompleteAuthorizationResponse{}, err
	}

	shortLived, err := adapter.ExchangeCode(ctx, code)
	if err != nil {
		fields["step"] = "exchange_code"
		err = s.mapError(upstreamAuthFailure(provider, "exchange_code", err))
		return CompleteAuthorizationResponse{}, err
	}
	longLived, err := adapter.UpgradeToken(ctx, shortLived)
	if err != nil {
		fields["step"] = "upgrade_token"
		err = s.mapError(upstreamAuthFailure(provider, "upgrade_token", err))
		return CompleteAuthorizationResponse{}, err
	}
	resource, err := adapter.DiscoverResource(ctx, longLived)
	if err != nil {
		fields["step"] = "discover_resource"
		err = s.mapError(upstreamAuthFailure(provider, "discover_resource", err))
		return CompleteAuthorizationResponse{}, err
	}

	connectedAt := s.timestamp()
	connected := Connection{
		ID:                 s.newID(),
		Provider:           provider,
		Status:             ConnectionStatusConnected,
		PageID:             resource.PageID,
		PageName:           resource.PageName,
		WABAID:             resource.WABAID,
		PhoneNumberID:      resource.PhoneNumberID,
		DisplayPhoneNumber: resource.DisplayPhoneNumber,
		UserAccessToken:    longLived.AccessToken,
		PageAccessToken:    resource.PageAccessToken,
		ConnectedAt:        &connectedAt,
	}
	if _, err = users.ReplaceConnection(ctx, uid, connected); err != nil {
		err = s.mapError(err)
		return CompleteAuthorizationResponse{}, err
	}
	fields["connection_id"] = connected.ID

	return CompleteAuthorizationResponse{
		UID:                uid,
		Provider:           provider,
		Status:             connected.Status,
		PageID:             connected.PageID,
		PageName:           connected.PageName,
		WABAID:             connected.WABAID,
		PhoneNumberID:      connected.PhoneNumberID,
		DisplayPhoneNumber: connected.DisplayPhoneNumber,
		ConnectedAt:        connectedAt,
	}, nil
}

// resolveOwner returns the uid that owns the round trip. With a state the uid
// comes from the validated token; without one only the session-bound uid is
// trusted.
func (s *Service) resolveOwner(ctx context.Context, provider ProviderKind, req CompleteAuthorizationRequest) (string, error) {
	sessions, err := s.requireSessions()
	if err != nil {
		return "", err
	}
	sessionID := strings.TrimSpace(req.SessionID)
	state := strings.TrimSpace(req.State)

	if state != "" {
		if sessionID == "" {
			return "", InvalidStateError("missing_session")
		}
		// The state is gone once taken, even when it fails to validate.
		sessionState, _, takeErr := sessions.TakeState(ctx, sessionID, provider)
		if takeErr != nil {
			return "", takeErr
		}
		return s.stateCodec.Consume(state, sessionState, provider)
	}

	if sessionID == "" {
		return "", InvalidStateError("missing_state")
	}
	bound, ok, err := sessions.BoundUser(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(bound) == "" {
		return "", InvalidStateError("missing_state")
	}
	if claimed := strings.TrimSpace(req.UID); claimed != "" && claimed != bound {
		return "", InvalidStateError("session_user_mismatch")
	}
	return bound, nil
}

// Disconnect removes the provider connection. Removing an absent connection
// succeeds with Removed=false.
func (s *Service) Disconnect(ctx context.Context, req DisconnectRequest) (result DisconnectResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider": string(req.Provider),
		"uid":      req.UID,
	}
	defer func() {
		fields["removed"] = result.Removed
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	uid, err := requireField("uid", req.UID)
	if err != nil {
		return DisconnectResult{}, err
	}
	provider, err := parseProvider(req.Provider)
	if err != nil {
		return DisconnectResult{}, err
	}
	users, err := s.requireUsers()
	if err != nil {
		return DisconnectResult{}, err
	}
	removed, err := users.RemoveConnection(ctx, uid, provider)
	if err != nil {
		err = s.mapError(err)
		return DisconnectResult{}, err
	}
	return DisconnectResult{Removed: removed}, nil
}

func (s *Service) SendNotification(ctx context.Context, req SendNotificationRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider": string(req.Provider),
		"uid":      req.UID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "send_notification", err, fields)
	}()

	uid, err := requireField("uid", req.UID)
	if err != nil {
		return err
	}
	target, err := requireField("target", req.Target)
	if err != nil {
		return err
	}
	provider, err := parseProvider(req.Provider)
	if err != nil {
		return err
	}
	users, err := s.requireUsers()
	if err != nil {
		return err
	}
	adapter, err := s.resolveAdapter(provider)
	if err != nil {
		return err
	}
	user, err := s.findUserConsistent(ctx, users, uid)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	connection, ok := user.FindConnection(provider)
	if !ok || !connection.IsConnected() {
		err = NotConnectedError(uid, provider)
		return err
	}
	fields["connection_id"] = connection.ID

	if err = adapter.SendMessage(ctx, connection, target, req.Message); err != nil {
		err = s.mapError(upstreamSendFailure(provider, err))
		return err
	}
	return nil
}

func (s *Service) resolveScopes(adapter ProviderAdapter, requested []string) []string {
	if scopes := normalizeScopes(requested); len(scopes) > 0 {
		return scopes
	}
	var configured []string
	switch adapter.Provider() {
	case ProviderFacebook:
		configured = s.config.Facebook.Scopes
	case ProviderWhatsApp:
		configured = s.config.WhatsApp.Scopes
	}
	if scopes := normalizeScopes(configured); len(scopes) > 0 {
		return scopes
	}
	return normalizeScopes(adapter.DefaultScopes())
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	return out
}

// upstreamAuthFailure keeps typed adapter errors and wraps transport errors.
func upstreamAuthFailure(provider ProviderKind, step string, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return UpstreamAuthError(provider, step, UpstreamFault{Message: fmt.Sprint(err)})
}

func upstreamSendFailure(provider ProviderKind, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return UpstreamSendError(provider, UpstreamFault{Message: fmt.Sprint(err)})
}
