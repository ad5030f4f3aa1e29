package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-connections/command"
	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/query"
	"github.com/goliatone/go-connections/webhooks"
	gocmd "github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

const (
	DefaultCookieName   = "connections_sid"
	DefaultMaxBodyBytes = 20 << 20
)

// Service is everything the HTTP layer asks of the connections service.
type Service interface {
	command.MutatingService
	command.NotificationEnqueuer
	query.UserReader
}

type Webhooks interface {
	command.WebhookIngester
	query.WebhookVerifier
}

type Options struct {
	CookieName   string
	CookieSecure bool
	SessionTTL   time.Duration
	MaxBodyBytes int64
	Logger       glog.Logger
	NewSessionID func() string
}

type Handler struct {
	begin       *command.BeginAuthorizationCommand
	complete    *command.CompleteAuthorizationCommand
	disconnect  *command.DisconnectCommand
	send        *command.SendNotificationCommand
	enqueue     *command.EnqueueNotificationCommand
	register    *command.RegisterUserCommand
	update      *command.UpdateProfileCommand
	ingest      *command.IngestWebhookCommand
	getUser     *query.GetUserQuery
	connections *query.ListConnectionsQuery
	verify      *query.VerifyWebhookQuery

	cookieName   string
	cookieSecure bool
	sessionTTL   time.Duration
	maxBody      int64
	logger       glog.Logger
	newSessionID func() string
}

// New wires the handlers. webhooks may be nil, in which case the webhook
// routes answer 404.
func New(service Service, hooks Webhooks, opts Options) *Handler {
	h := &Handler{
		begin:        command.NewBeginAuthorizationCommand(service),
		complete:     command.NewCompleteAuthorizationCommand(service),
		disconnect:   command.NewDisconnectCommand(service),
		send:         command.NewSendNotificationCommand(service),
		enqueue:      command.NewEnqueueNotificationCommand(service),
		register:     command.NewRegisterUserCommand(service),
		update:       command.NewUpdateProfileCommand(service),
		getUser:      query.NewGetUserQuery(service),
		connections:  query.NewListConnectionsQuery(service),
		cookieName:   strings.TrimSpace(opts.CookieName),
		cookieSecure: opts.CookieSecure,
		sessionTTL:   opts.SessionTTL,
		maxBody:      opts.MaxBodyBytes,
		logger:       glog.Ensure(opts.Logger),
		newSessionID: opts.NewSessionID,
	}
	if hooks != nil {
		h.ingest = command.NewIngestWebhookCommand(hooks)
		h.verify = query.NewVerifyWebhookQuery(hooks)
	}
	if h.cookieName == "" {
		h.cookieName = DefaultCookieName
	}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodyBytes
	}
	if h.newSessionID == nil {
		h.newSessionID = uuid.NewString
	}
	return h
}

// Router returns a chi router with every route mounted under /api.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(h.requestLogger)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Route("/api", h.Mount)
	return r
}

// Mount registers the routes on an existing router.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/connections/{provider}", func(r chi.Router) {
		r.Post("/auth-url", h.handleBeginAuthorization)
		r.Post("/exchange-code", h.handleExchangeCode)
		r.Get("/callback", h.handleCallback)
		r.Post("/notify", h.handleNotify)
		r.Post("/disconnect", h.handleDisconnect)
		r.Get("/webhook", h.handleWebhookVerify)
		r.Post("/webhook", h.handleWebhookIngest)
	})
	r.Post("/auth/fetch-user", h.handleRegisterUser)
	r.Put("/auth/update-user", h.handleUpdateUser)
	r.Get("/users/{uid}", h.handleGetUser)
	r.Get("/users/{uid}/connections", h.handleListConnections)
}

type beginBody struct {
	UID    string   `json:"uid"`
	Scopes []string `json:"scopes"`
}

func (h *Handler) handleBeginAuthorization(w http.ResponseWriter, r *http.Request) {
	var body beginBody
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	msg := command.BeginAuthorizationMessage{Request: core.BeginAuthorizationRequest{
		UID:       body.UID,
		Provider:  providerParam(r),
		SessionID: h.ensureSession(w, r),
		Scopes:    body.Scopes,
	}}
	out, err := execute[core.BeginAuthorizationResponse](r.Context(), h.begin, msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": out.URL})
}

type exchangeBody struct {
	Code              string `json:"code"`
	AuthorizationCode string `json:"authorizationCode"`
	State             string `json:"state"`
	UID               string `json:"uid"`
}

func (h *Handler) handleExchangeCode(w http.ResponseWriter, r *http.Request) {
	var body exchangeBody
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	code := firstNonEmpty(body.Code, body.AuthorizationCode, r.URL.Query().Get("code"))
	state := firstNonEmpty(body.State, r.URL.Query().Get("state"))
	h.completeAuthorization(w, r, code, state, body.UID)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	if reason := values.Get("error"); reason != "" {
		h.writeError(w, r, core.BadInputError("connections: authorization was declined: "+reason))
		return
	}
	h.completeAuthorization(w, r, values.Get("code"), values.Get("state"), "")
}

func (h *Handler) completeAuthorization(w http.ResponseWriter, r *http.Request, code, state, uid string) {
	msg := command.CompleteAuthorizationMessage{Request: core.CompleteAuthorizationRequest{
		Provider:  providerParam(r),
		Code:      code,
		State:     state,
		SessionID: h.sessionID(r),
		UID:       uid,
	}}
	out, err := execute[core.CompleteAuthorizationResponse](r.Context(), h.complete, msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type notifyBody struct {
	UID          string           `json:"uid"`
	PSID         string           `json:"psid"`
	To           string           `json:"to"`
	Message      string           `json:"message"`
	TemplateName string           `json:"templateName"`
	LanguageCode string           `json:"languageCode"`
	Components   []map[string]any `json:"components"`
	Async        bool             `json:"async"`
}

func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	var body notifyBody
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	req := core.SendNotificationRequest{
		UID:      body.UID,
		Provider: providerParam(r),
		Target:   firstNonEmpty(body.PSID, body.To),
		Message: core.MessagePayload{
			Text:         body.Message,
			TemplateName: body.TemplateName,
			LanguageCode: body.LanguageCode,
			Components:   body.Components,
		},
	}

	if body.Async || queryFlag(r, "async") {
		out, err := execute[command.EnqueueNotificationResult](r.Context(), h.enqueue, command.EnqueueNotificationMessage{Request: req})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "jobKey": out.IdempotencyKey})
		return
	}

	if _, err := execute[struct{}](r.Context(), h.send, command.SendNotificationMessage{Request: req}); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type uidBody struct {
	UID string `json:"uid"`
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var body uidBody
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	msg := command.DisconnectMessage{Request: core.DisconnectRequest{UID: body.UID, Provider: providerParam(r)}}
	out, err := execute[core.DisconnectResult](r.Context(), h.disconnect, msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "removed": out.Removed})
}

func (h *Handler) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	if h.verify == nil {
		http.NotFound(w, r)
		return
	}
	values := r.URL.Query()
	msg := query.VerifyWebhookMessage{
		Provider: providerParam(r),
		Query: webhooks.HandshakeQuery{
			Mode:        values.Get("hub.mode"),
			VerifyToken: values.Get("hub.verify_token"),
			Challenge:   values.Get("hub.challenge"),
		},
	}
	if err := msg.Validate(); err != nil {
		h.writeError(w, r, webhooks.VerificationFailedError())
		return
	}
	challenge, err := h.verify.Query(r.Context(), msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

func (h *Handler) handleWebhookIngest(w http.ResponseWriter, r *http.Request) {
	if h.ingest == nil {
		http.NotFound(w, r)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		h.writeError(w, r, badBody(err))
		return
	}
	msg := command.IngestWebhookMessage{Request: webhooks.InboundRequest{
		Provider: providerParam(r),
		Headers:  flattenHeaders(r.Header),
		Body:     payload,
	}}
	out, err := execute[webhooks.IngestResult](r.Context(), h.ingest, msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": out})
}

type registerBody struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image"`
}

func (h *Handler) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	msg := command.RegisterUserMessage{Input: core.RegisterUserInput{
		UID:   body.UID,
		Name:  body.Name,
		Email: body.Email,
		Image: body.Image,
	}}
	out, err := execute[command.RegisterUserResult](r.Context(), h.register, msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status, message := http.StatusOK, "User already exists"
	if out.Created {
		status, message = http.StatusCreated, "User created"
	}
	writeJSON(w, status, map[string]any{"message": message, "user": out.User.Profile()})
}

type updateBody struct {
	UID     string         `json:"uid"`
	Updates map[string]any `json:"updates"`
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var body updateBody
	if err := h.decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	update, err := core.ParseProfileUpdate(body.Updates)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msg := command.UpdateProfileMessage{UID: body.UID, Update: update}
	out, err := execute[core.User](r.Context(), h.update, msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "User updated", "user": out.Profile()})
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	msg := query.GetUserMessage{UID: chi.URLParam(r, "uid")}
	if err := msg.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.getUser.Query(r.Context(), msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user.Profile()})
}

func (h *Handler) handleListConnections(w http.ResponseWriter, r *http.Request) {
	msg := query.ListConnectionsMessage{UID: chi.URLParam(r, "uid")}
	if err := msg.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	views, err := h.connections.Query(r.Context(), msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if views == nil {
		views = []core.ConnectionView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": views})
}

// execute validates msg, runs the command and returns whatever it stored in
// the result collector.
func execute[R any, M interface {
	gocmd.Message
	Validate() error
}](ctx context.Context, cmd gocmd.Commander[M], msg M) (R, error) {
	var zero R
	if err := msg.Validate(); err != nil {
		return zero, err
	}
	collector := gocmd.NewResult[R]()
	if err := cmd.Execute(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
		return zero, err
	}
	out, _ := collector.Load()
	return out, nil
}

// decode reads an optional JSON body. An empty body leaves out untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badBody(err)
	}
	return nil
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.WithContext(r.Context()).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(startedAt).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func providerParam(r *http.Request) core.ProviderKind {
	return core.ProviderKind(strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider"))))
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

func queryFlag(r *http.Request, name string) bool {
	value, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
