package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

const testEncryptionSecret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Security.EncryptionSecret = testEncryptionSecret
	return cfg
}

type stubAdapter struct {
	mu sync.Mutex

	provider   ProviderKind
	scopes     []string
	resource   ProviderResource
	exchangeFn func(code string) (Token, error)
	upgradeErr error
	discoverFn func(Token) (ProviderResource, error)
	sendErr    error

	exchangedCodes []string
	upgraded       []Token
	sends          []stubSend
}

type stubSend struct {
	connection Connection
	target     string
	payload    MessagePayload
}

func newStubAdapter(provider ProviderKind) *stubAdapter {
	return &stubAdapter{
		provider: provider,
		scopes:   []string{"public_profile", "pages_messaging"},
		resource: ProviderResource{PageID: "p1", PageName: "Shop", PageAccessToken: "page-token"},
	}
}

func (a *stubAdapter) Provider() ProviderKind { return a.provider }

func (a *stubAdapter) DefaultScopes() []string { return append([]string(nil), a.scopes...) }

func (a *stubAdapter) BuildAuthorizationURL(state string, scopes []string) (string, error) {
	query := url.Values{}
	query.Set("client_id", "app")
	query.Set("scope", strings.Join(scopes, ","))
	query.Set("state", state)
	return "https://dialog.example/oauth?" + query.Encode(), nil
}

func (a *stubAdapter) ExchangeCode(_ context.Context, code string) (Token, error) {
	a.mu.Lock()
	a.exchangedCodes = append(a.exchangedCodes, code)
	a.mu.Unlock()
	if a.exchangeFn != nil {
		return a.exchangeFn(code)
	}
	return Token{AccessToken: "short-" + code, TokenType: "bearer"}, nil
}

func (a *stubAdapter) UpgradeToken(_ context.Context, short Token) (Token, error) {
	a.mu.Lock()
	a.upgraded = append(a.upgraded, short)
	a.mu.Unlock()
	if a.upgradeErr != nil {
		return Token{}, a.upgradeErr
	}
	return Token{AccessToken: "long-" + short.AccessToken, TokenType: "bearer", ExpiresIn: 5184000}, nil
}

func (a *stubAdapter) DiscoverResource(_ context.Context, long Token) (ProviderResource, error) {
	if a.discoverFn != nil {
		return a.discoverFn(long)
	}
	return a.resource, nil
}

func (a *stubAdapter) SendMessage(_ context.Context, connection Connection, target string, payload MessagePayload) error {
	a.mu.Lock()
	a.sends = append(a.sends, stubSend{connection: connection, target: target, payload: payload})
	a.mu.Unlock()
	return a.sendErr
}

type memoryUserStore struct {
	mu     sync.Mutex
	users  map[string]User
	writes int
}

func newMemoryUserStore(users ...User) *memoryUserStore {
	store := &memoryUserStore{users: map[string]User{}}
	for _, user := range users {
		store.users[user.UID] = CloneUser(user)
	}
	return store
}

func (s *memoryUserStore) FindByUID(_ context.Context, uid string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[uid]
	if !ok {
		return User{}, UserNotFoundError(uid)
	}
	return CloneUser(user), nil
}

func (s *memoryUserStore) FindByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return CloneUser(user), nil
		}
	}
	return User{}, NotFoundError("connections: user not found", map[string]any{"email": email})
}

func (s *memoryUserStore) UpsertOnInsert(_ context.Context, in RegisterUserInput, defaults Settings) (User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == in.Email {
			return CloneUser(user), false, nil
		}
	}
	now := time.Now().UTC()
	user := User{
		UID:         in.UID,
		Name:        in.Name,
		Email:       in.Email,
		Image:       in.Image,
		Settings:    defaults,
		Connections: []Connection{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.users[user.UID] = user
	return CloneUser(user), true, nil
}

func (s *memoryUserStore) ReplaceConnection(_ context.Context, uid string, connection Connection) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[uid]
	if !ok {
		return User{}, UserNotFoundError(uid)
	}
	user.Connections = ReplaceConnection(user.Connections, connection)
	user.Version++
	s.users[uid] = user
	s.writes++
	return CloneUser(user), nil
}

func (s *memoryUserStore) RemoveConnection(_ context.Context, uid string, provider ProviderKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[uid]
	if !ok {
		return false, UserNotFoundError(uid)
	}
	next, removed := RemoveConnection(user.Connections, provider)
	if !removed {
		return false, nil
	}
	user.Connections = next
	user.Version++
	s.users[uid] = user
	s.writes++
	return true, nil
}

func (s *memoryUserStore) UpdateCorrelation(_ context.Context, provider ProviderKind, resourceID string, field string, value string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, user := range s.users {
		for index := range user.Connections {
			connection := &user.Connections[index]
			if connection.Provider != provider || connection.ResourceID() != resourceID {
				continue
			}
			if err := ApplyCorrelation(connection, field, value, at); err != nil {
				return false, err
			}
			s.users[uid] = user
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryUserStore) UpdateProfile(_ context.Context, uid string, update ProfileUpdate) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[uid]
	if !ok {
		return User{}, UserNotFoundError(uid)
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Image != nil {
		user.Image = *update.Image
	}
	if update.Settings != nil {
		user.Settings = *update.Settings
	}
	s.users[uid] = user
	return CloneUser(user), nil
}

func (s *memoryUserStore) connection(uid string, provider ProviderKind) (Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[uid].FindConnection(provider)
}

func (s *memoryUserStore) connectionCount(uid string, provider ProviderKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, connection := range s.users[uid].Connections {
		if connection.Provider == provider {
			count++
		}
	}
	return count
}

type memorySessionStore struct {
	mu     sync.Mutex
	states map[string]string
	users  map[string]string
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{states: map[string]string{}, users: map[string]string{}}
}

func sessionKey(sessionID string, provider ProviderKind) string {
	return sessionID + ":" + string(provider)
}

func (s *memorySessionStore) SaveState(_ context.Context, sessionID string, provider ProviderKind, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sessionKey(sessionID, provider)] = state
	return nil
}

func (s *memorySessionStore) LoadState(_ context.Context, sessionID string, provider ProviderKind) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[sessionKey(sessionID, provider)]
	return state, ok, nil
}

func (s *memorySessionStore) ClearState(_ context.Context, sessionID string, provider ProviderKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionKey(sessionID, provider))
	return nil
}

func (s *memorySessionStore) TakeState(_ context.Context, sessionID string, provider ProviderKind) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(sessionID, provider)
	state, ok := s.states[key]
	delete(s.states, key)
	return state, ok, nil
}

func (s *memorySessionStore) BindUser(_ context.Context, sessionID string, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[sessionID] = uid
	return nil
}

func (s *memorySessionStore) BoundUser(_ context.Context, sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.users[sessionID]
	return uid, ok, nil
}

type prefixVault struct{}

func (prefixVault) Seal(_ context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("prefix vault: plaintext is required")
	}
	reversed := []rune(plaintext)
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	return "sealed:" + string(reversed), nil
}

func (v prefixVault) Open(_ context.Context, ciphertext string) (string, error) {
	if !v.IsSealed(ciphertext) {
		return "", fmt.Errorf("prefix vault: not sealed")
	}
	reversed := []rune(strings.TrimPrefix(ciphertext, "sealed:"))
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	return string(reversed), nil
}

func (prefixVault) IsSealed(value string) bool {
	return strings.HasPrefix(value, "sealed:")
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	return l.values, nil
}

type lifecycleFixture struct {
	svc      *Service
	users    *memoryUserStore
	sessions *memorySessionStore
	facebook *stubAdapter
	whatsapp *stubAdapter
	now      time.Time
}

func newLifecycleFixture(opts ...Option) *lifecycleFixture {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fixture := &lifecycleFixture{
		users: newMemoryUserStore(User{
			UID:         "u1",
			Name:        "Ada",
			Email:       "ada@example.com",
			Settings:    DefaultSettings(),
			Connections: []Connection{},
		}),
		sessions: newMemorySessionStore(),
		facebook: newStubAdapter(ProviderFacebook),
		whatsapp: newStubAdapter(ProviderWhatsApp),
		now:      now,
	}
	fixture.whatsapp.resource = ProviderResource{WABAID: "waba1", PhoneNumberID: "ph1", DisplayPhoneNumber: "+1 555 0100"}

	ids := 0
	base := []Option{
		WithRegistry(NewProviderRegistry(fixture.facebook, fixture.whatsapp)),
		WithUserStore(fixture.users),
		WithSessionStore(fixture.sessions),
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("conn_%d", ids)
		}),
	}
	svc, err := NewService(testConfig(), append(base, opts...)...)
	if err != nil {
		panic(err)
	}
	fixture.svc = svc
	return fixture
}
