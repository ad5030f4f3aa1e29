package core

import (
	"fmt"
	"strings"
	"time"
)

type ProviderKind string

const (
	ProviderFacebook ProviderKind = "facebook"
	ProviderWhatsApp ProviderKind = "whatsapp"
)

// ParseProviderKind normalizes a provider name and rejects unknown values.
func ParseProviderKind(value string) (ProviderKind, error) {
	kind := ProviderKind(strings.TrimSpace(strings.ToLower(value)))
	switch kind {
	case ProviderFacebook, ProviderWhatsApp:
		return kind, nil
	case "":
		return "", fmt.Errorf("core: provider is required")
	default:
		return "", fmt.Errorf("core: unsupported provider %q", value)
	}
}

func (p ProviderKind) String() string {
	return string(p)
}

type ConnectionStatus string

const (
	ConnectionStatusPending   ConnectionStatus = "pending"
	ConnectionStatusConnected ConnectionStatus = "connected"
)

// Correlation fields written by inbound webhooks.
const (
	CorrelationLastSenderPSID   = "lastSenderPsid"
	CorrelationLastCustomerWaID = "lastCustomerWaId"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

type Settings struct {
	Language      string `json:"language" bson:"language"`
	Notifications bool   `json:"notifications" bson:"notifications"`
	Theme         string `json:"theme" bson:"theme"`
}

func DefaultSettings() Settings {
	return Settings{
		Language:      "en",
		Notifications: true,
		Theme:         ThemeLight,
	}
}

func (s Settings) Validate() error {
	switch s.Theme {
	case ThemeLight, ThemeDark:
	default:
		return fmt.Errorf("core: theme must be %q or %q", ThemeLight, ThemeDark)
	}
	return nil
}

// Connection is one provider link embedded in a user record. Token fields hold
// plaintext in memory; stores seal them before they reach persistence.
type Connection struct {
	ID                 string           `json:"id" bson:"id"`
	Provider           ProviderKind     `json:"provider" bson:"provider"`
	Status             ConnectionStatus `json:"status" bson:"status"`
	AuthorizationURL   string           `json:"authorizationUrl,omitempty" bson:"authorizationUrl,omitempty"`
	PageID             string           `json:"pageId,omitempty" bson:"pageId,omitempty"`
	PageName           string           `json:"pageName,omitempty" bson:"pageName,omitempty"`
	WABAID             string           `json:"wabaId,omitempty" bson:"wabaId,omitempty"`
	PhoneNumberID      string           `json:"phoneNumberId,omitempty" bson:"phoneNumberId,omitempty"`
	DisplayPhoneNumber string           `json:"displayPhoneNumber,omitempty" bson:"displayPhoneNumber,omitempty"`
	UserAccessToken    string           `json:"userAccessToken,omitempty" bson:"userAccessToken,omitempty"`
	PageAccessToken    string           `json:"pageAccessToken,omitempty" bson:"pageAccessToken,omitempty"`
	ConnectedAt        *time.Time       `json:"connectedAt,omitempty" bson:"connectedAt,omitempty"`
	LastSenderPSID     string           `json:"lastSenderPsid,omitempty" bson:"lastSenderPsid,omitempty"`
	LastCustomerWaID   string           `json:"lastCustomerWaId,omitempty" bson:"lastCustomerWaId,omitempty"`
	LastEventAt        *time.Time       `json:"lastEventAt,omitempty" bson:"lastEventAt,omitempty"`
}

func (c Connection) IsConnected() bool {
	return c.Status == ConnectionStatusConnected
}

// ResourceID returns the provider-assigned id webhooks correlate on.
func (c Connection) ResourceID() string {
	switch c.Provider {
	case ProviderFacebook:
		return c.PageID
	case ProviderWhatsApp:
		return c.PhoneNumberID
	default:
		return ""
	}
}

// Public strips credentials and the pending authorization url.
func (c Connection) Public() ConnectionView {
	return ConnectionView{
		ID:                 c.ID,
		Provider:           c.Provider,
		Status:             c.Status,
		PageID:             c.PageID,
		PageName:           c.PageName,
		WABAID:             c.WABAID,
		PhoneNumberID:      c.PhoneNumberID,
		DisplayPhoneNumber: c.DisplayPhoneNumber,
		ConnectedAt:        cloneTime(c.ConnectedAt),
		LastSenderPSID:     c.LastSenderPSID,
		LastCustomerWaID:   c.LastCustomerWaID,
		LastEventAt:        cloneTime(c.LastEventAt),
	}
}

type ConnectionView struct {
	ID                 string           `json:"id"`
	Provider           ProviderKind     `json:"provider"`
	Status             ConnectionStatus `json:"status"`
	PageID             string           `json:"pageId,omitempty"`
	PageName           string           `json:"pageName,omitempty"`
	WABAID             string           `json:"wabaId,omitempty"`
	PhoneNumberID      string           `json:"phoneNumberId,omitempty"`
	DisplayPhoneNumber string           `json:"displayPhoneNumber,omitempty"`
	ConnectedAt        *time.Time       `json:"connectedAt,omitempty"`
	LastSenderPSID     string           `json:"lastSenderPsid,omitempty"`
	LastCustomerWaID   string           `json:"lastCustomerWaId,omitempty"`
	LastEventAt        *time.Time       `json:"lastEventAt,omitempty"`
}

type User struct {
	UID         string       `json:"uid"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Image       string       `json:"image"`
	Settings    Settings     `json:"settings"`
	Connections []Connection `json:"connections"`
	Version     int64        `json:"-"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// FindConnection scans the embedded list; cardinality is one per provider.
func (u User) FindConnection(provider ProviderKind) (Connection, bool) {
	for _, connection := range u.Connections {
		if connection.Provider == provider {
			return connection, true
		}
	}
	return Connection{}, false
}

type UserProfile struct {
	UID         string           `json:"uid"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Image       string           `json:"image"`
	Settings    Settings         `json:"settings"`
	Connections []ConnectionView `json:"connections"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

func (u User) Profile() UserProfile {
	views := make([]ConnectionView, 0, len(u.Connections))
	for _, connection := range u.Connections {
		views = append(views, connection.Public())
	}
	return UserProfile{
		UID:         u.UID,
		Name:        u.Name,
		Email:       u.Email,
		Image:       u.Image,
		Settings:    u.Settings,
		Connections: views,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// ReplaceConnection returns a copy of the list with the provider entry
// replaced in place, or appended when absent.
func ReplaceConnection(connections []Connection, next Connection) []Connection {
	out := make([]Connection, 0, len(connections)+1)
	replaced := false
	for _, existing := range connections {
		if existing.Provider == next.Provider {
			if !replaced {
				out = append(out, next)
				replaced = true
			}
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, next)
	}
	return out
}

// RemoveConnection reports whether an entry for the provider was dropped.
func RemoveConnection(connections []Connection, provider ProviderKind) ([]Connection, bool) {
	out := make([]Connection, 0, len(connections))
	removed := false
	for _, existing := range connections {
		if existing.Provider == provider {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	return out, removed
}

// ApplyCorrelation sets a volatile correlation field on the connection.
func ApplyCorrelation(connection *Connection, field string, value string, at time.Time) error {
	if connection == nil {
		return fmt.Errorf("core: connection is required")
	}
	switch field {
	case CorrelationLastSenderPSID:
		connection.LastSenderPSID = value
	case CorrelationLastCustomerWaID:
		connection.LastCustomerWaID = value
	default:
		return fmt.Errorf("core: unsupported correlation field %q", field)
	}
	stamp := at.UTC()
	connection.LastEventAt = &stamp
	return nil
}

// ProviderResource is the provider-side object a connection binds to.
type ProviderResource struct {
	PageID             string
	PageName           string
	PageAccessToken    string
	WABAID             string
	PhoneNumberID      string
	DisplayPhoneNumber string
	VerifiedName       string
}

type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}

func cloneConnections(connections []Connection) []Connection {
	if len(connections) == 0 {
		return []Connection{}
	}
	out := make([]Connection, 0, len(connections))
	for _, connection := range connections {
		copied := connection
		copied.ConnectedAt = cloneTime(connection.ConnectedAt)
		copied.LastEventAt = cloneTime(connection.LastEventAt)
		out = append(out, copied)
	}
	return out
}

// CloneUser returns a deep copy safe to mutate.
func CloneUser(user User) User {
	cloned := user
	cloned.Connections = cloneConnections(user.Connections)
	return cloned
}
