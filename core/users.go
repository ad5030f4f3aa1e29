package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profile fields a caller may edit. Connections are only changed through the
// authorization lifecycle.
var profileUpdateFields = map[string]struct{}{
	"name":     {},
	"image":    {},
	"settings": {},
}

// RegisterUser upserts by email. Existing users are returned untouched; the
// bool reports whether a record was created.
func (s *Service) RegisterUser(ctx context.Context, in RegisterUserInput) (user User, created bool, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"uid": in.UID}
	defer func() {
		fields["created"] = created
		s.observeOperation(ctx, startedAt, "register_user", err, fields)
	}()

	in, err = normalizeRegisterInput(in)
	if err != nil {
		return User{}, false, err
	}
	users, err := s.requireUsers()
	if err != nil {
		return User{}, false, err
	}
	user, created, err = users.UpsertOnInsert(ctx, in, DefaultSettings())
	if err != nil {
		err = s.mapError(err)
		return User{}, false, err
	}
	return user, created, nil
}

func (s *Service) GetUser(ctx context.Context, uid string) (User, error) {
	uid, err := requireField("uid", uid)
	if err != nil {
		return User{}, err
	}
	users, err := s.requireUsers()
	if err != nil {
		return User{}, err
	}
	user, err := users.FindByUID(ctx, uid)
	if err != nil {
		return User{}, s.mapError(err)
	}
	return user, nil
}

func (s *Service) ListConnections(ctx context.Context, uid string) ([]ConnectionView, error) {
	user, err := s.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	return user.Profile().Connections, nil
}

func (s *Service) UpdateProfile(ctx context.Context, uid string, update ProfileUpdate) (user User, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"uid": uid}
	defer func() {
		s.observeOperation(ctx, startedAt, "update_profile", err, fields)
	}()

	uid, err = requireField("uid", uid)
	if err != nil {
		return User{}, err
	}
	if err = validateProfileUpdate(update); err != nil {
		return User{}, err
	}
	users, err := s.requireUsers()
	if err != nil {
		return User{}, err
	}
	user, err = users.UpdateProfile(ctx, uid, update)
	if err != nil {
		err = s.mapError(err)
		return User{}, err
	}
	return user, nil
}

func normalizeRegisterInput(in RegisterUserInput) (RegisterUserInput, error) {
	var err error
	if in.UID, err = requireField("uid", in.UID); err != nil {
		return RegisterUserInput{}, err
	}
	if in.Name, err = requireField("name", in.Name); err != nil {
		return RegisterUserInput{}, err
	}
	if in.Image, err = requireField("image", in.Image); err != nil {
		return RegisterUserInput{}, err
	}
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return RegisterUserInput{}, err
	}
	in.Email = email
	return in, nil
}

// NormalizeEmail lowercases and trims; uniqueness is checked on that form.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ValidationError("email", "email is required")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", ValidationError("email", "email is invalid")
	}
	return email, nil
}

func validateProfileUpdate(update ProfileUpdate) error {
	if update.Name == nil && update.Image == nil && update.Settings == nil {
		return ValidationError("profile", "no updatable fields provided")
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return ValidationError("name", "name must not be empty")
	}
	if update.Settings != nil {
		if err := update.Settings.Validate(); err != nil {
			return ValidationError("settings.theme", err.Error())
		}
	}
	return nil
}

// ParseProfileUpdate decodes a loosely typed update body. Unknown keys,
// including connections, are rejected. Settings are replaced wholesale with
// omitted keys taking their defaults.
func ParseProfileUpdate(raw map[string]any) (ProfileUpdate, error) {
	if len(raw) == 0 {
		return ProfileUpdate{}, ValidationError("profile", "no updatable fields provided")
	}
	unknown := make([]string, 0)
	for key := range raw {
		if _, ok := profileUpdateFields[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return ProfileUpdate{}, ValidationError(unknown[0], fmt.Sprintf("field %q cannot be updated", unknown[0]))
	}

	update := ProfileUpdate{}
	if value, ok := raw["name"]; ok {
		name, isString := value.(string)
		if !isString {
			return ProfileUpdate{}, ValidationError("name", "name must be a string")
		}
		update.Name = &name
	}
	if value, ok := raw["image"]; ok {
		image, isString := value.(string)
		if !isString {
			return ProfileUpdate{}, ValidationError("image", "image must be a string")
		}
		update.Image = &image
	}
	if value, ok := raw["settings"]; ok {
		settings, err := parseSettings(value)
		if err != nil {
			return ProfileUpdate{}, err
		}
		update.Settings = &settings
	}
	if err := validateProfileUpdate(update); err != nil {
		return ProfileUpdate{}, err
	}
	return update, nil
}

func parseSettings(value any) (Settings, error) {
	values, ok := value.(map[string]any)
	if !ok {
		return Settings{}, ValidationError("settings", "settings must be an object")
	}
	settings := DefaultSettings()
	for key, raw := range values {
		switch key {
		case "language":
			language, isString := raw.(string)
			if !isString || strings.TrimSpace(language) == "" {
				return Settings{}, ValidationError("settings.language", "language must be a non-empty string")
			}
			settings.Language = strings.TrimSpace(language)
		case "notifications":
			notifications, isBool := raw.(bool)
			if !isBool {
				return Settings{}, ValidationError("settings.notifications", "notifications must be a boolean")
			}
			settings.Notifications = notifications
		case "theme":
			theme, isString := raw.(string)
			if !isString {
				return Settings{}, ValidationError("settings.theme", "theme must be a string")
			}
			settings.Theme = strings.TrimSpace(theme)
		default:
			return Settings{}, ValidationError("settings."+key, fmt.Sprintf("setting %q is not supported", key))
		}
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, ValidationError("settings.theme", err.Error())
	}
	return settings, nil
}
