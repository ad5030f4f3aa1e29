package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var durationConfigKeys = [][2]string{
	{"oauth", "state_ttl"},
	{"store", "cache_ttl"},
	{"session", "ttl"},
	{"jobs", "max_delay"},
}

// YAMLFileLoader reads a config file. A missing file yields an empty layer
// unless Required is set.
type YAMLFileLoader struct {
	Path     string
	Required bool
}

func (l YAMLFileLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !l.Required {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("core: parse config %s: %w", path, err)
	}
	if err := normalizeDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type envBinding struct {
	name string
	path []string
	kind string
}

var envBindings = []envBinding{
	{name: "SERVICE_NAME", path: []string{"service_name"}},
	{name: "ENCRYPTION_SECRET", path: []string{"security", "encryption_secret"}},
	{name: "GRAPH_API_VERSION", path: []string{"oauth", "graph_version"}},
	{name: "OAUTH_STATE_TTL", path: []string{"oauth", "state_ttl"}, kind: "duration"},
	{name: "FACEBOOK_ENABLED", path: []string{"facebook", "enabled"}, kind: "bool"},
	{name: "FACEBOOK_APP_ID", path: []string{"facebook", "app_id"}},
	{name: "FACEBOOK_APP_SECRET", path: []string{"facebook", "app_secret"}},
	{name: "FACEBOOK_REDIRECT_URI", path: []string{"facebook", "redirect_uri"}},
	{name: "FACEBOOK_VERIFY_TOKEN", path: []string{"facebook", "verify_token"}},
	{name: "FACEBOOK_VERIFY_SIGNATURE", path: []string{"facebook", "verify_signature"}, kind: "bool"},
	{name: "WHATSAPP_ENABLED", path: []string{"whatsapp", "enabled"}, kind: "bool"},
	{name: "WHATSAPP_APP_ID", path: []string{"whatsapp", "app_id"}},
	{name: "WHATSAPP_APP_SECRET", path: []string{"whatsapp", "app_secret"}},
	{name: "WHATSAPP_REDIRECT_URI", path: []string{"whatsapp", "redirect_uri"}},
	{name: "WHATSAPP_VERIFY_TOKEN", path: []string{"whatsapp", "verify_token"}},
	{name: "WHATSAPP_VERIFY_SIGNATURE", path: []string{"whatsapp", "verify_signature"}, kind: "bool"},
	{name: "STORE_DRIVER", path: []string{"store", "driver"}},
	{name: "DATABASE_URL", path: []string{"store", "dsn"}},
	{name: "MONGO_URI", path: []string{"store", "mongo_uri"}},
	{name: "MONGO_DATABASE", path: []string{"store", "database"}},
	{name: "SESSION_BACKEND", path: []string{"session", "backend"}},
	{name: "REDIS_ADDR", path: []string{"session", "redis_addr"}},
	{name: "JOBS_BACKEND", path: []string{"jobs", "backend"}},
	{name: "JOBS_REDIS_ADDR", path: []string{"jobs", "redis_addr"}},
	{name: "JOBS_MAX_ATTEMPTS", path: []string{"jobs", "max_attempts"}, kind: "int"},
	{name: "PORT", path: []string{"http", "addr"}, kind: "port"},
}

// EnvLoader maps process environment variables onto config keys.
type EnvLoader struct {
	Lookup func(string) (string, bool)
}

func (l EnvLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw := map[string]any{}
	for _, binding := range envBindings {
		value, ok := lookup(binding.name)
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			continue
		}
		converted, err := convertEnvValue(binding, value)
		if err != nil {
			return nil, err
		}
		setPath(raw, binding.path, converted)
	}
	return raw, nil
}

func convertEnvValue(binding envBinding, value string) (any, error) {
	switch binding.kind {
	case "bool":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("core: %s must be a boolean: %w", binding.name, err)
		}
		return parsed, nil
	case "int":
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("core: %s must be an integer: %w", binding.name, err)
		}
		return parsed, nil
	case "duration":
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("core: %s must be a duration: %w", binding.name, err)
		}
		return parsed, nil
	case "port":
		if strings.Contains(value, ":") {
			return value, nil
		}
		return ":" + value, nil
	default:
		return value, nil
	}
}

// ChainLoader merges loaders in order; later loaders win key by key.
type ChainLoader []RawConfigLoader

func (c ChainLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	merged := map[string]any{}
	for _, loader := range c {
		if loader == nil {
			continue
		}
		raw, err := loader.LoadRaw(ctx)
		if err != nil {
			return nil, err
		}
		mergeRaw(merged, raw)
	}
	return merged, nil
}

func mergeRaw(dst map[string]any, src map[string]any) {
	for key, value := range src {
		srcSection, srcIsMap := value.(map[string]any)
		dstSection, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeRaw(dstSection, srcSection)
			continue
		}
		if srcIsMap {
			copied := map[string]any{}
			mergeRaw(copied, srcSection)
			dst[key] = copied
			continue
		}
		dst[key] = value
	}
}

func setPath(raw map[string]any, path []string, value any) {
	current := raw
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

func normalizeDurations(raw map[string]any) error {
	for _, key := range durationConfigKeys {
		section, ok := raw[key[0]].(map[string]any)
		if !ok {
			continue
		}
		text, ok := section[key[1]].(string)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(text))
		if err != nil {
			return fmt.Errorf("core: %s.%s must be a duration: %w", key[0], key[1], err)
		}
		section[key[1]] = parsed
	}
	return nil
}
