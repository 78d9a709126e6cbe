package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/dgellow/vaultlink/internal/log"
)

// VersionPrefix is required at the start of the config "version" field
const VersionPrefix = "vaultlink/v1"

// secretFields must be supplied as {"$env": ...} references
var secretFields = []struct {
	section string
	name    string
}{
	{"identity", "clientSecret"},
	{"session", "encryptionKey"},
	{"session", "stateKey"},
}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, VersionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig rejects secrets written inline in the file
func validateRawConfig(rawConfig map[string]any) error {
	for _, field := range secretFields {
		section, ok := rawConfig[field.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[field.name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", field.section, field.name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", field.section, field.name)
			}
		}
	}
	return nil
}

// ApplyDefaults fills unset optional values
func ApplyDefaults(config *Config) {
	if config.Server.Name == "" {
		config.Server.Name = "vaultlink"
	}
	if config.Server.Title == "" {
		config.Server.Title = "Private download"
	}
	if len(config.Identity.Scopes) == 0 {
		config.Identity.Scopes = append([]string(nil), DefaultScopes...)
	}
	if config.Object.TTL == 0 {
		config.Object.TTL = DefaultObjectTTL
	}
	if config.Object.Region == "" {
		config.Object.Region = config.Federation.Region
	}
	if config.Session.Storage == "" {
		config.Session.Storage = StorageMemory
	}
	if config.Session.CookieMaxAge == 0 {
		config.Session.CookieMaxAge = DefaultCookieMaxAge
	}
	if config.Widgets != nil && config.Widgets.Timeout == 0 {
		config.Widgets.Timeout = DefaultWidgetTimeout
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if err := validateIdentity(&config.Identity); err != nil {
		return fmt.Errorf("identity config: %w", err)
	}
	if err := validateFederation(&config.Federation); err != nil {
		return fmt.Errorf("federation config: %w", err)
	}
	if err := validateObject(&config.Object); err != nil {
		return fmt.Errorf("object config: %w", err)
	}
	if err := validateSession(&config.Session); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if config.Widgets != nil {
		if err := validateWidgets(config.Widgets); err != nil {
			return fmt.Errorf("widgets config: %w", err)
		}
	}

	return nil
}

func validateIdentity(identity *IdentityConfig) error {
	switch identity.Provider {
	case ProviderCognito:
		if identity.Domain == "" {
			return fmt.Errorf("domain is required for cognito provider")
		}
	case ProviderOIDC:
		hasExplicit := identity.AuthorizationURL != "" && identity.TokenURL != ""
		if identity.DiscoveryURL == "" && !hasExplicit {
			return fmt.Errorf("oidc provider requires discoveryUrl or both authorizationUrl and tokenUrl")
		}
	case "":
		return fmt.Errorf("provider is required")
	default:
		return fmt.Errorf("unsupported provider: %s", identity.Provider)
	}

	if identity.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if identity.RedirectURI == "" {
		return fmt.Errorf("redirectUri is required")
	}
	if _, err := absoluteURL(identity.RedirectURI); err != nil {
		return fmt.Errorf("redirectUri: %w", err)
	}
	return nil
}

func validateFederation(federation *FederationConfig) error {
	if federation.Region == "" {
		return fmt.Errorf("region is required")
	}
	if federation.IdentityPoolID == "" {
		return fmt.Errorf("identityPoolId is required")
	}
	if federation.LoginProvider == "" {
		return fmt.Errorf("loginProvider is required")
	}
	return nil
}

func validateObject(object *ObjectConfig) error {
	if object.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if object.Key == "" {
		return fmt.Errorf("key is required")
	}
	if object.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	if object.TTL > DefaultObjectTTL {
		log.LogWarnWithFields("config", "Signed link TTL is longer than the recommended window", map[string]any{
			"ttl":         object.TTL.String(),
			"recommended": DefaultObjectTTL.String(),
		})
	}
	return nil
}

func validateSession(session *SessionConfig) error {
	switch session.Storage {
	case StorageMemory:
	case StorageBolt:
		if session.Path == "" {
			return fmt.Errorf("path is required when using bbolt storage")
		}
	case StorageFirestore:
		if session.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unsupported storage: %s", session.Storage)
	}

	if len(session.EncryptionKey) != 32 {
		return fmt.Errorf("encryptionKey must be exactly 32 characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", len(session.EncryptionKey))
	}
	if len(session.StateKey) < 32 {
		return fmt.Errorf("stateKey must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(session.StateKey))
	}
	if session.CookieMaxAge < 0 {
		return fmt.Errorf("cookieMaxAge cannot be negative")
	}
	if session.CleanupInterval < 0 {
		return fmt.Errorf("cleanupInterval cannot be negative")
	}
	return nil
}

func validateWidgets(widgets *WidgetsConfig) error {
	for name, raw := range map[string]string{
		"counterUrl": widgets.CounterURL,
		"tickerUrl":  widgets.TickerURL,
		"emailUrl":   widgets.EmailURL,
	} {
		if raw == "" {
			continue
		}
		if _, err := absoluteURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if widgets.TickerURL != "" && len(widgets.TickerSymbols) == 0 {
		return fmt.Errorf("tickerSymbols is required when tickerUrl is set")
	}
	return nil
}

func absoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q must be an absolute URL", raw)
	}
	return u, nil
}
