package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// ProviderKind selects how endpoints of the identity provider are found
type ProviderKind string

const (
	// ProviderCognito derives endpoints from a hosted-UI domain
	ProviderCognito ProviderKind = "cognito"
	// ProviderOIDC uses a discovery document or explicit endpoints
	ProviderOIDC ProviderKind = "oidc"
)

// StorageKind selects the session slot backend
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageBolt      StorageKind = "bbolt"
	StorageFirestore StorageKind = "firestore"
)

const (
	DefaultObjectTTL     = 60 * time.Second
	DefaultCookieMaxAge  = 720 * time.Hour
	DefaultWidgetTimeout = 3 * time.Second
)

// DefaultScopes are requested when identity.scopes is empty
var DefaultScopes = []string{"openid", "email", "profile"}

// ServerConfig describes the HTTP listener and page chrome
type ServerConfig struct {
	BaseURL string `json:"baseURL"`
	Addr    string `json:"addr"`
	Name    string `json:"name"`
	Title   string `json:"title"`
}

// IdentityConfig describes the identity provider the browser logs in with.
//
// The redirect URI is sent verbatim to both the login and token endpoints and
// must exactly match the value registered with the provider. It is never
// derived from baseURL.
type IdentityConfig struct {
	Provider         ProviderKind `json:"provider"`
	Domain           string       `json:"domain,omitempty"`
	DiscoveryURL     string       `json:"discoveryUrl,omitempty"`
	AuthorizationURL string       `json:"authorizationUrl,omitempty"`
	TokenURL         string       `json:"tokenUrl,omitempty"`
	ClientID         string       `json:"clientId"`
	ClientSecret     Secret       `json:"clientSecret,omitempty"`
	RedirectURI      string       `json:"redirectUri"`
	Scopes           []string     `json:"scopes,omitempty"`
}

// FederationConfig describes the identity pool that turns identity tokens
// into temporary storage credentials
type FederationConfig struct {
	Region         string `json:"region"`
	IdentityPoolID string `json:"identityPoolId"`
	// LoginProvider is the login-namespace key under which the identity token
	// is presented, e.g. "cognito-idp.<region>.amazonaws.com/<userPoolId>".
	LoginProvider string `json:"loginProvider"`
	Endpoint      string `json:"endpoint,omitempty"`
}

// ObjectConfig names the one private object the signed link grants access to
type ObjectConfig struct {
	Bucket       string        `json:"bucket"`
	Key          string        `json:"key"`
	Region       string        `json:"region"`
	TTL          time.Duration `json:"ttl"`
	Endpoint     string        `json:"endpoint,omitempty"`
	UsePathStyle bool          `json:"usePathStyle,omitempty"`
}

// SessionConfig describes where the identity token is kept between visits
type SessionConfig struct {
	Storage             StorageKind   `json:"storage"`
	Path                string        `json:"path,omitempty"`
	GCPProject          string        `json:"gcpProject,omitempty"`
	FirestoreDatabase   string        `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string        `json:"firestoreCollection,omitempty"`
	EncryptionKey       Secret        `json:"encryptionKey"`
	StateKey            Secret        `json:"stateKey"`
	CookieMaxAge        time.Duration `json:"cookieMaxAge"`
	CleanupInterval     time.Duration `json:"cleanupInterval"`
	// RejectExpired treats a stored token whose exp has passed as absent
	// when the page loads.
	RejectExpired bool `json:"rejectExpired"`
}

// WidgetsConfig points at the page's read-only collaborators
type WidgetsConfig struct {
	CounterURL    string        `json:"counterUrl,omitempty"`
	TickerURL     string        `json:"tickerUrl,omitempty"`
	TickerSymbols []string      `json:"tickerSymbols,omitempty"`
	EmailURL      string        `json:"emailUrl,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Server     ServerConfig     `json:"server"`
	Identity   IdentityConfig   `json:"identity"`
	Federation FederationConfig `json:"federation"`
	Object     ObjectConfig     `json:"object"`
	Session    SessionConfig    `json:"session"`
	Widgets    *WidgetsConfig   `json:"widgets,omitempty"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR_NAME"} reference resolved immediately.
//
// The explicit JSON syntax is used instead of shell-like $VAR so that config
// files passed through startup scripts or CI are never expanded twice.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

// parseField resolves an optional raw field, leaving dst untouched when absent
func parseField(raw json.RawMessage, name string, dst *string) error {
	if raw == nil {
		return nil
	}
	value, err := ParseConfigValue(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = value
	return nil
}

func parseDuration(raw string, name string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = d
	return nil
}
