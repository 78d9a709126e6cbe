package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": \"%s\"", VersionPrefix)
	} else if !strings.HasPrefix(version, VersionPrefix) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, VersionPrefix, VersionPrefix)
	}

	validateServerStructure(rawConfig, result)
	validateIdentityStructure(rawConfig, result)
	validateFederationStructure(rawConfig, result)
	validateObjectStructure(rawConfig, result)
	validateSessionStructure(rawConfig, result)
	validateWidgetsStructure(rawConfig, result)

	return result, nil
}

func section(rawConfig map[string]any, name string, result *ValidationResult) (map[string]any, bool) {
	s, ok := rawConfig[name].(map[string]any)
	if !ok {
		result.addError(name, "%s field is required and must be an object", name)
	}
	return s, ok
}

// requireFields reports a missing error for every absent key
func requireFields(s map[string]any, prefix string, result *ValidationResult, fields map[string]string) {
	for name, example := range fields {
		if _, ok := s[name]; !ok {
			result.addError(prefix+"."+name, "%s is required. Example: %s", name, example)
		}
	}
}

func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := section(rawConfig, "server", result)
	if !ok {
		return
	}
	requireFields(server, "server", result, map[string]string{
		"baseURL": `"https://files.example.com"`,
		"addr":    `":8080" or "0.0.0.0:8080"`,
	})
}

func validateIdentityStructure(rawConfig map[string]any, result *ValidationResult) {
	identity, ok := section(rawConfig, "identity", result)
	if !ok {
		return
	}

	requireFields(identity, "identity", result, map[string]string{
		"clientId":    `{"$env": "IDP_CLIENT_ID"}`,
		"redirectUri": `"https://files.example.com/"`,
	})

	provider, _ := identity["provider"].(string)
	switch ProviderKind(provider) {
	case ProviderCognito:
		if _, ok := identity["domain"]; !ok {
			result.addError("identity.domain", "domain is required for cognito provider. Example: \"auth.example.com\"")
		}
	case ProviderOIDC:
		_, hasDiscovery := identity["discoveryUrl"]
		_, hasAuth := identity["authorizationUrl"]
		_, hasToken := identity["tokenUrl"]
		if !hasDiscovery && !(hasAuth && hasToken) {
			result.addError("identity", "oidc provider requires discoveryUrl or both authorizationUrl and tokenUrl")
		}
	case "":
		result.addError("identity.provider", "provider is required. Use \"cognito\" or \"oidc\"")
	default:
		result.addError("identity.provider", "unsupported provider '%s' - use \"cognito\" or \"oidc\"", provider)
	}

	if secret, ok := identity["clientSecret"]; ok {
		validateSecretReference(secret, "identity.clientSecret", result)
	}

	if redirect, ok := identity["redirectUri"].(string); ok && strings.HasPrefix(redirect, "http://") &&
		!strings.HasPrefix(redirect, "http://localhost") && !strings.HasPrefix(redirect, "http://127.0.0.1") {
		result.addWarning("identity.redirectUri", "redirectUri uses plain http outside localhost; the authorization code will travel unencrypted")
	}

	if scopes, ok := identity["scopes"].([]any); ok {
		hasOpenID := false
		for _, s := range scopes {
			if s == "openid" {
				hasOpenID = true
			}
		}
		if !hasOpenID {
			result.addWarning("identity.scopes", "scopes do not include \"openid\"; the token response will not carry an id_token")
		}
	}
}

func validateFederationStructure(rawConfig map[string]any, result *ValidationResult) {
	federation, ok := section(rawConfig, "federation", result)
	if !ok {
		return
	}
	requireFields(federation, "federation", result, map[string]string{
		"region":         `"eu-west-1"`,
		"identityPoolId": `"eu-west-1:00000000-0000-0000-0000-000000000000"`,
		"loginProvider":  `"cognito-idp.eu-west-1.amazonaws.com/eu-west-1_XXXXXXXXX"`,
	})
}

func validateObjectStructure(rawConfig map[string]any, result *ValidationResult) {
	object, ok := section(rawConfig, "object", result)
	if !ok {
		return
	}
	requireFields(object, "object", result, map[string]string{
		"bucket": `"private-files"`,
		"key":    `"report.pdf"`,
	})

	if raw, ok := object["ttl"].(string); ok {
		ttl, err := time.ParseDuration(raw)
		switch {
		case err != nil:
			result.addError("object.ttl", "invalid duration '%s': %v", raw, err)
		case ttl <= 0:
			result.addError("object.ttl", "ttl must be positive")
		case ttl != DefaultObjectTTL:
			result.addWarning("object.ttl", "ttl is %s; signed links are expected to live %s", ttl, DefaultObjectTTL)
		}
	}
}

func validateSessionStructure(rawConfig map[string]any, result *ValidationResult) {
	session, ok := section(rawConfig, "session", result)
	if !ok {
		return
	}

	for _, name := range []string{"encryptionKey", "stateKey"} {
		value, ok := session[name]
		if !ok {
			result.addError("session."+name, "%s is required. Example: {\"$env\": \"%s\"}", name, envName(name))
			continue
		}
		validateSecretReference(value, "session."+name, result)
	}

	storage, _ := session["storage"].(string)
	switch StorageKind(storage) {
	case "", StorageMemory:
		result.addWarning("session.storage", "memory storage loses every signed-in session on restart")
	case StorageBolt:
		if _, ok := session["path"]; !ok {
			result.addError("session.path", "path is required when using bbolt storage")
		}
	case StorageFirestore:
		if _, ok := session["gcpProject"]; !ok {
			result.addError("session.gcpProject", "gcpProject is required when using firestore storage")
		}
	default:
		result.addError("session.storage", "unsupported storage '%s' - use memory, bbolt or firestore", storage)
	}

	for _, name := range []string{"cookieMaxAge", "cleanupInterval"} {
		if raw, ok := session[name].(string); ok {
			if d, err := time.ParseDuration(raw); err != nil {
				result.addError("session."+name, "invalid duration '%s': %v", raw, err)
			} else if d < 0 {
				result.addError("session."+name, "%s cannot be negative", name)
			}
		}
	}

	if reject, ok := session["rejectExpired"].(bool); ok && !reject {
		result.addWarning("session.rejectExpired", "expired tokens will be shown as signed in until a download is attempted")
	}
}

func validateWidgetsStructure(rawConfig map[string]any, result *ValidationResult) {
	widgets, ok := rawConfig["widgets"].(map[string]any)
	if !ok {
		return
	}
	if _, hasTicker := widgets["tickerUrl"]; hasTicker {
		if symbols, ok := widgets["tickerSymbols"].([]any); !ok || len(symbols) == 0 {
			result.addError("widgets.tickerSymbols", "tickerSymbols is required when tickerUrl is set. Example: [\"BTC\", \"ETH\"]")
		}
	}
}

// validateSecretReference requires secrets to be env references
func validateSecretReference(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		result.addError(path, "secret must use environment variable reference, not a literal value. Use {\"$env\": \"VAR_NAME\"}")
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			result.addError(path, "secret must use {\"$env\": \"VAR_NAME\"} format")
		}
	default:
		result.addError(path, "secret must be an environment variable reference")
	}
}

func envName(field string) string {
	switch field {
	case "encryptionKey":
		return "SESSION_ENCRYPTION_KEY"
	case "stateKey":
		return "SESSION_STATE_KEY"
	default:
		return strings.ToUpper(field)
	}
}

func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
