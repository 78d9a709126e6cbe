package config

import (
	"encoding/json"
)

// UnmarshalJSON implements custom unmarshaling for IdentityConfig
func (c *IdentityConfig) UnmarshalJSON(data []byte) error {
	type rawIdentity struct {
		Provider         ProviderKind    `json:"provider"`
		Domain           json.RawMessage `json:"domain,omitempty"`
		DiscoveryURL     json.RawMessage `json:"discoveryUrl,omitempty"`
		AuthorizationURL json.RawMessage `json:"authorizationUrl,omitempty"`
		TokenURL         json.RawMessage `json:"tokenUrl,omitempty"`
		ClientID         json.RawMessage `json:"clientId"`
		ClientSecret     json.RawMessage `json:"clientSecret,omitempty"`
		RedirectURI      json.RawMessage `json:"redirectUri"`
		Scopes           []string        `json:"scopes,omitempty"`
	}

	var raw rawIdentity
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Provider = raw.Provider
	c.Scopes = raw.Scopes

	fields := []struct {
		raw  json.RawMessage
		name string
		dst  *string
	}{
		{raw.Domain, "domain", &c.Domain},
		{raw.DiscoveryURL, "discoveryUrl", &c.DiscoveryURL},
		{raw.AuthorizationURL, "authorizationUrl", &c.AuthorizationURL},
		{raw.TokenURL, "tokenUrl", &c.TokenURL},
		{raw.ClientID, "clientId", &c.ClientID},
		{raw.RedirectURI, "redirectUri", &c.RedirectURI},
	}
	for _, f := range fields {
		if err := parseField(f.raw, f.name, f.dst); err != nil {
			return err
		}
	}

	var secret string
	if err := parseField(raw.ClientSecret, "clientSecret", &secret); err != nil {
		return err
	}
	c.ClientSecret = Secret(secret)

	return nil
}

// UnmarshalJSON implements custom unmarshaling for FederationConfig
func (c *FederationConfig) UnmarshalJSON(data []byte) error {
	type rawFederation struct {
		Region         json.RawMessage `json:"region"`
		IdentityPoolID json.RawMessage `json:"identityPoolId"`
		LoginProvider  json.RawMessage `json:"loginProvider"`
		Endpoint       json.RawMessage `json:"endpoint,omitempty"`
	}

	var raw rawFederation
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if err := parseField(raw.Region, "region", &c.Region); err != nil {
		return err
	}
	if err := parseField(raw.IdentityPoolID, "identityPoolId", &c.IdentityPoolID); err != nil {
		return err
	}
	if err := parseField(raw.LoginProvider, "loginProvider", &c.LoginProvider); err != nil {
		return err
	}
	return parseField(raw.Endpoint, "endpoint", &c.Endpoint)
}

// UnmarshalJSON implements custom unmarshaling for ObjectConfig
func (c *ObjectConfig) UnmarshalJSON(data []byte) error {
	type rawObject struct {
		Bucket       json.RawMessage `json:"bucket"`
		Key          json.RawMessage `json:"key"`
		Region       json.RawMessage `json:"region"`
		TTL          string          `json:"ttl"`
		Endpoint     json.RawMessage `json:"endpoint,omitempty"`
		UsePathStyle bool            `json:"usePathStyle,omitempty"`
	}

	var raw rawObject
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.UsePathStyle = raw.UsePathStyle
	if err := parseDuration(raw.TTL, "ttl", &c.TTL); err != nil {
		return err
	}
	if err := parseField(raw.Bucket, "bucket", &c.Bucket); err != nil {
		return err
	}
	if err := parseField(raw.Key, "key", &c.Key); err != nil {
		return err
	}
	if err := parseField(raw.Region, "region", &c.Region); err != nil {
		return err
	}
	return parseField(raw.Endpoint, "endpoint", &c.Endpoint)
}

// UnmarshalJSON implements custom unmarshaling for SessionConfig
func (c *SessionConfig) UnmarshalJSON(data []byte) error {
	type rawSession struct {
		Storage             StorageKind     `json:"storage"`
		Path                string          `json:"path,omitempty"`
		GCPProject          json.RawMessage `json:"gcpProject,omitempty"`
		FirestoreDatabase   string          `json:"firestoreDatabase,omitempty"`
		FirestoreCollection string          `json:"firestoreCollection,omitempty"`
		EncryptionKey       json.RawMessage `json:"encryptionKey"`
		StateKey            json.RawMessage `json:"stateKey"`
		CookieMaxAge        string          `json:"cookieMaxAge"`
		CleanupInterval     string          `json:"cleanupInterval"`
		RejectExpired       *bool           `json:"rejectExpired"`
	}

	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Storage = raw.Storage
	c.Path = raw.Path
	c.FirestoreDatabase = raw.FirestoreDatabase
	c.FirestoreCollection = raw.FirestoreCollection

	// Expired tokens are rejected unless explicitly turned off
	c.RejectExpired = true
	if raw.RejectExpired != nil {
		c.RejectExpired = *raw.RejectExpired
	}

	if err := parseDuration(raw.CookieMaxAge, "cookieMaxAge", &c.CookieMaxAge); err != nil {
		return err
	}
	if err := parseDuration(raw.CleanupInterval, "cleanupInterval", &c.CleanupInterval); err != nil {
		return err
	}
	if err := parseField(raw.GCPProject, "gcpProject", &c.GCPProject); err != nil {
		return err
	}

	var encryptionKey, stateKey string
	if err := parseField(raw.EncryptionKey, "encryptionKey", &encryptionKey); err != nil {
		return err
	}
	if err := parseField(raw.StateKey, "stateKey", &stateKey); err != nil {
		return err
	}
	c.EncryptionKey = Secret(encryptionKey)
	c.StateKey = Secret(stateKey)

	return nil
}

// UnmarshalJSON implements custom unmarshaling for WidgetsConfig
func (c *WidgetsConfig) UnmarshalJSON(data []byte) error {
	type rawWidgets struct {
		CounterURL    json.RawMessage `json:"counterUrl,omitempty"`
		TickerURL     json.RawMessage `json:"tickerUrl,omitempty"`
		TickerSymbols []string        `json:"tickerSymbols,omitempty"`
		EmailURL      json.RawMessage `json:"emailUrl,omitempty"`
		Timeout       string          `json:"timeout,omitempty"`
	}

	var raw rawWidgets
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.TickerSymbols = raw.TickerSymbols
	if err := parseDuration(raw.Timeout, "timeout", &c.Timeout); err != nil {
		return err
	}
	if err := parseField(raw.CounterURL, "counterUrl", &c.CounterURL); err != nil {
		return err
	}
	if err := parseField(raw.TickerURL, "tickerUrl", &c.TickerURL); err != nil {
		return err
	}
	return parseField(raw.EmailURL, "emailUrl", &c.EmailURL)
}
