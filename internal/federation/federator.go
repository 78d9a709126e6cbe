package federation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/dgellow/vaultlink/internal/log"
	"github.com/dgellow/vaultlink/internal/tokencodec"
)

// ErrCredentialFederationFailed is returned when either step of the
// identity-pool exchange fails, including when the remote service rejects
// an expired token.
var ErrCredentialFederationFailed = errors.New("credential federation failed")

// Credentials is a temporary storage credential triple. It lives only for
// one download attempt and is never persisted.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// Complete reports whether all three fields are present
func (c *Credentials) Complete() bool {
	return c != nil && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.SessionToken != ""
}

// IdentityAPI is the part of the Cognito Identity client the federator uses
type IdentityAPI interface {
	GetId(ctx context.Context, params *cognitoidentity.GetIdInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetIdOutput, error)
	GetCredentialsForIdentity(ctx context.Context, params *cognitoidentity.GetCredentialsForIdentityInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetCredentialsForIdentityOutput, error)
}

// Config names the identity pool and the login namespace the identity token
// is presented under
type Config struct {
	IdentityPoolID string
	LoginProvider  string
}

// Federator trades identity tokens for temporary credentials
type Federator struct {
	api            IdentityAPI
	identityPoolID string
	loginProvider  string
}

// New creates a Federator over api
func New(api IdentityAPI, cfg Config) *Federator {
	return &Federator{
		api:            api,
		identityPoolID: cfg.IdentityPoolID,
		loginProvider:  cfg.LoginProvider,
	}
}

// NewCognitoClient builds an unsigned Cognito Identity client. GetId and
// GetCredentialsForIdentity authenticate through the Logins map, not SigV4.
func NewCognitoClient(region, endpoint string, httpClient *http.Client) *cognitoidentity.Client {
	opts := cognitoidentity.Options{
		Region:      region,
		Credentials: aws.AnonymousCredentials{},
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
	}
	if httpClient != nil {
		opts.HTTPClient = httpClient
	}
	return cognitoidentity.New(opts)
}

// Federate resolves the identity handle for idToken, then exchanges it for
// credentials. Both calls carry the same Logins map. Tokens that are empty
// or lack sub and iss are rejected without a network call.
func (f *Federator) Federate(ctx context.Context, idToken string) (*Credentials, error) {
	if idToken == "" {
		return nil, fmt.Errorf("%w: empty identity token", ErrCredentialFederationFailed)
	}
	claims, err := tokencodec.Decode(idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentialFederationFailed, err)
	}
	if claims.Subject() == "" || claims.Issuer() == "" {
		return nil, fmt.Errorf("%w: identity token lacks sub or iss claim", ErrCredentialFederationFailed)
	}

	logins := map[string]string{f.loginProvider: idToken}

	idOut, err := f.api.GetId(ctx, &cognitoidentity.GetIdInput{
		IdentityPoolId: aws.String(f.identityPoolID),
		Logins:         logins,
	})
	if err != nil {
		log.LogWarnWithFields("federation", "Resolving identity failed", map[string]any{
			"pool":  f.identityPoolID,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: resolving identity: %v", ErrCredentialFederationFailed, err)
	}
	identityID := aws.ToString(idOut.IdentityId)
	if identityID == "" {
		return nil, fmt.Errorf("%w: resolving identity returned no identity id", ErrCredentialFederationFailed)
	}

	credsOut, err := f.api.GetCredentialsForIdentity(ctx, &cognitoidentity.GetCredentialsForIdentityInput{
		IdentityId: aws.String(identityID),
		Logins:     logins,
	})
	if err != nil {
		log.LogWarnWithFields("federation", "Fetching credentials failed", map[string]any{
			"identity": identityID,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("%w: fetching credentials: %v", ErrCredentialFederationFailed, err)
	}
	if credsOut.Credentials == nil {
		return nil, fmt.Errorf("%w: response carries no credentials", ErrCredentialFederationFailed)
	}

	creds := &Credentials{
		AccessKeyID:     aws.ToString(credsOut.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(credsOut.Credentials.SecretKey),
		SessionToken:    aws.ToString(credsOut.Credentials.SessionToken),
		Expiration:      aws.ToTime(credsOut.Credentials.Expiration),
	}
	if !creds.Complete() {
		return nil, fmt.Errorf("%w: response credentials are incomplete", ErrCredentialFederationFailed)
	}

	log.LogDebugWithFields("federation", "Obtained temporary credentials", map[string]any{
		"identity":   identityID,
		"expiration": creds.Expiration,
	})
	return creds, nil
}
