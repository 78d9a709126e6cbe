package federation_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity/types"
	"github.com/dgellow/vaultlink/internal/federation"
	"github.com/dgellow/vaultlink/internal/testutil"
	"github.com/dgellow/vaultlink/internal/tokencodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	poolID        = "eu-west-1:00000000-0000-0000-0000-000000000000"
	loginProvider = "cognito-idp.eu-west-1.amazonaws.com/eu-west-1_test"
)

type mockIdentityAPI struct {
	mock.Mock
}

func (m *mockIdentityAPI) GetId(ctx context.Context, params *cognitoidentity.GetIdInput, _ ...func(*cognitoidentity.Options)) (*cognitoidentity.GetIdOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cognitoidentity.GetIdOutput), args.Error(1)
}

func (m *mockIdentityAPI) GetCredentialsForIdentity(ctx context.Context, params *cognitoidentity.GetCredentialsForIdentityInput, _ ...func(*cognitoidentity.Options)) (*cognitoidentity.GetCredentialsForIdentityOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cognitoidentity.GetCredentialsForIdentityOutput), args.Error(1)
}

func newFederator(api federation.IdentityAPI) *federation.Federator {
	return federation.New(api, federation.Config{IdentityPoolID: poolID, LoginProvider: loginProvider})
}

func TestFederate(t *testing.T) {
	idToken := testutil.IDToken(t, nil)
	expiration := time.Now().Add(time.Hour).Truncate(time.Second)

	api := &mockIdentityAPI{}
	api.On("GetId", mock.Anything, mock.MatchedBy(func(in *cognitoidentity.GetIdInput) bool {
		return aws.ToString(in.IdentityPoolId) == poolID && in.Logins[loginProvider] == idToken
	})).Return(&cognitoidentity.GetIdOutput{IdentityId: aws.String("eu-west-1:identity-1")}, nil)
	api.On("GetCredentialsForIdentity", mock.Anything, mock.MatchedBy(func(in *cognitoidentity.GetCredentialsForIdentityInput) bool {
		return aws.ToString(in.IdentityId) == "eu-west-1:identity-1" && in.Logins[loginProvider] == idToken && len(in.Logins) == 1
	})).Return(&cognitoidentity.GetCredentialsForIdentityOutput{
		IdentityId: aws.String("eu-west-1:identity-1"),
		Credentials: &types.Credentials{
			AccessKeyId:  aws.String("ASIAEXAMPLE"),
			SecretKey:    aws.String("secret"),
			SessionToken: aws.String("session"),
			Expiration:   aws.Time(expiration),
		},
	}, nil)

	creds, err := newFederator(api).Federate(context.Background(), idToken)
	require.NoError(t, err)

	assert.Equal(t, "ASIAEXAMPLE", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
	assert.Equal(t, "session", creds.SessionToken)
	assert.True(t, expiration.Equal(creds.Expiration))
	api.AssertExpectations(t)
}

func TestFederate_RejectsLocally(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		malformed bool
	}{
		{name: "empty_token", token: ""},
		{name: "not_a_jwt", token: "garbage", malformed: true},
		{name: "missing_sub", token: testutil.IDToken(t, map[string]any{"sub": nil})},
		{name: "missing_iss", token: testutil.IDToken(t, map[string]any{"iss": nil})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockIdentityAPI{}

			_, err := newFederator(api).Federate(context.Background(), tt.token)
			require.ErrorIs(t, err, federation.ErrCredentialFederationFailed)
			if tt.malformed {
				assert.ErrorIs(t, err, tokencodec.ErrTokenMalformed)
			}
			api.AssertNotCalled(t, "GetId", mock.Anything, mock.Anything)
		})
	}
}

func TestFederate_RemoteFailures(t *testing.T) {
	remoteErr := errors.New("NotAuthorizedException: Invalid login token. Token expired")

	tests := []struct {
		name  string
		setup func(api *mockIdentityAPI)
	}{
		{
			name: "get_id_fails",
			setup: func(api *mockIdentityAPI) {
				api.On("GetId", mock.Anything, mock.Anything).Return(nil, remoteErr)
			},
		},
		{
			name: "get_id_without_identity",
			setup: func(api *mockIdentityAPI) {
				api.On("GetId", mock.Anything, mock.Anything).Return(&cognitoidentity.GetIdOutput{}, nil)
			},
		},
		{
			name: "credentials_fail",
			setup: func(api *mockIdentityAPI) {
				api.On("GetId", mock.Anything, mock.Anything).Return(&cognitoidentity.GetIdOutput{IdentityId: aws.String("id")}, nil)
				api.On("GetCredentialsForIdentity", mock.Anything, mock.Anything).Return(nil, remoteErr)
			},
		},
		{
			name: "credentials_incomplete",
			setup: func(api *mockIdentityAPI) {
				api.On("GetId", mock.Anything, mock.Anything).Return(&cognitoidentity.GetIdOutput{IdentityId: aws.String("id")}, nil)
				api.On("GetCredentialsForIdentity", mock.Anything, mock.Anything).Return(&cognitoidentity.GetCredentialsForIdentityOutput{
					Credentials: &types.Credentials{AccessKeyId: aws.String("ASIA")},
				}, nil)
			},
		},
		{
			name: "credentials_missing",
			setup: func(api *mockIdentityAPI) {
				api.On("GetId", mock.Anything, mock.Anything).Return(&cognitoidentity.GetIdOutput{IdentityId: aws.String("id")}, nil)
				api.On("GetCredentialsForIdentity", mock.Anything, mock.Anything).Return(&cognitoidentity.GetCredentialsForIdentityOutput{}, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockIdentityAPI{}
			tt.setup(api)

			_, err := newFederator(api).Federate(context.Background(), testutil.IDToken(t, nil))
			assert.ErrorIs(t, err, federation.ErrCredentialFederationFailed)
		})
	}
}

// fakeIdentityService answers the two Cognito Identity JSON operations
type fakeIdentityService struct {
	mu      sync.Mutex
	logins  []map[string]string
	rejects bool
}

func (s *fakeIdentityService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IdentityPoolId string
		IdentityId     string
		Logins         map[string]string
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.logins = append(s.logins, body.Logins)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	if s.rejects {
		w.Header().Set("X-Amzn-ErrorType", "NotAuthorizedException")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"__type":"NotAuthorizedException","message":"Invalid login token. Token expired"}`))
		return
	}

	switch r.Header.Get("X-Amz-Target") {
	case "AWSCognitoIdentityService.GetId":
		_, _ = w.Write([]byte(`{"IdentityId":"eu-west-1:identity-1"}`))
	case "AWSCognitoIdentityService.GetCredentialsForIdentity":
		_, _ = w.Write([]byte(`{"IdentityId":"eu-west-1:identity-1","Credentials":{"AccessKeyId":"ASIAEXAMPLE","SecretKey":"secret","SessionToken":"session","Expiration":4102444800}}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func TestFederate_CognitoClient(t *testing.T) {
	service := &fakeIdentityService{}
	server := httptest.NewServer(service)
	defer server.Close()

	client := federation.NewCognitoClient("eu-west-1", server.URL, server.Client())
	idToken := testutil.IDToken(t, nil)

	creds, err := newFederator(client).Federate(context.Background(), idToken)
	require.NoError(t, err)
	assert.Equal(t, "ASIAEXAMPLE", creds.AccessKeyID)
	assert.Equal(t, int64(4102444800), creds.Expiration.Unix())

	require.Len(t, service.logins, 2)
	assert.Equal(t, service.logins[0], service.logins[1], "both calls must present the same logins")
	assert.Equal(t, idToken, service.logins[0][loginProvider])
}

func TestFederate_CognitoClientRejects(t *testing.T) {
	server := httptest.NewServer(&fakeIdentityService{rejects: true})
	defer server.Close()

	client := federation.NewCognitoClient("eu-west-1", server.URL, server.Client())

	_, err := newFederator(client).Federate(context.Background(), testutil.IDToken(t, nil))
	require.ErrorIs(t, err, federation.ErrCredentialFederationFailed)
	assert.Contains(t, err.Error(), "NotAuthorizedException")
}
