package testutil

import (
	"context"
	"time"

	"github.com/dgellow/vaultlink/internal/federation"
	"github.com/stretchr/testify/mock"
)

type MockFederator struct {
	mock.Mock
}

func (m *MockFederator) Federate(ctx context.Context, idToken string) (*federation.Credentials, error) {
	args := m.Called(ctx, idToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*federation.Credentials), args.Error(1)
}

type MockMinter struct {
	mock.Mock
}

func (m *MockMinter) Mint(ctx context.Context, creds *federation.Credentials, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, creds, key, ttl)
	return args.String(0), args.Error(1)
}

// Credentials returns a complete, fake credential triple
func Credentials() *federation.Credentials {
	return &federation.Credentials{
		AccessKeyID:     "ASIATESTACCESSKEY",
		SecretAccessKey: "test-secret-access-key",
		SessionToken:    "test-session-token",
		Expiration:      time.Now().Add(time.Hour),
	}
}
