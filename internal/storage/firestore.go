package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultFirestoreCollection = "vaultlink_sessions"

var _ Store = (*FirestoreStore)(nil)

// FirestoreStore keeps one document per session slot.
//
// Reads return errors rather than falling back, so a Firestore outage shows
// up as a failed page load instead of a silent logout.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// sessionDoc is the stored document shape
type sessionDoc struct {
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// NewFirestoreStore connects to Firestore
func NewFirestoreStore(ctx context.Context, projectID, database, collection string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		collection = defaultFirestoreCollection
	}

	var client *firestore.Client
	var err error
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &FirestoreStore{
		client:     client,
		collection: collection,
	}, nil
}

func (s *FirestoreStore) Get(ctx context.Context, key string) (string, error) {
	doc, err := s.client.Collection(s.collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get session from Firestore: %w", err)
	}

	var d sessionDoc
	if err := doc.DataTo(&d); err != nil {
		return "", fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return d.Value, nil
}

func (s *FirestoreStore) Put(ctx context.Context, key, value string) error {
	_, err := s.client.Collection(s.collection).Doc(key).Set(ctx, sessionDoc{
		Value:     value,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to store session in Firestore: %w", err)
	}
	return nil
}

// Close closes the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
