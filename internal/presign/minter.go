package presign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dgellow/vaultlink/internal/federation"
	"github.com/dgellow/vaultlink/internal/log"
)

// ErrSigningFailed is returned when a signed URL cannot be computed from
// the inputs. Signing is local and never fails on network grounds.
var ErrSigningFailed = errors.New("signing failed")

// MaxTTL is the longest validity SigV4 query signing allows
const MaxTTL = 7 * 24 * time.Hour

// Config names the bucket and how to address it
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// Minter computes time-boxed GET URLs for objects in one bucket
type Minter struct {
	bucket       string
	region       string
	endpoint     string
	usePathStyle bool
}

// New creates a Minter
func New(cfg Config) *Minter {
	return &Minter{
		bucket:       cfg.Bucket,
		region:       cfg.Region,
		endpoint:     cfg.Endpoint,
		usePathStyle: cfg.UsePathStyle,
	}
}

// Mint signs a GET for key valid for ttl. The credentials are used for this
// one computation and are not retained.
func (m *Minter) Mint(ctx context.Context, creds *federation.Credentials, key string, ttl time.Duration) (string, error) {
	if !creds.Complete() {
		return "", fmt.Errorf("%w: credentials are missing a field", ErrSigningFailed)
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty object key", ErrSigningFailed)
	}
	if ttl <= 0 || ttl > MaxTTL {
		return "", fmt.Errorf("%w: ttl %s out of range", ErrSigningFailed, ttl)
	}
	if m.bucket == "" || m.region == "" {
		return "", fmt.Errorf("%w: bucket and region are required", ErrSigningFailed)
	}

	opts := s3.Options{
		Region:       m.region,
		Credentials:  credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		UsePathStyle: m.usePathStyle,
	}
	if m.endpoint != "" {
		opts.BaseEndpoint = aws.String(m.endpoint)
	}

	presigner := s3.NewPresignClient(s3.New(opts))
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	log.LogDebugWithFields("presign", "Minted signed URL", map[string]any{
		"bucket": m.bucket,
		"key":    key,
		"ttl":    ttl.String(),
	})
	return req.URL, nil
}
