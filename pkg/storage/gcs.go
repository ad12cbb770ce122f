package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStorage stores objects in a Google Cloud Storage bucket.
type GCSStorage struct {
	client     *gcs.Client
	bucket     string
	accessID   string
	privateKey []byte
}

type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// NewGCSStorage builds a client from explicit JSON credentials when given,
// otherwise from application default credentials.
func NewGCSStorage(ctx context.Context, bucket, credentialsJSON string) (*GCSStorage, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}
	var opts []option.ClientOption
	store := &GCSStorage{bucket: bucket}
	if creds := strings.TrimSpace(credentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		var key serviceAccountKey
		if err := json.Unmarshal([]byte(creds), &key); err != nil {
			return nil, fmt.Errorf("invalid GCS credentials: %w", err)
		}
		store.accessID = key.ClientEmail
		store.privateKey = []byte(strings.ReplaceAll(key.PrivateKey, "\\n", "\n"))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	store.client = client
	return store, nil
}

// Put uploads the reader to the object at key.
func (s *GCSStorage) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	w := s.client.Bucket(s.bucket).Object(cleaned).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", cleaned, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload %s: %w", cleaned, err)
	}
	return nil
}

// Open streams the object at key.
func (s *GCSStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(cleaned).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open %s: %w", cleaned, err)
	}
	return reader, nil
}

// Delete removes the object; a missing object is not an error.
func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	if err := s.client.Bucket(s.bucket).Object(cleaned).Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", cleaned, err)
	}
	return nil
}

// PresignGet returns a V4 signed GET URL valid for ttl.
func (s *GCSStorage) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	opts := &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	}
	if s.accessID != "" && len(s.privateKey) > 0 {
		opts.GoogleAccessID = s.accessID
		opts.PrivateKey = s.privateKey
	}
	url, err := s.client.Bucket(s.bucket).SignedURL(cleaned, opts)
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", cleaned, err)
	}
	return url, nil
}

// Close releases the underlying client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}
