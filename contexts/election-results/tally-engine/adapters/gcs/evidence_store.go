package gcsadapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// EvidenceStore checks that photo evidence references point at uploaded
// objects. It never downloads object content.
type EvidenceStore struct {
	client *storage.Client
	bucket string
}

func NewEvidenceStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*EvidenceStore, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("evidence bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &EvidenceStore{client: client, bucket: bucket}, nil
}

// Exists accepts either a bare object key or a gs://bucket/object URI.
func (s *EvidenceStore) Exists(ctx context.Context, ref string) (bool, error) {
	bucket, object, ok := s.resolve(ref)
	if !ok {
		return false, nil
	}
	_, err := s.client.Bucket(bucket).Object(object).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat evidence object %q: %w", object, err)
	}
	return true, nil
}

func (s *EvidenceStore) Close() error {
	return s.client.Close()
}

func (s *EvidenceStore) resolve(ref string) (string, string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", false
	}
	if rest, found := strings.CutPrefix(ref, "gs://"); found {
		bucket, object, ok := strings.Cut(rest, "/")
		if !ok || bucket != s.bucket || object == "" {
			return "", "", false
		}
		return bucket, object, true
	}
	return s.bucket, strings.TrimPrefix(ref, "/"), true
}
