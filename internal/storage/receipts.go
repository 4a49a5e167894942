package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	storage_go "github.com/supabase-community/storage-go"
)

// ErrDisabled is returned when no object store is configured.
var ErrDisabled = errors.New("receipt storage is not configured")

// ReceiptStore keeps payment receipts and hands out time-limited links.
type ReceiptStore interface {
	Upload(ctx context.Context, path, contentType string, data io.Reader) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// SupabaseReceipts stores receipts in a Supabase storage bucket.
type SupabaseReceipts struct {
	url    string
	key    string
	bucket string
	signer *storage_go.Client
}

func NewSupabaseReceipts(url, serviceKey, bucket string) *SupabaseReceipts {
	return &SupabaseReceipts{
		url:    url,
		key:    serviceKey,
		bucket: bucket,
		signer: storage_go.NewClient(url, serviceKey, nil),
	}
}

// Upload writes the object, replacing any previous receipt at path.
// The client keeps upload options as sticky headers, so each upload gets its
// own client.
func (s *SupabaseReceipts) Upload(ctx context.Context, path, contentType string, data io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	upsert := true
	client := storage_go.NewClient(s.url, s.key, nil)
	_, err := client.UploadFile(s.bucket, path, data, storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", s.bucket, path, err)
	}

	slog.Info("[STORAGE] receipt uploaded", "bucket", s.bucket, "path", path)
	return nil
}

func (s *SupabaseReceipts) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := s.signer.CreateSignedUrl(s.bucket, path, int(ttl.Seconds()))
	if err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", s.bucket, path, err)
	}
	return resp.SignedURL, nil
}

// DisabledReceipts rejects every call with ErrDisabled.
type DisabledReceipts struct{}

func (DisabledReceipts) Upload(context.Context, string, string, io.Reader) error {
	return ErrDisabled
}

func (DisabledReceipts) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", ErrDisabled
}
