//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/healthlens/healthlens/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("HEALTHLENS_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("HEALTHLENS_TEST_S3_ENDPOINT is not set")
	}

	cfg := Config{
		Endpoint:         endpoint,
		Region:           envOr("HEALTHLENS_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("HEALTHLENS_TEST_S3_BUCKET", "healthlens-it"),
		AccessKeyID:      envOr("HEALTHLENS_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("HEALTHLENS_TEST_S3_SECRET_KEY", "miniostorage"),
		UseSSL:           false,
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key, err := storage.BuildUploadArchivePath("it-session", "patients", "upload-1", "csv")
	if err != nil {
		t.Fatalf("BuildUploadArchivePath() error = %v", err)
	}

	body := "patient_id,age\np1,34\n"
	if _, err := store.Put(ctx, key, bytes.NewBufferString(body), int64(len(body)), storage.PutOptions{ContentType: "text/csv"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != body {
		t.Fatalf("round trip body = %q, want %q", got, body)
	}

	info, err := store.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size != int64(len(body)) {
		t.Fatalf("Stat() size = %d, want %d", info.Size, len(body))
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
