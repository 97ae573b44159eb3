package services

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PhotoFile is one delivery-proof photo received from a store.
type PhotoFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// PhotoUploader stores a photo and returns the URL to record on the order.
type PhotoUploader interface {
	Upload(ctx context.Context, orderID uuid.UUID, file PhotoFile) (string, error)
}

func objectName(orderID uuid.UUID, file PhotoFile) string {
	ext := strings.ToLower(filepath.Ext(file.Name))
	if ext == "" {
		ext = ".jpg"
	}
	return path.Join("completions", orderID.String(), uuid.NewString()+ext)
}

// LocalPhotoUploader writes photos below a directory served as static files.
type LocalPhotoUploader struct {
	dir     string
	baseURL string
}

func NewLocalPhotoUploader(dir, baseURL string) *LocalPhotoUploader {
	return &LocalPhotoUploader{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (u *LocalPhotoUploader) Upload(ctx context.Context, orderID uuid.UUID, file PhotoFile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := objectName(orderID, file)
	target := filepath.Join(u.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, file.Data, 0o644); err != nil {
		return "", err
	}
	return u.baseURL + "/" + name, nil
}

// GCSPhotoUploader stores photos in a Cloud Storage bucket.
type GCSPhotoUploader struct {
	client *storage.Client
	bucket string
}

func NewGCSPhotoUploader(client *storage.Client, bucket string) *GCSPhotoUploader {
	return &GCSPhotoUploader{client: client, bucket: bucket}
}

func (u *GCSPhotoUploader) Upload(ctx context.Context, orderID uuid.UUID, file PhotoFile) (string, error) {
	name := objectName(orderID, file)
	w := u.client.Bucket(u.bucket).Object(name).NewWriter(ctx)
	w.ContentType = file.ContentType
	if _, err := w.Write(file.Data); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, name), nil
}

// uploadWithRetry tries each photo up to attempts times with a linear backoff.
func uploadWithRetry(ctx context.Context, uploader PhotoUploader, orderID uuid.UUID, files []PhotoFile, attempts int, logger *zap.Logger) ([]string, error) {
	if attempts <= 0 {
		attempts = 1
	}
	urls := make([]string, 0, len(files))
	for _, file := range files {
		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			url, err := uploader.Upload(ctx, orderID, file)
			if err == nil {
				urls = append(urls, url)
				lastErr = nil
				break
			}
			lastErr = err
			logger.Warn("photo upload failed",
				zap.String("order_id", orderID.String()),
				zap.String("file", file.Name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if attempt == attempts {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrPhotoUploadFailed, file.Name, lastErr)
		}
	}
	return urls, nil
}
