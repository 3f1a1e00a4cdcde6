// Package storage provides durable object storage for generated artifacts:
// upload, deletion, public URL issuance and still-frame transform URLs for
// video thumbnails.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// UploadResult describes a durably stored object.
type UploadResult struct {
	Key   string
	URL   string
	Bytes int64
}

// Store is the durable storage contract consumed by the materializer and the
// delete path of the status API.
type Store interface {
	// Upload persists the local file under key and returns its permanent URL.
	Upload(ctx context.Context, localPath, key, contentType string) (*UploadResult, error)
	// Remove deletes the object referenced by a previously issued URL. URLs
	// outside this store's namespace are ignored.
	Remove(ctx context.Context, objectURL string) error
	// StillFrameURL returns a transform URL serving a single video frame at
	// the given offset, suitable as a thumbnail.
	StillFrameURL(key string, offsetSeconds int) string
}

// Thumbnail transform dimensions, fixed across providers.
const (
	thumbnailWidth  = 640
	thumbnailHeight = 360
)

// sanitizeKey normalizes a key and prevents escaping the storage namespace.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

// joinURL appends a key to a base URL.
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

// keyFromURL recovers the object key from an issued URL, reporting false for
// URLs outside the base namespace.
func keyFromURL(base, objectURL string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(objectURL, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(objectURL, prefix)
	if key == "" {
		return "", false
	}
	return key, true
}

// stillFrameURL composes the media endpoint's single-frame transform URL.
func stillFrameURL(mediaBase, key string, offsetSeconds int) string {
	return fmt.Sprintf("%s?format=jpg&width=%d&height=%d&start_offset=%d",
		joinURL(mediaBase, key), thumbnailWidth, thumbnailHeight, offsetSeconds)
}
