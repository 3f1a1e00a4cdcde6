// Package materialize turns provider-produced artifact references into
// permanently hosted assets plus derived thumbnails.
package materialize

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"server/internal/infra"
	"server/internal/providers/video"
	"server/internal/storage"
)

// Result is the durable outcome of a materialization.
type Result struct {
	ArtifactURL  string
	ThumbnailURL string
	Metadata     map[string]any
}

// thumbnailOffsetSeconds is the fixed still-frame position for video thumbnails.
const thumbnailOffsetSeconds = 1

// Materializer downloads a provider artifact into a scoped temporary file,
// uploads it to durable storage under a namespaced key and derives a
// thumbnail for video artifacts. The temporary file is released on every exit
// path.
type Materializer struct {
	store      storage.Store
	httpClient *http.Client
	tempDir    string
	logger     infra.Logger
}

// Options configures a Materializer.
type Options struct {
	Store      storage.Store
	HTTPClient *http.Client
	TempDir    string
	Logger     infra.Logger
}

// New constructs a Materializer with sane defaults.
func New(opts Options) (*Materializer, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("materialize: store is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Materializer{
		store:      opts.Store,
		httpClient: httpClient,
		tempDir:    tempDir,
		logger:     opts.Logger,
	}, nil
}

// Materialize executes download, upload and thumbnail derivation for one job.
func (m *Materializer) Materialize(ctx context.Context, jobID string, artifact video.Artifact) (*Result, error) {
	ext := extensionForMIME(artifact.MimeType)

	tmp, err := os.CreateTemp(m.tempDir, "generation-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("materialize: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if removeErr := os.Remove(tmpPath); removeErr != nil && !os.IsNotExist(removeErr) {
			m.logger.Warn().Err(removeErr).Str("path", tmpPath).Msg("materialize: temp file cleanup failed")
		}
	}()

	size, err := m.download(ctx, artifact.URI, tmp)
	if err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("materialize: close temp file: %w", err)
	}

	key := fmt.Sprintf("generated/videos/%s/video%s", jobID, ext)
	uploaded, err := m.store.Upload(ctx, tmpPath, key, artifact.MimeType)
	if err != nil {
		return nil, fmt.Errorf("materialize: upload artifact: %w", err)
	}

	thumbnailURL := uploaded.URL
	if strings.HasPrefix(artifact.MimeType, "video/") {
		thumbnailURL = m.store.StillFrameURL(uploaded.Key, thumbnailOffsetSeconds)
	}

	m.logger.Info().
		Str("job_id", jobID).
		Str("key", uploaded.Key).
		Int64("bytes", uploaded.Bytes).
		Msg("materialize: artifact stored")

	return &Result{
		ArtifactURL:  uploaded.URL,
		ThumbnailURL: thumbnailURL,
		Metadata: map[string]any{
			"bytes":  size,
			"format": strings.TrimPrefix(ext, "."),
			"mime":   artifact.MimeType,
		},
	}, nil
}

func (m *Materializer) download(ctx context.Context, uri string, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return 0, fmt.Errorf("materialize: build download request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("materialize: download artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("materialize: download artifact: http %d", resp.StatusCode)
	}
	size, err := io.Copy(dst, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("materialize: write artifact: %w", err)
	}
	return size, nil
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "video/mp4", "":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	default:
		return ".bin"
	}
}
