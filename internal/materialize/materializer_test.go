package materialize

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"server/internal/providers/video"
	"server/internal/storage"
)

type stubStore struct {
	uploadErr error
	uploads   []string
	lastBytes int64
}

func (s *stubStore) Upload(ctx context.Context, localPath, key, contentType string) (*storage.UploadResult, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, err
	}
	s.uploads = append(s.uploads, key)
	s.lastBytes = int64(len(data))
	return &storage.UploadResult{
		Key:   key,
		URL:   "https://cdn.example.com/bucket/" + key,
		Bytes: int64(len(data)),
	}, nil
}

func (s *stubStore) Remove(ctx context.Context, objectURL string) error { return nil }

func (s *stubStore) StillFrameURL(key string, offsetSeconds int) string {
	return "https://media.example.com/" + key + "?frame=1"
}

func newMaterializer(t *testing.T, store storage.Store, tempDir string) *Materializer {
	t.Helper()
	m, err := New(Options{
		Store:   store,
		TempDir: tempDir,
		Logger:  zerolog.New(io.Discard),
	})
	require.NoError(t, err)
	return m
}

func tempFileCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := filepath.Glob(filepath.Join(dir, "generation-*"))
	require.NoError(t, err)
	return len(entries)
}

func TestMaterializeSuccessCleansTempFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fake mp4 bytes"))
	}))
	defer server.Close()

	tempDir := t.TempDir()
	store := &stubStore{}
	m := newMaterializer(t, store, tempDir)

	result, err := m.Materialize(context.Background(), "job-1", video.Artifact{
		URI:      server.URL + "/video",
		MimeType: "video/mp4",
	})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/bucket/generated/videos/job-1/video.mp4", result.ArtifactURL)
	require.Equal(t, "https://media.example.com/generated/videos/job-1/video.mp4?frame=1", result.ThumbnailURL)
	require.Equal(t, int64(len("fake mp4 bytes")), store.lastBytes)
	require.Equal(t, int64(len("fake mp4 bytes")), result.Metadata["bytes"])
	require.Equal(t, "mp4", result.Metadata["format"])

	require.Zero(t, tempFileCount(t, tempDir), "temp file must be removed on success")
}

func TestMaterializeDownloadFailureCleansTempFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tempDir := t.TempDir()
	m := newMaterializer(t, &stubStore{}, tempDir)

	_, err := m.Materialize(context.Background(), "job-2", video.Artifact{URI: server.URL + "/missing", MimeType: "video/mp4"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "http 404")

	require.Zero(t, tempFileCount(t, tempDir), "temp file must be removed on download failure")
}

func TestMaterializeUploadFailureCleansTempFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	tempDir := t.TempDir()
	store := &stubStore{uploadErr: errors.New("bucket unavailable")}
	m := newMaterializer(t, store, tempDir)

	_, err := m.Materialize(context.Background(), "job-3", video.Artifact{URI: server.URL, MimeType: "video/mp4"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bucket unavailable")

	require.Zero(t, tempFileCount(t, tempDir), "temp file must be removed on upload failure")
}

func TestMaterializeNonVideoSkipsStillFrame(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer server.Close()

	m := newMaterializer(t, &stubStore{}, t.TempDir())
	result, err := m.Materialize(context.Background(), "job-4", video.Artifact{URI: server.URL, MimeType: "image/png"})
	require.NoError(t, err)
	require.Equal(t, result.ArtifactURL, result.ThumbnailURL)
}
