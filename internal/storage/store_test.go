package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeKey(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "generated/videos/abc/video.mp4", want: "generated/videos/abc/video.mp4"},
		{in: "/leading/slash.mp4", want: "leading/slash.mp4"},
		{in: "./dotted/key.mp4", want: "dotted/key.mp4"},
		{in: "windows\\style\\key.mp4", want: "windows/style/key.mp4"},
		{in: "a/../../escape.mp4", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := sanitizeKey(tc.in)
		if tc.wantErr {
			require.Error(t, err, "key %q", tc.in)
			continue
		}
		require.NoError(t, err, "key %q", tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestKeyFromURL(t *testing.T) {
	key, ok := keyFromURL("https://cdn.example.com/bucket", "https://cdn.example.com/bucket/generated/videos/j1/video.mp4")
	require.True(t, ok)
	require.Equal(t, "generated/videos/j1/video.mp4", key)

	_, ok = keyFromURL("https://cdn.example.com/bucket", "https://other.example.com/foreign.mp4")
	require.False(t, ok)

	_, ok = keyFromURL("https://cdn.example.com/bucket", "https://cdn.example.com/bucket/")
	require.False(t, ok)
}

func TestStillFrameURL(t *testing.T) {
	url := stillFrameURL("https://media.example.com", "generated/videos/j1/video.mp4", 1)
	require.Equal(t, "https://media.example.com/generated/videos/j1/video.mp4?format=jpg&width=640&height=360&start_offset=1", url)
}
