package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		want        string
	}{
		{name: "png", contentType: "image/png", want: CategoryImages},
		{name: "jpeg with params", contentType: "image/jpeg; quality=85", want: CategoryImages},
		{name: "mp4", contentType: "video/mp4", want: CategoryVideos},
		{name: "mp3", contentType: "audio/mpeg", want: CategoryAudio},
		{name: "pdf", contentType: "application/pdf", want: CategoryDocuments},
		{name: "docx", contentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", want: CategoryDocuments},
		{name: "plain text with charset", contentType: "text/plain; charset=utf-8", want: CategoryDocuments},
		{name: "csv", contentType: "text/csv", want: CategoryDocuments},
		{name: "mixed case", contentType: "IMAGE/PNG", want: CategoryImages},
		{name: "zip", contentType: "application/zip", want: CategoryOthers},
		{name: "empty", contentType: "", want: CategoryOthers},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Category(tc.contentType))
		})
	}
}

func TestDeriveKey(t *testing.T) {
	t.Parallel()

	key, category := DeriveKey("alice", "vacation.png", "image/png")
	require.Equal(t, "owner/alice/images/vacation.png", key)
	require.Equal(t, CategoryImages, category)

	// Same owner and filename derive the same key; the second upload
	// overwrites the first.
	again, _ := DeriveKey("alice", "vacation.png", "image/png")
	require.Equal(t, key, again)
}

func TestKeyCategory(t *testing.T) {
	t.Parallel()

	require.Equal(t, CategoryImages, keyCategory("owner/alice/images/cat.png"))
	require.Equal(t, CategoryOthers, keyCategory("owner/alice/nonsense/cat.png"))
	require.Equal(t, CategoryOthers, keyCategory("legacy-key.bin"))
	require.Equal(t, CategoryDocuments, keyCategory("owner/alice/documents/nested/report.pdf"))
}

func TestKeyBasename(t *testing.T) {
	t.Parallel()

	require.Equal(t, "cat.png", keyBasename("owner/alice/images/cat.png"))
	require.Equal(t, "flat.bin", keyBasename("flat.bin"))
}
