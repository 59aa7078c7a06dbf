package gateway

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"drivegate/internal/auth"
	"drivegate/internal/blob"
)

func TestUploadSuccess(t *testing.T) {
	t.Parallel()

	store := newFakeBlob()
	reg := newFakeRegistry(t)
	srv := newTestServer(t, store, reg)

	ident := auth.Identity{Username: "alice"}
	payload := "cat picture bytes"

	result, err := srv.Upload(context.Background(), "tok", ident, "cat.png", strings.NewReader(payload), int64(len(payload)), "image/png")
	require.NoError(t, err)

	require.Equal(t, "rec-1", result.ID)
	require.Equal(t, "cat.png", result.Filename)
	require.EqualValues(t, len(payload), result.Size)
	require.Equal(t, "image/png", result.ContentType)
	require.Equal(t, CategoryImages, result.Category)
	require.Equal(t, "owner/alice/images/cat.png", result.Location)

	require.True(t, store.has("owner/alice/images/cat.png"), "blob must be present after upload")

	rec := reg.records["rec-1"]
	require.Equal(t, "owner/alice/images/cat.png", rec.S3Key)
	require.EqualValues(t, len(payload), rec.Size)
	require.Equal(t, "image/png", rec.ContentType)
	require.NotEmpty(t, rec.CreatedAt, "record must carry a creation timestamp")
}

func TestUploadRegistrationFailureCompensates(t *testing.T) {
	t.Parallel()

	store := newFakeBlob()
	reg := newFakeRegistry(t)
	reg.setFailCreate(true)
	srv := newTestServer(t, store, reg)

	_, err := srv.Upload(context.Background(), "tok", auth.Identity{Username: "alice"}, "cat.png", strings.NewReader("data"), 4, "image/png")
	require.ErrorIs(t, err, ErrRegistrationFailed)

	require.False(t, store.has("owner/alice/images/cat.png"),
		"compensating delete must remove the blob when registration fails")
}

func TestUploadBlobFailureSkipsRegistry(t *testing.T) {
	t.Parallel()

	store := newFakeBlob()
	store.putErr = blob.ErrUnavailable
	reg := newFakeRegistry(t)
	srv := newTestServer(t, store, reg)

	_, err := srv.Upload(context.Background(), "tok", auth.Identity{Username: "alice"}, "cat.png", strings.NewReader("data"), 4, "image/png")
	require.ErrorIs(t, err, blob.ErrUnavailable)
	require.Zero(t, reg.calls(), "no registry call may happen after a blob failure")
}

func TestUploadWithoutBackendFailsFast(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry(t)
	srv := newTestServer(t, nil, reg)

	_, err := srv.Upload(context.Background(), "tok", auth.Identity{Username: "alice"}, "cat.png", strings.NewReader("data"), 4, "image/png")
	require.ErrorIs(t, err, blob.ErrUnavailable)
	require.Zero(t, reg.calls(), "an unconfigured backend must short-circuit before the registry")
}

func TestUploadSameFilenameOverwrites(t *testing.T) {
	t.Parallel()

	store := newFakeBlob()
	reg := newFakeRegistry(t)
	srv := newTestServer(t, store, reg)

	ident := auth.Identity{Username: "alice"}

	first, err := srv.Upload(context.Background(), "tok", ident, "notes.txt", strings.NewReader("v1"), 2, "text/plain")
	require.NoError(t, err)
	second, err := srv.Upload(context.Background(), "tok", ident, "notes.txt", strings.NewReader("v2"), 2, "text/plain")
	require.NoError(t, err)

	require.Equal(t, first.Location, second.Location, "same owner and filename derive the same key")
	require.Equal(t, "v2", string(store.objects[first.Location]), "last write wins on the shared key")
	require.Len(t, reg.records, 2, "each upload registers its own record; the duplicate is a known inconsistency")
}
