package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"drivegate/internal/auth"
	"drivegate/internal/blob"
	"drivegate/internal/registry"
)

// UploadResult describes a successfully stored file.
type UploadResult struct {
	ID          string
	Filename    string
	Size        int64
	ContentType string
	Location    string
	Category    string
}

// Upload writes the payload to the blob store and registers its metadata
// with the registry, in that order. A blob failure aborts before any
// registry call. A registration failure triggers a compensating delete of
// the just-written blob; the delete is best-effort and its own failure is
// logged loudly but not surfaced.
//
// Re-invoking with identical arguments overwrites the same key and creates a
// second registry record pointing at one blob. This inconsistency window is
// accepted; there is no versioning and no idempotence.
func (s *Server) Upload(ctx context.Context, token string, ident auth.Identity, filename string, body io.Reader, size int64, contentType string) (*UploadResult, error) {
	key, category := DeriveKey(ident.Owner(), filename, contentType)

	// The put uses the request context so a client disconnect aborts the
	// transfer.
	err := s.withBlob(func(store blob.Store) error {
		return store.Put(ctx, key, body, size, contentType)
	})
	if err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	rec := registry.Record{
		Username:    ident.Owner(),
		S3Key:       key,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		URL:         key,
	}

	id, err := s.cfg.Registry.CreateFile(ctx, token, rec)
	if err != nil {
		s.compensate(ctx, key, err)
		return nil, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	return &UploadResult{
		ID:          id,
		Filename:    filename,
		Size:        size,
		ContentType: contentType,
		Location:    key,
		Category:    category,
	}, nil
}

// compensate removes the blob written by a failed upload. It runs detached
// from the request context so a client disconnect cannot also cancel the
// rollback.
func (s *Server) compensate(ctx context.Context, key string, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	err := s.withBlob(func(store blob.Store) error {
		return store.Delete(cctx, key)
	})
	if err != nil {
		// The one case needing operator follow-up: the registry rejected the
		// metadata and the rollback failed, so an orphan blob remains.
		slog.Error("compensating delete failed, orphan blob remains",
			"key", key, "registration_error", cause, "delete_error", err)
		return
	}
	slog.Info("compensating delete removed orphan blob", "key", key, "registration_error", cause)
}
