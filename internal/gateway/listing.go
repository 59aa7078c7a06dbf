package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"drivegate/internal/auth"
	"drivegate/internal/blob"
	"drivegate/internal/share"
)

// FileSummary is one listed file. CreatedAt keeps the registry's raw
// millisecond-string timestamp; UploadedAt is its displayable form when the
// raw value parses, otherwise the raw value verbatim.
type FileSummary struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Category    string `json:"category"`
	Key         string `json:"key"`
	CreatedAt   string `json:"created_at"`
	UploadedAt  string `json:"uploaded_at"`
}

// ListFiles returns the identity's files, newest first, optionally filtered
// by category. Malformed registry records are skipped, never fatal.
func (s *Server) ListFiles(ctx context.Context, token string, ident auth.Identity, category string) ([]FileSummary, error) {
	records, err := s.cfg.Registry.ListFiles(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	prefix := ownerPrefix(ident.Owner())
	summaries := make([]FileSummary, 0, len(records))
	for _, rec := range records {
		if rec.S3Key == "" {
			slog.Debug("skipping record without storage key", "id", rec.ID)
			continue
		}
		if !strings.HasPrefix(rec.S3Key, prefix) {
			continue
		}

		cat := keyCategory(rec.S3Key)
		if category != "" && cat != category {
			continue
		}

		name := rec.Filename
		if name == "" {
			name = keyBasename(rec.S3Key)
		}

		summaries = append(summaries, FileSummary{
			ID:          rec.ID,
			Filename:    name,
			Size:        rec.Size,
			ContentType: rec.ContentType,
			Category:    cat,
			Key:         rec.S3Key,
			CreatedAt:   rec.CreatedAt,
			UploadedAt:  displayTimestamp(rec.CreatedAt),
		})
	}

	// Newest first, by lexical comparison of the raw timestamp strings.
	// This is only correct because the registry stores fixed-width
	// millisecond strings; it is an implementation constraint of the
	// registry's data, not a coincidence.
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt > summaries[j].CreatedAt
	})

	return summaries, nil
}

// displayTimestamp renders a millisecond-string timestamp for display,
// returning the raw string when it does not parse.
func displayTimestamp(raw string) string {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return raw
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// DownloadInfo carries everything a client needs to fetch a file.
type DownloadInfo struct {
	URL         string
	Filename    string
	ContentType string
	Size        int64
}

// Download resolves a file id to a time-limited retrieval URL.
func (s *Server) Download(ctx context.Context, token string, id string) (*DownloadInfo, error) {
	rec, err := s.cfg.Registry.GetFile(ctx, token, id)
	if err != nil {
		return nil, fmt.Errorf("resolve record: %w", err)
	}

	filename := rec.Filename
	if filename == "" {
		filename = keyBasename(rec.S3Key)
	}

	var url string
	err = s.withBlob(func(store blob.Store) error {
		var perr error
		url, perr = store.PresignGet(ctx, rec.S3Key, filename, s.cfg.PresignTTL)
		return perr
	})
	if err != nil {
		return nil, fmt.Errorf("presign download: %w", err)
	}

	return &DownloadInfo{
		URL:         url,
		Filename:    filename,
		ContentType: rec.ContentType,
		Size:        rec.Size,
	}, nil
}

// DeleteFile removes the blob first, then the metadata record, so a failure
// can never leave a record pointing at a missing blob for longer than the
// delete itself. Blob deletion is best-effort: a missing blob or an
// unreachable backend is logged and the metadata delete still runs. A
// metadata delete failure after the blob is gone is the inconsistent case
// surfaced to the caller.
func (s *Server) DeleteFile(ctx context.Context, token string, id string) error {
	rec, err := s.cfg.Registry.GetFile(ctx, token, id)
	if err != nil {
		return fmt.Errorf("resolve record: %w", err)
	}

	err = s.withBlob(func(store blob.Store) error {
		return store.Delete(ctx, rec.S3Key)
	})
	if err != nil {
		slog.Warn("blob delete failed, removing metadata anyway", "key", rec.S3Key, "err", err)
	}

	if err := s.cfg.Registry.DeleteFile(ctx, token, id); err != nil {
		return fmt.Errorf("%w: %v", ErrInconsistentState, err)
	}
	return nil
}

// ShareAccess validates the presented credentials against the grant under
// accessID, claims one download slot, and returns the file summary plus a
// fresh retrieval URL. Validation runs fresh on every access; nothing about
// a grant's state is cacheable.
func (s *Server) ShareAccess(ctx context.Context, accessID, accessKey, password string) (*share.Grant, *DownloadInfo, error) {
	g, err := s.cfg.Grants.GetByAccessID(accessID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	if err := g.Validate(now, accessKey, password); err != nil {
		return nil, nil, err
	}

	// Claim a slot before presigning. The conditional update re-checks
	// expiry and the count, so two racing accesses cannot both take the
	// last slot even though both passed Validate.
	if err := s.cfg.Grants.Consume(accessID, now); err != nil {
		return nil, nil, err
	}

	var url string
	err = s.withBlob(func(store blob.Store) error {
		var perr error
		url, perr = store.PresignGet(ctx, g.Key, g.Filename, s.cfg.PresignTTL)
		return perr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("presign shared download: %w", err)
	}

	return g, &DownloadInfo{
		URL:         url,
		Filename:    g.Filename,
		ContentType: g.ContentType,
		Size:        g.Size,
	}, nil
}
