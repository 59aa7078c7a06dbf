package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrUnavailable indicates the backend handle was never successfully
	// initialized or the backend is unreachable. Callers should fail fast
	// and not attempt dependent work.
	ErrUnavailable = errors.New("blob store unavailable")

	// ErrAccessDenied indicates the configured credentials were rejected.
	ErrAccessDenied = errors.New("blob store access denied")

	// ErrNotFound indicates no object exists under the requested key.
	ErrNotFound = errors.New("object not found")
)

// Store is the capability surface the gateway needs from an object-storage
// backend. All implementations must honor context cancellation on Put so an
// aborted upload does not keep streaming.
type Store interface {
	// Put stores the object payload under key. size must be the exact
	// payload length in bytes.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// PresignGet returns a time-limited URL from which the object under key
	// can be retrieved without credentials. filename sets the download
	// disposition seen by the client.
	PresignGet(ctx context.Context, key string, filename string, ttl time.Duration) (string, error)

	// Delete removes the object under key. Callers treat deletion as
	// best-effort and log rather than propagate failures.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backend is reachable and the target bucket exists.
	Ping(ctx context.Context) error
}
