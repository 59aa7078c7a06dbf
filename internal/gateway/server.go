// Package gateway is the core of drivegate: it coordinates the remote
// metadata registry and the object-storage backend so the two behave as one
// consistent file system, and exposes the HTTP API clients talk to.
package gateway

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"drivegate/internal/blob"
	"drivegate/internal/registry"
	"drivegate/internal/share"
)

var (
	// ErrRegistrationFailed means the blob was written but the registry
	// rejected the metadata. The compensating delete has already run (or
	// been attempted) by the time callers see this.
	ErrRegistrationFailed = errors.New("metadata registration failed")

	// ErrInconsistentState means a delete removed the blob but the registry
	// kept the metadata record. Operator follow-up is required.
	ErrInconsistentState = errors.New("inconsistent state: blob removed but metadata record remains")
)

// Config holds the collaborators and settings for a gateway Server.
type Config struct {
	// BaseURL is the public URL of this gateway, used to build share links.
	BaseURL string

	// Blob is the object-storage backend. May be nil when the backend was
	// not configured at startup; operations then fail fast with
	// blob.ErrUnavailable until a backend is installed via SetBlobStore.
	Blob blob.Store

	// Registry is the remote metadata service client.
	Registry *registry.Client

	// Grants persists share grants.
	Grants *share.Store

	// PresignTTL bounds how long download URLs stay valid.
	PresignTTL time.Duration

	// ShareTTL is the default share expiry when the caller does not set one.
	ShareTTL time.Duration
}

// Server coordinates uploads, listings, downloads, deletes, and shares.
type Server struct {
	cfg Config

	// mu guards the blob handle. Operations hold the read lock for their
	// whole blob interaction, so swapping the handle waits for a quiescent
	// point instead of racing in-flight requests.
	mu   sync.RWMutex
	blob blob.Store
}

// NewServer validates cfg and returns a Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry client must not be nil")
	}
	if cfg.Grants == nil {
		return nil, fmt.Errorf("grant store must not be nil")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if cfg.ShareTTL <= 0 {
		cfg.ShareTTL = 24 * time.Hour
	}
	return &Server{cfg: cfg, blob: cfg.Blob}, nil
}

// Close releases the server's resources.
func (s *Server) Close() error {
	return s.cfg.Grants.Close()
}

// withBlob runs fn with the current blob handle under the read lock. A nil
// handle fails fast so callers short-circuit before touching the registry.
func (s *Server) withBlob(fn func(blob.Store) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.blob == nil {
		return fmt.Errorf("%w: backend not configured", blob.ErrUnavailable)
	}
	return fn(s.blob)
}

// SetBlobStore swaps the blob backend. The write lock excludes in-flight
// blob operations, so the swap happens at a quiescent point.
func (s *Server) SetBlobStore(store blob.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob = store
}
