package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore is a Store backed by the local filesystem, used for development
// and tests where no S3-compatible backend is available. Objects are laid out
// under root mirroring their storage key path.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates a LocalStore rooted at root. baseURL, when set, is
// the public prefix used to build retrieval URLs; it defaults to file://root.
func NewLocalStore(root string, baseURL string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	if baseURL == "" {
		baseURL = "file://" + abs
	}
	return &LocalStore{root: abs, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// objectPath maps a storage key to a filesystem path, rejecting keys that
// would escape the storage root.
func (s *LocalStore) objectPath(key string) (string, error) {
	cleaned := path.Clean("/" + key)
	if cleaned == "/" {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	objPath, err := s.objectPath(key)
	if err != nil {
		return err
	}

	// A trailing slash marks a folder, not a payload.
	if strings.HasSuffix(key, "/") {
		return os.MkdirAll(objPath, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	f, err := os.Create(objPath)
	if err != nil {
		return fmt.Errorf("create object file: %w", err)
	}

	// Copy in chunks, checking for cancellation so an aborted upload does
	// not keep writing.
	_, err = io.Copy(f, &contextReader{ctx: ctx, r: io.LimitReader(r, size)})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(objPath)
		return fmt.Errorf("write object payload: %w", err)
	}
	return nil
}

func (s *LocalStore) PresignGet(ctx context.Context, key string, filename string, ttl time.Duration) (string, error) {
	objPath, err := s.objectPath(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(objPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("stat object: %w", err)
	}

	q := make(url.Values)
	q.Set("filename", filename)
	q.Set("expires", time.Now().Add(ttl).UTC().Format(time.RFC3339))
	return s.baseURL + "/" + pathEscapeKey(key) + "?" + q.Encode(), nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	objPath, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(objPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (s *LocalStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.root); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Exists reports whether an object is present under key.
func (s *LocalStore) Exists(key string) bool {
	objPath, err := s.objectPath(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(objPath)
	return err == nil
}

// pathEscapeKey escapes each key segment while preserving the separators.
func pathEscapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// contextReader fails the read once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
