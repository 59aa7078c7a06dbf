// Package share implements anonymous and protected file sharing. A Grant is
// a time-, usage-, and credential-bounded permission to retrieve one file
// without an account.
package share

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound      = errors.New("share not found")
	ErrExpired       = errors.New("share has expired")
	ErrExhausted     = errors.New("share download limit reached")
	ErrBadCredential = errors.New("share credential rejected")
)

// Grant is one share of one file. It snapshots the file attributes needed to
// serve an anonymous download, so access never requires the owner's
// registry credentials.
type Grant struct {
	ID       string
	AccessID string
	FileID   string
	Owner    string

	// Snapshot of the shared file, taken at grant creation.
	Key         string
	Filename    string
	ContentType string
	Size        int64

	// accessKeySum is the hex SHA-256 of the access key, empty when the
	// grant is unprotected. Hashing keeps the comparison constant-time and
	// the stored value non-recoverable.
	accessKeySum string
	// passwordHash is a bcrypt hash, empty when no password is required.
	passwordHash string

	ExpiresAt    *time.Time
	MaxDownloads *int
	Downloads    int
	CreatedAt    time.Time
}

// New creates a grant for the given file snapshot. expiresIn <= 0 means the
// grant never expires; maxDownloads <= 0 means unlimited downloads.
func New(fileID, owner, key, filename, contentType string, size int64, expiresIn time.Duration, maxDownloads int) *Grant {
	g := &Grant{
		ID:          uuid.New().String(),
		AccessID:    newAccessID(),
		FileID:      fileID,
		Owner:       owner,
		Key:         key,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}
	if expiresIn > 0 {
		exp := g.CreatedAt.Add(expiresIn)
		g.ExpiresAt = &exp
	}
	if maxDownloads > 0 {
		g.MaxDownloads = &maxDownloads
	}
	return g
}

// newAccessID returns a short URL-safe random token.
func newAccessID() string {
	var buf [9]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return hex.EncodeToString(buf[:])
}

// SetAccessKey requires the given key for future accesses.
func (g *Grant) SetAccessKey(key string) {
	sum := sha256.Sum256([]byte(key))
	g.accessKeySum = hex.EncodeToString(sum[:])
}

// SetPassword requires the given password for future accesses.
func (g *Grant) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash share password: %w", err)
	}
	g.passwordHash = string(hash)
	return nil
}

// Protected reports whether accessing the grant requires any credential.
func (g *Grant) Protected() bool {
	return g.accessKeySum != "" || g.passwordHash != ""
}

func (g *Grant) expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

func (g *Grant) exhausted() bool {
	return g.MaxDownloads != nil && g.Downloads >= *g.MaxDownloads
}

func (g *Grant) checkAccessKey(presented string) bool {
	if g.accessKeySum == "" {
		return true
	}
	sum := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(g.accessKeySum)) == 1
}

func (g *Grant) checkPassword(presented string) bool {
	if g.passwordHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(g.passwordHash), []byte(presented)) == nil
}

// Validate checks whether an access with the presented credentials is
// permitted at now. It is a pure function of grant state and must be
// re-evaluated on every access; expiry and the download count move under the
// caller's feet. A passing Validate still requires a successful Store.Consume
// before the download may proceed.
func (g *Grant) Validate(now time.Time, accessKey, password string) error {
	if g.expired(now) {
		return ErrExpired
	}
	if g.exhausted() {
		return ErrExhausted
	}
	if !g.checkAccessKey(accessKey) {
		return ErrBadCredential
	}
	if !g.checkPassword(password) {
		return ErrBadCredential
	}
	return nil
}
