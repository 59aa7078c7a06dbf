package share

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists grants in a local SQLite database. Grants live with the
// gateway rather than the registry because exhausting a download slot needs a
// conditional single-row update, which the registry's plain CRUD API cannot
// express.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the grant database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open grant db: %w", err)
	}

	// SQLite allows a single writer; serializing connections avoids
	// SQLITE_BUSY under concurrent Consume calls.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS grants (
			id TEXT PRIMARY KEY,
			access_id TEXT NOT NULL UNIQUE,
			file_id TEXT NOT NULL,
			owner TEXT NOT NULL,
			s3_key TEXT NOT NULL,
			filename TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			access_key_sum TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMP,
			max_downloads INTEGER,
			downloads INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_grants_file_id ON grants(file_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init grant schema: %w", err)
		}
	}
	return nil
}

// Create persists a new grant.
func (s *Store) Create(g *Grant) error {
	var expiresAt any
	if g.ExpiresAt != nil {
		expiresAt = g.ExpiresAt.UTC()
	}
	var maxDownloads any
	if g.MaxDownloads != nil {
		maxDownloads = *g.MaxDownloads
	}

	_, err := s.db.Exec(
		`INSERT INTO grants(id, access_id, file_id, owner, s3_key, filename, content_type, size,
			access_key_sum, password_hash, expires_at, max_downloads, downloads, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.AccessID, g.FileID, g.Owner, g.Key, g.Filename, g.ContentType, g.Size,
		g.accessKeySum, g.passwordHash, expiresAt, maxDownloads, g.Downloads, g.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}
	return nil
}

// GetByAccessID loads the grant published under accessID.
func (s *Store) GetByAccessID(accessID string) (*Grant, error) {
	g := &Grant{}
	var (
		expiresAt    sql.NullTime
		maxDownloads sql.NullInt64
	)

	err := s.db.QueryRow(
		`SELECT id, access_id, file_id, owner, s3_key, filename, content_type, size,
			access_key_sum, password_hash, expires_at, max_downloads, downloads, created_at
		 FROM grants WHERE access_id = ?`, accessID,
	).Scan(&g.ID, &g.AccessID, &g.FileID, &g.Owner, &g.Key, &g.Filename, &g.ContentType, &g.Size,
		&g.accessKeySum, &g.passwordHash, &expiresAt, &maxDownloads, &g.Downloads, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load grant: %w", err)
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		g.ExpiresAt = &t
	}
	if maxDownloads.Valid {
		m := int(maxDownloads.Int64)
		g.MaxDownloads = &m
	}
	return g, nil
}

// Consume claims one download slot on the grant. The increment is a single
// conditional UPDATE so two concurrent accesses can never both take the last
// slot. A zero-row result is diagnosed by re-reading the grant.
func (s *Store) Consume(accessID string, now time.Time) error {
	res, err := s.db.Exec(
		`UPDATE grants SET downloads = downloads + 1
		 WHERE access_id = ?
		   AND (max_downloads IS NULL OR downloads < max_downloads)
		   AND (expires_at IS NULL OR expires_at > ?)`,
		accessID, now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("consume grant: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume grant: %w", err)
	}
	if rows > 0 {
		return nil
	}

	g, err := s.GetByAccessID(accessID)
	if err != nil {
		return err
	}
	if g.expired(now) {
		return ErrExpired
	}
	return ErrExhausted
}
