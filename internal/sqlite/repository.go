// Package sqlite persists the session credential in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Mazart23/pet-book/internal/domain"
	_ "modernc.org/sqlite"
)

// Repository implements domain.CredentialRepository using SQLite. The file
// holds at most one credential.
type Repository struct {
	db *sql.DB
}

// NewRepository opens or creates the database at path, creating its directory
// with owner-only permissions. The caller should call Close when the
// repository is no longer needed.
func NewRepository(path string) (*Repository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if path != ":memory:" {
		// the token is a secret; keep the file private even if umask is lax
		if err := os.Chmod(path, 0o600); err != nil {
			db.Close()
			return nil, fmt.Errorf("restrict session file: %w", err)
		}
	}
	return r, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS credentials (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		token TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		expires_at INTEGER,
		saved_at INTEGER NOT NULL
	);`)
	return err
}

// LoadCredential returns the stored credential, or a zero Credential if none
// is stored.
func (r *Repository) LoadCredential(ctx context.Context) (domain.Credential, error) {
	var (
		cred      domain.Credential
		expiresAt sql.NullInt64
		savedAt   int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT token, subject, expires_at, saved_at FROM credentials WHERE id = 1`,
	).Scan(&cred.Token, &cred.Subject, &expiresAt, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Credential{}, nil
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("query credential: %w", err)
	}

	if expiresAt.Valid {
		cred.ExpiresAt = time.Unix(expiresAt.Int64, 0).UTC()
	}
	cred.SavedAt = time.Unix(savedAt, 0).UTC()
	return cred, nil
}

// SaveCredential upserts the single stored credential.
func (r *Repository) SaveCredential(ctx context.Context, cred domain.Credential) error {
	var expiresAt sql.NullInt64
	if !cred.ExpiresAt.IsZero() {
		expiresAt = sql.NullInt64{Int64: cred.ExpiresAt.Unix(), Valid: true}
	}
	savedAt := cred.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (id, token, subject, expires_at, saved_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			token = excluded.token,
			subject = excluded.subject,
			expires_at = excluded.expires_at,
			saved_at = excluded.saved_at`,
		cred.Token, cred.Subject, expiresAt, savedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// ClearCredential deletes the stored credential. Clearing an empty store is
// not an error.
func (r *Repository) ClearCredential(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
