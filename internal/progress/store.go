// Package progress persists reading positions, bookmarks, and the recent
// shelf in an embedded SQLite database. Writes go through a debouncing
// writer so that page flips never block on disk.
package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	applog "github.com/tatami-reader/tatami/internal/log"
	"github.com/tatami-reader/tatami/pkg/models"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// DataFileName is the database file under the state directory.
	DataFileName = "tatami.sqlite"

	// schemaVersion tracks the embedded schema. Bump on breaking changes
	// and add a migration step.
	schemaVersion = 1
)

// ErrStaleWrite is returned when a position save carries a stamp at or
// below the one already stored. The losing write is simply dropped; the
// newer record stays.
var ErrStaleWrite = errors.New("progress: stale position write")

// Store is the persistence layer. It is safe for use from the writer
// goroutine and the UI goroutine at once; SQLite serializes underneath.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// DefaultPath places the database under the user config directory.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "tatami", DataFileName), nil
}

// Open opens (creating if needed) the database at path, enables WAL mode,
// and brings the schema up to date.
func Open(path string) (*Store, error) {
	l := applog.WithOperation(applog.WithComponent("progress"), "open").With(
		slog.String("path", path),
	)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	l.Debug("store ready")
	return &Store{db: db, log: applog.WithComponent("progress")}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS books (
			book_id   TEXT PRIMARY KEY,
			path      TEXT NOT NULL,
			title     TEXT NOT NULL,
			author    TEXT,
			opened_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS positions (
			book_id    TEXT PRIMARY KEY REFERENCES books(book_id),
			chapter    INTEGER NOT NULL,
			page       INTEGER NOT NULL,
			sentence   TEXT NOT NULL,
			byte_off   INTEGER NOT NULL,
			progress   REAL NOT NULL,
			stamp      INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS bookmarks (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			book_id    TEXT NOT NULL REFERENCES books(book_id),
			chapter    INTEGER NOT NULL,
			page       INTEGER NOT NULL,
			sentence   TEXT NOT NULL,
			label      TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bookmarks_book ON bookmarks(book_id);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	var cur int
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='schema'`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('schema', ?)`, schemaVersion); err != nil {
			return fmt.Errorf("seed schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}
	// schemaVersion 1 has no migrations yet.
	return nil
}

// RememberBook upserts the book's identity row and refreshes opened_at,
// which is what orders the recent shelf.
func (s *Store) RememberBook(ctx context.Context, b models.Book) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (book_id, path, title, author, opened_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(book_id) DO UPDATE SET
			path=excluded.path, title=excluded.title,
			author=excluded.author, opened_at=excluded.opened_at`,
		b.ID, b.Path, b.Title, b.Author, now)
	if err != nil {
		return fmt.Errorf("remember book: %w", err)
	}
	return nil
}

// SavePosition stores pos unless a record with an equal or newer stamp is
// already present, in which case it returns ErrStaleWrite. Stamps come from
// a per-book monotonic counter so a slow flush can never clobber a fresher
// position.
func (s *Store) SavePosition(ctx context.Context, pos models.ReadingPosition, stamp int64) error {
	updated := pos.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (book_id, chapter, page, sentence, byte_off, progress, stamp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(book_id) DO UPDATE SET
			chapter=excluded.chapter, page=excluded.page,
			sentence=excluded.sentence, byte_off=excluded.byte_off,
			progress=excluded.progress, stamp=excluded.stamp,
			updated_at=excluded.updated_at
		WHERE excluded.stamp > positions.stamp`,
		pos.BookID, pos.ChapterIndex, pos.PageIndex, pos.SentenceText,
		pos.ByteOffset, pos.Progress, stamp, updated.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	if n == 0 {
		return ErrStaleWrite
	}
	return nil
}

// LoadPosition returns the stored position for the book, if any.
func (s *Store) LoadPosition(ctx context.Context, bookID string) (models.ReadingPosition, bool, error) {
	var pos models.ReadingPosition
	var updated string
	err := s.db.QueryRowContext(ctx, `
		SELECT book_id, chapter, page, sentence, byte_off, progress, updated_at
		FROM positions WHERE book_id=?`, bookID).Scan(
		&pos.BookID, &pos.ChapterIndex, &pos.PageIndex, &pos.SentenceText,
		&pos.ByteOffset, &pos.Progress, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReadingPosition{}, false, nil
	}
	if err != nil {
		return models.ReadingPosition{}, false, fmt.Errorf("load position: %w", err)
	}
	if t, perr := time.Parse(time.RFC3339Nano, updated); perr == nil {
		pos.UpdatedAt = t
	}
	return pos, true, nil
}

// AddBookmark stores a named bookmark and returns its id.
func (s *Store) AddBookmark(ctx context.Context, bm models.Bookmark) (int64, error) {
	created := bm.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (book_id, chapter, page, sentence, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		bm.BookID, bm.ChapterIndex, bm.PageIndex, bm.SentenceText, bm.Label,
		created.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("add bookmark: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add bookmark: %w", err)
	}
	return id, nil
}

// Bookmarks lists the book's bookmarks, newest first.
func (s *Store) Bookmarks(ctx context.Context, bookID string) ([]models.Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_id, chapter, page, sentence, label, created_at
		FROM bookmarks WHERE book_id=? ORDER BY created_at DESC, id DESC`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	var out []models.Bookmark
	for rows.Next() {
		var bm models.Bookmark
		var created string
		if err := rows.Scan(&bm.ID, &bm.BookID, &bm.ChapterIndex, &bm.PageIndex,
			&bm.SentenceText, &bm.Label, &created); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
			bm.CreatedAt = t
		}
		out = append(out, bm)
	}
	return out, rows.Err()
}

// DeleteBookmark removes a bookmark by id.
func (s *Store) DeleteBookmark(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	return nil
}

// Recent lists the recently opened books, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.RecentBook, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.book_id, b.path, b.title, COALESCE(p.progress, 0), b.opened_at
		FROM books b LEFT JOIN positions p ON p.book_id = b.book_id
		ORDER BY b.opened_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()

	var out []models.RecentBook
	for rows.Next() {
		var rb models.RecentBook
		var opened string
		if err := rows.Scan(&rb.BookID, &rb.Path, &rb.Title, &rb.Progress, &opened); err != nil {
			return nil, fmt.Errorf("scan recent: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339Nano, opened); perr == nil {
			rb.OpenedAt = t
		}
		out = append(out, rb)
	}
	return out, rows.Err()
}

// Reset drops the book's stored position, for reopening from the start.
func (s *Store) Reset(ctx context.Context, bookID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE book_id=?`, bookID); err != nil {
		return fmt.Errorf("reset position: %w", err)
	}
	return nil
}
