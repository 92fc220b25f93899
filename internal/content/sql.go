package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS content (
	type        TEXT    NOT NULL,
	id          TEXT    NOT NULL,
	position    INTEGER NOT NULL DEFAULT 0,
	title       TEXT    NOT NULL DEFAULT '',
	subtitle    TEXT    NOT NULL DEFAULT '',
	language    TEXT    NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	text        TEXT    NOT NULL DEFAULT '',
	primary_url TEXT    NOT NULL DEFAULT '',
	archive_url TEXT    NOT NULL DEFAULT '',
	mirror_url  TEXT    NOT NULL DEFAULT '',
	asset       TEXT    NOT NULL DEFAULT '',
	is_cached   INTEGER NOT NULL DEFAULT 0,
	cached_path TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (type, id)
);`

const columns = `type, id, title, subtitle, language, duration_ms, text,
	primary_url, archive_url, mirror_url, asset, is_cached, cached_path`

// SQLRepository serves records from a SQLite database.
type SQLRepository struct {
	db *sql.DB
}

// OpenSQL opens the database at path, creating the schema if needed.
func OpenSQL(path string) (*SQLRepository, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating content schema: %w", err)
	}
	return &SQLRepository{db: db}, nil
}

// Get implements Repository.
func (r *SQLRepository) Get(ctx context.Context, typ, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM content WHERE type = ? AND id = ?`, typ, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, typ, id)
	}
	return rec, err
}

// List implements Repository.
func (r *SQLRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM content ORDER BY position, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Import replaces or inserts records, keeping their order.
func (r *SQLRepository) Import(ctx context.Context, records []Record) error {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO content (position, `+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close() //nolint:errcheck

	for i, rec := range records {
		_, err := stmt.ExecContext(ctx, i,
			rec.Type, rec.ID, rec.Title, rec.Subtitle, rec.Language, rec.Duration.Milliseconds(), rec.Text,
			rec.Audio.Primary, rec.Audio.Archive, rec.Audio.Mirror, rec.Audio.Asset, rec.Audio.Cached, rec.Audio.CachedPath)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("importing %s: %w", rec.Ref(), err)
		}
	}
	return tx.Commit()
}

// Close implements Repository.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec        Record
		durationMs int64
	)
	err := s.Scan(&rec.Type, &rec.ID, &rec.Title, &rec.Subtitle, &rec.Language, &durationMs, &rec.Text,
		&rec.Audio.Primary, &rec.Audio.Archive, &rec.Audio.Mirror, &rec.Audio.Asset, &rec.Audio.Cached, &rec.Audio.CachedPath)
	if err != nil {
		return Record{}, err
	}
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	return rec, nil
}
