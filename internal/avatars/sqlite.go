package avatars

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"avatarmail/internal/domain"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS avatars (
		name TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		age INTEGER NOT NULL DEFAULT 0,
		relationship TEXT NOT NULL DEFAULT '',
		personality TEXT NOT NULL DEFAULT '',
		speechStyle TEXT NOT NULL DEFAULT '',
		recordings TEXT NOT NULL DEFAULT '[]',
		createdAt INTEGER NOT NULL,
		updatedAt INTEGER NOT NULL
	);
`

// SQLiteStore persists avatars in a single SQLite table. Recordings are
// stored as a JSON array column since the list is always replaced wholesale.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the database at path. Use
// ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetAvatar(ctx context.Context, name string) (*domain.AvatarRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, id, age, relationship, personality, speechStyle, recordings, createdAt, updatedAt
		FROM avatars
		WHERE name = ?
	`, name)

	record, err := scanAvatar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *SQLiteStore) SaveAvatar(ctx context.Context, record *domain.AvatarRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	recordings, err := json.Marshal(nonNilRecordings(record.Recordings))
	if err != nil {
		return fmt.Errorf("encode recordings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO avatars (name, id, age, relationship, personality, speechStyle, recordings, createdAt, updatedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			id = excluded.id,
			age = excluded.age,
			relationship = excluded.relationship,
			personality = excluded.personality,
			speechStyle = excluded.speechStyle,
			recordings = excluded.recordings,
			createdAt = excluded.createdAt,
			updatedAt = excluded.updatedAt
	`, record.Name, record.ID, record.Age, record.Relationship, record.Personality, record.SpeechStyle,
		string(recordings), record.CreatedAt.UnixNano(), record.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save avatar: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteAvatar(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM avatars WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete avatar: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete avatar: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: avatar %s", domain.ErrNotFound, name)
	}
	return nil
}

func (s *SQLiteStore) ListAvatars(ctx context.Context) ([]domain.AvatarRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, id, age, relationship, personality, speechStyle, recordings, createdAt, updatedAt
		FROM avatars
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query avatars: %w", err)
	}
	defer rows.Close()

	out := []domain.AvatarRecord{}
	for rows.Next() {
		record, err := scanAvatar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAvatar(row rowScanner) (domain.AvatarRecord, error) {
	var record domain.AvatarRecord
	var recordings string
	var createdAt, updatedAt int64
	if err := row.Scan(&record.Name, &record.ID, &record.Age, &record.Relationship,
		&record.Personality, &record.SpeechStyle, &recordings, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record, err
		}
		return record, fmt.Errorf("scan avatar: %w", err)
	}
	if err := json.Unmarshal([]byte(recordings), &record.Recordings); err != nil {
		return record, fmt.Errorf("decode recordings for %s: %w", record.Name, err)
	}
	record.CreatedAt = time.Unix(0, createdAt).UTC()
	record.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return record, nil
}

func nonNilRecordings(recordings []domain.AudioSample) []domain.AudioSample {
	if recordings == nil {
		return []domain.AudioSample{}
	}
	return recordings
}
