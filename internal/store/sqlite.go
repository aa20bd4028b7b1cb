package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/promptparty/server-go/internal/model"
)

// SQLiteSnapshotter persists sessions as JSON rows in an embedded sqlite
// database. Same contract as the file backend, selected via STORE_BACKEND.
type SQLiteSnapshotter struct {
	db *sqlx.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	data       TEXT NOT NULL
)`

func NewSQLiteSnapshotter(path string) (*SQLiteSnapshotter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite snapshot: %w", err)
	}
	// modernc sqlite does not support concurrent writers on one handle.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &SQLiteSnapshotter{db: db}, nil
}

func (s *SQLiteSnapshotter) Close() error {
	return s.db.Close()
}

type sessionRow struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	Data      string    `db:"data"`
}

func (s *SQLiteSnapshotter) LoadAll(ctx context.Context) ([]model.Session, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, created_at, data FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}

	sessions := make([]model.Session, 0, len(rows))
	for _, row := range rows {
		var session model.Session
		if err := json.Unmarshal([]byte(row.Data), &session); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", row.ID, err)
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (s *SQLiteSnapshotter) SaveAll(ctx context.Context, sessions []model.Session) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}

	for i := range sessions {
		data, err := json.Marshal(&sessions[i])
		if err != nil {
			return fmt.Errorf("encode session %s: %w", sessions[i].ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sessions (id, created_at, data)
			VALUES ($1, $2, $3)
		`, sessions[i].ID, sessions[i].CreatedAt, string(data))
		if err != nil {
			return fmt.Errorf("insert session %s: %w", sessions[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
