package core

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/3cpo-dev/gluerun/pkg/api"
)

// fixed width so started_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed run history. It implements Recorder.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

func NewStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) RunStarted(ctx context.Context, rec api.RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, name, remote_run_id, state, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Kind), rec.Name, rec.RemoteRunID, rec.State, rec.StartedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) RunPolled(ctx context.Context, id, state string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET state = ?, polls = polls + 1 WHERE id = ?`, state, id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (s *Store) RunFinished(ctx context.Context, id string, outcome api.Outcome, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET outcome = ?, message = ?, finished_at = ? WHERE id = ?`,
		string(outcome), message, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: %s not found", id)
	}
	return nil
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Kind  api.Kind
	Name  string
	Limit int
}

// ListRuns returns matching runs, newest first.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]api.RunRecord, error) {
	var where []string
	var args []any
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Name != "" {
		where = append(where, "name = ?")
		args = append(args, f.Name)
	}
	q := `SELECT id, kind, name, remote_run_id, state, polls, outcome, message, started_at, finished_at FROM runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []api.RunRecord
	for rows.Next() {
		var (
			rec      api.RunRecord
			kind     string
			outcome  string
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&rec.ID, &kind, &rec.Name, &rec.RemoteRunID, &rec.State, &rec.Polls, &outcome, &rec.Message, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Kind = api.Kind(kind)
		rec.Outcome = api.Outcome(outcome)
		if rec.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if finished.Valid {
			t, err := time.Parse(timeLayout, finished.String)
			if err != nil {
				return nil, fmt.Errorf("parse finished_at: %w", err)
			}
			rec.FinishedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
