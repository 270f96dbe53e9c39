package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jwebster45206/enlisted/pkg/session"
	"github.com/jwebster45206/enlisted/pkg/storage"
)

// SQLiteStorage keeps sessions in a local SQLite file, for single-player
// setups that do not run Redis. Policies come from the filesystem.
type SQLiteStorage struct {
	policyFiles
	conn   *sqlx.DB
	logger *slog.Logger
}

var _ storage.Storage = (*SQLiteStorage)(nil)

type sessionRow struct {
	ID        string    `db:"id"`
	Data      string    `db:"data"`
	Status    string    `db:"status"`
	UpdatedAt time.Time `db:"updated_at"`
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string, dataDir string, logger *slog.Logger) (*SQLiteStorage, error) {
	if dataDir == "" {
		dataDir = "./data"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows one writer at a time.
	conn.SetMaxOpenConns(1)

	s := &SQLiteStorage{
		policyFiles: policyFiles{dataDir: dataDir, logger: logger},
		conn:        conn,
		logger:      logger,
	}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	if err := s.conn.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", "error", err)
		return err
	}
	s.logger.Info("SQLite database closed")
	return nil
}

func (s *SQLiteStorage) SaveSession(ctx context.Context, rec *session.Record) error {
	if rec == nil {
		return errors.New("session cannot be nil")
	}
	rec.UpdatedAt = time.Now()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	row := sessionRow{
		ID:        rec.ID.String(),
		Data:      string(data),
		Status:    string(rec.State.Status),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
	_, err = s.conn.NamedExecContext(ctx, `INSERT INTO sessions (id, data, status, updated_at)
		VALUES (:id, :data, :status, :updated_at)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, status = excluded.status, updated_at = excluded.updated_at`, row)
	if err != nil {
		s.logger.Error("Failed to save session", "uuid", rec.ID, "error", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) LoadSession(ctx context.Context, id uuid.UUID) (*session.Record, error) {
	var row sessionRow
	err := s.conn.GetContext(ctx, &row, `SELECT id, data, status, updated_at FROM sessions WHERE id = ?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Session not found", "uuid", id)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal([]byte(row.Data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CountByStatus reports how many stored sessions hold each status.
func (s *SQLiteStorage) CountByStatus(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.conn.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM sessions GROUP BY status`); err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}
