// Package store persists check results to PostgreSQL.
//
// Storage is optional: the checker works without it, and callers holding a
// nil *Store get ErrStorageDisabled from every method.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fortio.org/safecast"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/sanitycheck/internal/config"
	"github.com/JonMunkholm/sanitycheck/internal/core"
	"github.com/JonMunkholm/sanitycheck/internal/logging"
)

var (
	// ErrStorageDisabled is returned when no database is configured.
	ErrStorageDisabled = errors.New("storage disabled")

	// ErrRunNotFound is returned when a run ID is unknown.
	ErrRunNotFound = errors.New("run not found")
)

// DefaultMessageLimit bounds the messages GetRun returns.
const DefaultMessageLimit = 1000

// DBTX is the subset of pgx shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store reads and writes check runs.
type Store struct {
	db DBTX
}

// New returns a Store using db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// Open connects a pool using cfg and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if !cfg.Enabled() {
		return nil, ErrStorageDisabled
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if poolConfig.MaxConns, err = safecast.Conv[int32](cfg.MaxConns); err != nil {
		return nil, fmt.Errorf("DB_MAX_CONNS: %w", err)
	}
	if poolConfig.MinConns, err = safecast.Conv[int32](cfg.MinConns); err != nil {
		return nil, fmt.Errorf("DB_MIN_CONNS: %w", err)
	}
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil {
		return ErrStorageDisabled
	}
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RunInfo describes where a result came from.
type RunInfo struct {
	Dataset  string
	Origin   string // "cli" or "api"
	Metadata core.Metadata
}

// SaveResult persists a run with its records and messages in one
// transaction.
func (s *Store) SaveResult(ctx context.Context, res *core.Result, info RunInfo) error {
	if s == nil {
		return ErrStorageDisabled
	}

	run, err := runRow(res, info)
	if err != nil {
		return err
	}
	records, err := recordRows(res)
	if err != nil {
		return err
	}
	messages, err := messageRows(res)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertRunSQL, run...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if len(records) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"sanity_records"}, recordColumns, pgx.CopyFromRows(records)); err != nil {
			return fmt.Errorf("copy records: %w", err)
		}
	}
	if len(messages) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"sanity_messages"}, messageColumns, pgx.CopyFromRows(messages)); err != nil {
			return fmt.Errorf("copy messages: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	logging.WithFields(ctx, "run_id", res.RunID.String()).Debug("run stored",
		"records", len(records), "messages", len(messages))
	return nil
}

// Run is a stored run summary.
type Run struct {
	RunID      uuid.UUID       `json:"run_id"`
	Dataset    string          `json:"dataset"`
	Origin     string          `json:"origin"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Code       string          `json:"code"`
	Verdict    core.Verdict    `json:"verdict"`
	Stats      core.Stats      `json:"stats"`
	Metadata   core.Metadata   `json:"metadata"`
	Messages   []StoredMessage `json:"messages,omitempty"`
}

// StoredMessage is a message read back from storage.
type StoredMessage struct {
	Line     int      `json:"line"`
	Severity string   `json:"severity"`
	Category string   `json:"category"`
	Code     string   `json:"code"`
	Columns  []string `json:"columns,omitempty"`
	Text     string   `json:"text"`
}

// GetRun returns a run with up to messageLimit of its messages.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID, messageLimit int) (*Run, error) {
	if s == nil {
		return nil, ErrStorageDisabled
	}
	if messageLimit <= 0 {
		messageLimit = DefaultMessageLimit
	}

	run, err := scanRun(s.db.QueryRow(ctx, selectRunSQL+" WHERE run_id = $1", toPgUUID(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.db.Query(ctx, selectMessagesSQL, toPgUUID(id), messageLimit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	run.Messages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (StoredMessage, error) {
		var m StoredMessage
		err := row.Scan(&m.Line, &m.Severity, &m.Category, &m.Code, &m.Columns, &m.Text)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first, without messages.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s == nil {
		return nil, ErrStorageDisabled
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, selectRunSQL+" ORDER BY started_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Run, error) {
		return scanRun(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*Run, error) {
	var (
		run     Run
		id      pgtype.UUID
		started pgtype.Timestamptz
		md      []byte
	)
	err := row.Scan(
		&id, &run.Dataset, &run.Origin, &started, &run.DurationMS, &run.Code, &run.Verdict,
		&run.Stats.Rows, &run.Stats.Records, &run.Stats.Warnings, &run.Stats.Errors,
		&run.Stats.InternalErrors, &run.Stats.DroppedMessages,
		&run.Stats.Flags.Good, &run.Stats.Flags.Questionable, &run.Stats.Flags.Bad,
		&md,
	)
	if err != nil {
		return nil, err
	}
	run.RunID = uuid.UUID(id.Bytes)
	run.StartedAt = started.Time
	if len(md) > 0 {
		if err := sonic.Unmarshal(md, &run.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &run, nil
}
