package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MetadataStore keeps one row per recorded segment.
type MetadataStore interface {
	SaveSegment(ctx context.Context, rec *SegmentRecord) error
	MarkUploaded(ctx context.Context, id, objectKey string) error
	MarkFailed(ctx context.Context, id, reason string) error
	GetSegment(ctx context.Context, id string) (*SegmentRecord, error)
	ListSegments(ctx context.Context, query SegmentQuery) ([]*SegmentRecord, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// SQLStore implements MetadataStore on sqlx for sqlite and postgres.
type SQLStore struct {
	db     *sqlx.DB
	logger *zap.Logger
	config SQLConfig
}

// SQLConfig selects the driver and pool.
type SQLConfig struct {
	Driver          string // sqlite, postgres
	DSN             string
	MaxConnections  int
	ConnMaxLifetime time.Duration
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS segments (
		id             TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL,
		segment_number INTEGER NOT NULL,
		camera         TEXT NOT NULL DEFAULT '',
		local_path     TEXT NOT NULL,
		object_key     TEXT,
		frames         BIGINT NOT NULL DEFAULT 0,
		size_bytes     BIGINT NOT NULL DEFAULT 0,
		status         TEXT NOT NULL,
		error          TEXT,
		started_at     TIMESTAMP NOT NULL,
		ended_at       TIMESTAMP NOT NULL,
		created_at     TIMESTAMP NOT NULL,
		updated_at     TIMESTAMP NOT NULL,
		UNIQUE (session_id, segment_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_segments_status ON segments (status)`,
	`CREATE INDEX IF NOT EXISTS idx_segments_started_at ON segments (started_at)`,
}

// NewSQLStore opens the database, configures the pool and applies the schema.
func NewSQLStore(ctx context.Context, config SQLConfig) (*SQLStore, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("metadata dsn is required")
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}

	var driver string
	switch config.Driver {
	case "sqlite":
		driver = "sqlite"
	case "postgres":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported metadata driver %q", config.Driver)
	}

	db, err := sqlx.Open(driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		// one writer; an in-memory database also lives on a single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxConnections)
		db.SetMaxIdleConns(config.MaxConnections / 2)
		if config.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(config.ConnMaxLifetime)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{
		db:     db,
		logger: zap.L().Named("metadata-store"),
		config: config,
	}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	if s.db.DriverName() == "sqlite" {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := s.db.ExecContext(ctx, pragma); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// SaveSegment inserts rec or replaces the row with the same id.
func (s *SQLStore) SaveSegment(ctx context.Context, rec *SegmentRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = StatusRecorded
	}
	rec.StartedAt = rec.StartedAt.UTC()
	rec.EndedAt = rec.EndedAt.UTC()

	query := `
		INSERT INTO segments (
			id, session_id, segment_number, camera, local_path, object_key,
			frames, size_bytes, status, error, started_at, ended_at, created_at, updated_at
		) VALUES (
			:id, :session_id, :segment_number, :camera, :local_path, :object_key,
			:frames, :size_bytes, :status, :error, :started_at, :ended_at, :created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			local_path = excluded.local_path,
			object_key = excluded.object_key,
			frames = excluded.frames,
			size_bytes = excluded.size_bytes,
			status = excluded.status,
			error = excluded.error,
			ended_at = excluded.ended_at,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save segment %d of session %s: %w", rec.Number, rec.SessionID, ErrDuplicateSegment)
		}
		return fmt.Errorf("failed to save segment: %w", err)
	}

	s.logger.Debug("Segment saved",
		zap.String("id", rec.ID),
		zap.Int("segment", rec.Number),
		zap.String("status", string(rec.Status)))
	return nil
}

// MarkUploaded records the object key of a shipped segment.
func (s *SQLStore) MarkUploaded(ctx context.Context, id, objectKey string) error {
	query := s.db.Rebind(`UPDATE segments SET status = ?, object_key = ?, error = NULL, updated_at = ? WHERE id = ?`)
	return s.updateOne(ctx, id, query, StatusUploaded, objectKey, time.Now().UTC(), id)
}

// MarkFailed records why a segment could not be shipped.
func (s *SQLStore) MarkFailed(ctx context.Context, id, reason string) error {
	query := s.db.Rebind(`UPDATE segments SET status = ?, error = ?, updated_at = ? WHERE id = ?`)
	return s.updateOne(ctx, id, query, StatusFailed, reason, time.Now().UTC(), id)
}

func (s *SQLStore) updateOne(ctx context.Context, id, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update segment %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrSegmentNotFound, id)
	}
	return nil
}

// GetSegment returns the row with id.
func (s *SQLStore) GetSegment(ctx context.Context, id string) (*SegmentRecord, error) {
	var rec SegmentRecord
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(`SELECT * FROM segments WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSegmentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get segment: %w", err)
	}
	return &rec, nil
}

// ListSegments returns matching rows, oldest first.
func (s *SQLStore) ListSegments(ctx context.Context, query SegmentQuery) ([]*SegmentRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if query.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, query.SessionID)
	}
	if query.Status != "" {
		where = append(where, "status = ?")
		args = append(args, query.Status)
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM segments")
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY started_at ASC, segment_number ASC")
	if query.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, query.Limit)
	}

	segments := make([]*SegmentRecord, 0)
	if err := s.db.SelectContext(ctx, &segments, s.db.Rebind(sb.String()), args...); err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	return segments, nil
}

// HealthCheck pings the database.
func (s *SQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
