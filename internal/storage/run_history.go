package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/cronthat/internal/model"
)

// RunHistory defines the interface for run history storage
type RunHistory interface {
	// Store stores a run record when the run starts
	Store(ctx context.Context, record *model.RunRecord) error

	// Update records the outcome of a stored run
	Update(ctx context.Context, record *model.RunRecord) error

	// Get retrieves a run record by ID
	Get(ctx context.Context, id string) (*model.RunRecord, error)

	// List retrieves run records, newest first, with pagination and filters
	List(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*model.RunRecord, error)

	// Count returns the total number of records matching the filters
	Count(ctx context.Context, filters map[string]interface{}) (int, error)

	// DeleteBefore deletes records started before the specified time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// filterColumns lists the columns List and Count accept as filter keys
var filterColumns = map[string]bool{
	"expression": true,
	"status":     true,
	"sequence":   true,
	"exit_code":  true,
}

const selectColumns = `id, expression, command, sequence, status, exit_code, error,
	scheduled_at, started_at, completed_at, duration, host`

// SQLiteRunHistory implements RunHistory using SQLite
type SQLiteRunHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteRunHistory opens or creates the history database at dbPath.
// Existing records are kept.
func NewSQLiteRunHistory(logger *zap.Logger, dbPath string) (*SQLiteRunHistory, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteRunHistory{
		logger: logger.Named("run-history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteRunHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_history (
			id TEXT PRIMARY KEY,
			expression TEXT NOT NULL,
			command TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER,
			error TEXT,
			scheduled_at DATETIME NOT NULL,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			duration INTEGER,
			host TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_run_history_expression ON run_history(expression);
		CREATE INDEX IF NOT EXISTS idx_run_history_status ON run_history(status);
		CREATE INDEX IF NOT EXISTS idx_run_history_started_at ON run_history(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements RunHistory.Store
func (s *SQLiteRunHistory) Store(ctx context.Context, record *model.RunRecord) error {
	command, err := json.Marshal(record.Command)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	host, err := marshalHost(record.Host)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_history (
			id, expression, command, sequence, status, scheduled_at, started_at, host
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Expression,
		string(command),
		record.Sequence,
		record.Status,
		record.ScheduledAt.UTC(),
		record.StartedAt.UTC(),
		host,
	)
	if err != nil {
		return fmt.Errorf("failed to store run record: %w", err)
	}
	return nil
}

// Update implements RunHistory.Update
func (s *SQLiteRunHistory) Update(ctx context.Context, record *model.RunRecord) error {
	var exitCode sql.NullInt64
	if record.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*record.ExitCode), Valid: true}
	}
	var completedAt sql.NullTime
	if record.CompletedAt != nil {
		completedAt = sql.NullTime{Time: record.CompletedAt.UTC(), Valid: true}
	}
	host, err := marshalHost(record.Host)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE run_history SET
			status = ?,
			exit_code = ?,
			error = ?,
			completed_at = ?,
			duration = ?,
			host = ?
		WHERE id = ?`,
		record.Status,
		exitCode,
		sql.NullString{String: record.Error, Valid: record.Error != ""},
		completedAt,
		sql.NullInt64{Int64: int64(record.Duration), Valid: record.Duration != 0},
		host,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, record.ID)
	}
	return nil
}

// Get implements RunHistory.Get
func (s *SQLiteRunHistory) Get(ctx context.Context, id string) (*model.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM run_history WHERE id = ?", id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan run record: %w", err)
	}
	return record, nil
}

// List implements RunHistory.List
func (s *SQLiteRunHistory) List(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*model.RunRecord, error) {
	where, args, err := buildWhere(filters)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + selectColumns + " FROM run_history" + where +
		" ORDER BY started_at DESC, sequence DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list run history: %w", err)
	}
	defer rows.Close()

	var records []*model.RunRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// Count implements RunHistory.Count
func (s *SQLiteRunHistory) Count(ctx context.Context, filters map[string]interface{}) (int, error) {
	where, args, err := buildWhere(filters)
	if err != nil {
		return 0, err
	}

	var count int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_history"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count run history: %w", err)
	}
	return count, nil
}

// DeleteBefore implements RunHistory.DeleteBefore
func (s *SQLiteRunHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM run_history WHERE started_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete run history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old run records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

// Close closes the database connection
func (s *SQLiteRunHistory) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*model.RunRecord, error) {
	record := &model.RunRecord{}
	var command string
	var exitCode, durationNanos sql.NullInt64
	var errorStr, host sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&record.ID,
		&record.Expression,
		&command,
		&record.Sequence,
		&record.Status,
		&exitCode,
		&errorStr,
		&record.ScheduledAt,
		&record.StartedAt,
		&completedAt,
		&durationNanos,
		&host,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(command), &record.Command); err != nil {
		return nil, fmt.Errorf("failed to unmarshal command: %w", err)
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		record.ExitCode = &code
	}
	if errorStr.Valid {
		record.Error = errorStr.String
	}
	if completedAt.Valid {
		record.CompletedAt = &completedAt.Time
	}
	if durationNanos.Valid {
		record.Duration = time.Duration(durationNanos.Int64)
	}
	if host.Valid && host.String != "" {
		record.Host = &model.HostStats{}
		if err := json.Unmarshal([]byte(host.String), record.Host); err != nil {
			return nil, fmt.Errorf("failed to unmarshal host stats: %w", err)
		}
	}

	return record, nil
}

func marshalHost(host *model.HostStats) (sql.NullString, error) {
	if host == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(host)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal host stats: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// buildWhere renders filters as a WHERE clause. Keys are sorted so the
// query text is stable.
func buildWhere(filters map[string]interface{}) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filters))
	for key := range filters {
		if !filterColumns[key] {
			return "", nil, fmt.Errorf("%w: %s", ErrInvalidFilter, key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		clauses = append(clauses, key+" = ?")
		args = append(args, filters[key])
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}
