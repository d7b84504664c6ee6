package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"reel/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.WorkDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// currentOwner resolves the operator submitting jobs. Overridable in tests.
var currentOwner = func() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

// NewJob inserts a pending job for a media file, recording the submitting
// operator as its owner.
func (s *Store) NewJob(ctx context.Context, workflow, mediaPath, rootDir, optionsJSON string) (*Job, error) {
	if workflow == "" {
		return nil, errors.New("workflow is required")
	}
	if mediaPath == "" {
		return nil, errors.New("media path is required")
	}

	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            id, workflow, media_path, root_dir, owner, status, options_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		workflow,
		mediaPath,
		rootDir,
		nullableString(currentOwner()),
		StatusPending,
		nullableString(optionsJSON),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindByIdentity returns the most recent job matching a media identity.
func (s *Store) FindByIdentity(ctx context.Context, identity string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE media_identity = ? ORDER BY created_at DESC LIMIT 1`,
		identity,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by identity: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET workflow = ?, media_path = ?, media_identity = ?, root_dir = ?, owner = ?, status = ?,
             current_stage = ?, last_completed_stage = ?, error_stage = ?, error_kind = ?,
             error_message = ?, options_json = ?, log_path = ?, updated_at = ?,
             started_at = ?, finished_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		job.Workflow,
		job.MediaPath,
		nullableString(job.MediaIdentity),
		job.RootDir,
		nullableString(job.Owner),
		job.Status,
		nullableString(job.CurrentStage),
		nullableString(job.LastCompletedStage),
		nullableString(job.ErrorStage),
		nullableString(job.ErrorKind),
		nullableString(job.ErrorMessage),
		nullableString(job.OptionsJSON),
		nullableString(job.LogPath),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
		nullableTime(job.LastHeartbeat),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// List returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleRunning returns running jobs back to pending when heartbeats expire.
func (s *Store) ReclaimStaleRunning(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
        SET status = ?, current_stage = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back to pending for reprocessing.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
            SET status = ?, error_stage = NULL, error_kind = NULL, error_message = NULL, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			timestamp,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, timestamp)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE jobs
        SET status = ?, error_stage = NULL, error_kind = NULL, error_message = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusRunning:
			health.Running += count
		case StatusFailed:
			health.Failed += count
		case StatusCompleted:
			health.Completed += count
		case StatusCancelled:
			health.Cancelled += count
		}
	}
	return health, nil
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed jobs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all jobs.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

const jobColumns = "id, workflow, media_path, media_identity, root_dir, owner, status, current_stage, last_completed_stage, error_stage, error_kind, error_message, options_json, log_path, created_at, updated_at, started_at, finished_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id            string
		workflow      string
		mediaPath     string
		mediaIdentity sql.NullString
		rootDir       string
		owner         sql.NullString
		statusStr     string
		currentStage  sql.NullString
		lastCompleted sql.NullString
		errorStage    sql.NullString
		errorKind     sql.NullString
		errorMessage  sql.NullString
		optionsJSON   sql.NullString
		logPath       sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		startedRaw    sql.NullString
		finishedRaw   sql.NullString
		heartbeatRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&workflow,
		&mediaPath,
		&mediaIdentity,
		&rootDir,
		&owner,
		&statusStr,
		&currentStage,
		&lastCompleted,
		&errorStage,
		&errorKind,
		&errorMessage,
		&optionsJSON,
		&logPath,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:                 id,
		Workflow:           workflow,
		MediaPath:          mediaPath,
		MediaIdentity:      mediaIdentity.String,
		RootDir:            rootDir,
		Owner:              owner.String,
		Status:             Status(statusStr),
		CurrentStage:       currentStage.String,
		LastCompletedStage: lastCompleted.String,
		ErrorStage:         errorStage.String,
		ErrorKind:          errorKind.String,
		ErrorMessage:       errorMessage.String,
		OptionsJSON:        optionsJSON.String,
		LogPath:            logPath.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			job.FinishedAt = &finished
		}
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
