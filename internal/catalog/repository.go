package catalog

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateSource(ctx context.Context, source *Source) error
	UpdateSource(ctx context.Context, source *Source) error
	GetSource(ctx context.Context, id string) (*Source, error)
	GetSourceByPath(ctx context.Context, path string) (*Source, error)
	ListSources(ctx context.Context) ([]*Source, error)
	DeleteSource(ctx context.Context, id string) error
	UpdateSourcePresent(ctx context.Context, id string, present bool) error

	CreateJob(ctx context.Context, job *Job) error
	CreateExportJob(ctx context.Context, id, sessionID, sourceID string) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListJobsBySource(ctx context.Context, sourceID string) ([]*Job, error)
	ListPendingJobs(ctx context.Context, jobType string) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	RecoverInterruptedJobs(ctx context.Context) (requeued, failed int64, err error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sourceColumns = `id, path, display_name, fingerprint, size, mtime, duration, has_video, has_audio, present, created_at`

func (r *SQLiteRepository) CreateSource(ctx context.Context, s *Source) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sources (`+sourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Path, s.DisplayName, s.Fingerprint, s.Size, s.Mtime.Format(time.RFC3339),
		s.Duration, boolToInt(s.HasVideo), boolToInt(s.HasAudio), boolToInt(s.Present),
		s.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) UpdateSource(ctx context.Context, s *Source) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources SET display_name = ?, fingerprint = ?, size = ?, mtime = ?, duration = ?,
			has_video = ?, has_audio = ?, present = ?
		WHERE id = ?
	`, s.DisplayName, s.Fingerprint, s.Size, s.Mtime.Format(time.RFC3339), s.Duration,
		boolToInt(s.HasVideo), boolToInt(s.HasAudio), boolToInt(s.Present), s.ID)
	return err
}

func (r *SQLiteRepository) GetSource(ctx context.Context, id string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	return scanSource(row)
}

func (r *SQLiteRepository) GetSourceByPath(ctx context.Context, path string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE path = ?`, path)
	return scanSource(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*Source, error) {
	var s Source
	var hasVideo, hasAudio, present int
	var mtime, createdAt string

	err := row.Scan(&s.ID, &s.Path, &s.DisplayName, &s.Fingerprint, &s.Size, &mtime,
		&s.Duration, &hasVideo, &hasAudio, &present, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.HasVideo = hasVideo == 1
	s.HasAudio = hasAudio == 1
	s.Present = present == 1
	s.Mtime, _ = time.Parse(time.RFC3339, mtime)
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &s, nil
}

func (r *SQLiteRepository) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *SQLiteRepository) DeleteSource(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) UpdateSourcePresent(ctx context.Context, id string, present bool) error {
	_, err := r.db.ExecContext(ctx, "UPDATE sources SET present = ? WHERE id = ?", boolToInt(present), id)
	return err
}

const jobColumns = `id, type, status, source_id, session_id, progress, error, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Type, j.Status, nullString(j.SourceID), nullString(j.SessionID),
		j.Progress, nullString(j.Error),
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	return err
}

// CreateExportJob records an export that is already running.
func (r *SQLiteRepository) CreateExportJob(ctx context.Context, id, sessionID, sourceID string) error {
	now := time.Now()
	return r.CreateJob(ctx, &Job{
		ID:        id,
		Type:      JobTypeExport,
		Status:    JobStatusRunning,
		SourceID:  sourceID,
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var sourceID, sessionID, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.Type, &j.Status, &sourceID, &sessionID, &j.Progress, &errMsg, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.SourceID = sourceID.String
	j.SessionID = sessionID.String
	j.Error = errMsg.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *SQLiteRepository) ListJobsBySource(ctx context.Context, sourceID string) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE source_id = ? ORDER BY created_at DESC
	`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context, jobType string) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = 'pending' AND type = ? ORDER BY created_at ASC
	`, jobType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), time.Now().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?
	`, progress, time.Now().Format(time.RFC3339), id)
	return err
}

// RecoverInterruptedJobs settles jobs left running by a previous process.
// Analysis is requeued; exports cannot resume and are marked failed.
func (r *SQLiteRepository) RecoverInterruptedJobs(ctx context.Context) (requeued, failed int64, err error) {
	now := time.Now().Format(time.RFC3339)
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'pending', progress = 0, updated_at = ?
		WHERE status = 'running' AND type = ?
	`, now, JobTypeAnalyze)
	if err != nil {
		return 0, 0, err
	}
	requeued, _ = res.RowsAffected()

	res, err = r.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', error = 'interrupted by shutdown', updated_at = ?
		WHERE status IN ('pending', 'running') AND type = ?
	`, now, JobTypeExport)
	if err != nil {
		return requeued, 0, err
	}
	failed, _ = res.RowsAffected()
	return requeued, failed, nil
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// parseTime accepts RFC3339 and SQLite's datetime('now') layout.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
