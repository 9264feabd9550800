package repository

import (
	"database/sql"
	"fmt"
	"time"

	"MixMerge/model"
)

// MergeJobRepository defines the interface for merge job data operations.
//
// Status/progress updates against a job id that no longer exists are no-ops,
// not errors: the owner may delete a job while its encode is still running.
type MergeJobRepository interface {
	CreateMergeJob(job *model.MergeJob, fileIDs []int64) (int64, error)
	GetMergeJobByID(id int64) (*model.MergeJob, error)
	GetMergeJobsByUserID(userID int64) ([]*model.MergeJob, error)
	GetJobFileIDs(jobID int64) ([]int64, error)
	MarkProcessing(jobID int64) error
	UpdateProgress(jobID int64, progress int) error
	MarkCompleted(jobID int64, outputFile string, completedAt time.Time) error
	MarkFailed(jobID int64) error
	DeleteMergeJob(jobID int64) error
	CountActiveJobsReferencingFile(fileID int64) (int, error)
}

// mysqlMergeJobRepository implements MergeJobRepository for MySQL.
type mysqlMergeJobRepository struct {
	db *sql.DB
}

// NewMySQLMergeJobRepository creates a new mysqlMergeJobRepository.
func NewMySQLMergeJobRepository(db *sql.DB) MergeJobRepository {
	return &mysqlMergeJobRepository{db: db}
}

// CreateMergeJob inserts the job row and its ordered file links in one transaction.
func (r *mysqlMergeJobRepository) CreateMergeJob(job *model.MergeJob, fileIDs []int64) (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for CreateMergeJob: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO merge_jobs (name, status, progress, output_file, remove_silence, output_format, created_by, created_at)
	           VALUES (?, ?, 0, '', ?, ?, ?, NOW())`
	res, err := tx.Exec(query, job.Name, model.JobStatusPending, job.RemoveSilence, job.OutputFormat, job.CreatedBy)
	if err != nil {
		return 0, fmt.Errorf("failed to insert merge job: %w", err)
	}

	jobID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for merge job: %w", err)
	}

	linkQuery := `INSERT INTO merge_job_files (merge_job_id, audio_file_id, position) VALUES (?, ?, ?)`
	stmt, err := tx.Prepare(linkQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for merge job files: %w", err)
	}
	defer stmt.Close()

	for pos, fileID := range fileIDs {
		if _, err := stmt.Exec(jobID, fileID, pos); err != nil {
			return 0, fmt.Errorf("failed to link file %d to merge job %d: %w", fileID, jobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit CreateMergeJob: %w", err)
	}
	return jobID, nil
}

// GetMergeJobByID retrieves a merge job with its ordered file ids.
func (r *mysqlMergeJobRepository) GetMergeJobByID(id int64) (*model.MergeJob, error) {
	query := `SELECT id, name, status, progress, output_file, remove_silence, output_format, created_by, created_at, completed_at
	           FROM merge_jobs WHERE id = ?`
	row := r.db.QueryRow(query, id)

	job := &model.MergeJob{}
	var completedAt sql.NullTime
	err := row.Scan(&job.ID, &job.Name, &job.Status, &job.Progress, &job.OutputFile, &job.RemoveSilence, &job.OutputFormat, &job.CreatedBy, &job.CreatedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Job not found
		}
		return nil, fmt.Errorf("failed to scan merge job by ID %d: %w", id, err)
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	job.FileIDs, err = r.GetJobFileIDs(id)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetMergeJobsByUserID retrieves all merge jobs for a user, newest first.
func (r *mysqlMergeJobRepository) GetMergeJobsByUserID(userID int64) ([]*model.MergeJob, error) {
	query := `SELECT id, name, status, progress, output_file, remove_silence, output_format, created_by, created_at, completed_at
	           FROM merge_jobs WHERE created_by = ? ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query merge jobs for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	jobs := make([]*model.MergeJob, 0)
	for rows.Next() {
		job := &model.MergeJob{}
		var completedAt sql.NullTime
		err := rows.Scan(&job.ID, &job.Name, &job.Status, &job.Progress, &job.OutputFile, &job.RemoveSilence, &job.OutputFormat, &job.CreatedBy, &job.CreatedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan merge job in GetMergeJobsByUserID: %w", err)
		}
		if completedAt.Valid {
			job.CompletedAt = &completedAt.Time
		}
		jobs = append(jobs, job)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetMergeJobsByUserID: %w", err)
	}
	return jobs, nil
}

// GetJobFileIDs returns the audio file ids of a job in concatenation order.
func (r *mysqlMergeJobRepository) GetJobFileIDs(jobID int64) ([]int64, error) {
	query := `SELECT audio_file_id FROM merge_job_files WHERE merge_job_id = ? ORDER BY position ASC`
	rows, err := r.db.Query(query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files for merge job %d: %w", jobID, err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan file id for merge job %d: %w", jobID, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkProcessing moves a pending job to processing.
func (r *mysqlMergeJobRepository) MarkProcessing(jobID int64) error {
	query := `UPDATE merge_jobs SET status = ? WHERE id = ? AND status = ?`
	if _, err := r.db.Exec(query, model.JobStatusProcessing, jobID, model.JobStatusPending); err != nil {
		return fmt.Errorf("failed to mark merge job %d processing: %w", jobID, err)
	}
	return nil
}

// UpdateProgress records encoder progress. GREATEST keeps the stored value
// non-decreasing even if updates arrive out of order.
func (r *mysqlMergeJobRepository) UpdateProgress(jobID int64, progress int) error {
	query := `UPDATE merge_jobs SET progress = GREATEST(progress, ?) WHERE id = ? AND status = ?`
	if _, err := r.db.Exec(query, progress, jobID, model.JobStatusProcessing); err != nil {
		return fmt.Errorf("failed to update progress for merge job %d: %w", jobID, err)
	}
	return nil
}

// MarkCompleted finalizes a successful job.
func (r *mysqlMergeJobRepository) MarkCompleted(jobID int64, outputFile string, completedAt time.Time) error {
	query := `UPDATE merge_jobs SET status = ?, progress = 100, output_file = ?, completed_at = ? WHERE id = ? AND status = ?`
	if _, err := r.db.Exec(query, model.JobStatusCompleted, outputFile, completedAt, jobID, model.JobStatusProcessing); err != nil {
		return fmt.Errorf("failed to mark merge job %d completed: %w", jobID, err)
	}
	return nil
}

// MarkFailed finalizes a failed job, leaving progress at its last value.
// A job can fail out of pending too, when its start was never recorded.
func (r *mysqlMergeJobRepository) MarkFailed(jobID int64) error {
	query := `UPDATE merge_jobs SET status = ? WHERE id = ? AND status IN (?, ?)`
	if _, err := r.db.Exec(query, model.JobStatusFailed, jobID, model.JobStatusPending, model.JobStatusProcessing); err != nil {
		return fmt.Errorf("failed to mark merge job %d failed: %w", jobID, err)
	}
	return nil
}

// CountActiveJobsReferencingFile reports how many pending/processing jobs
// still reference an audio file. Used to warn before deleting a source file
// a live job depends on.
func (r *mysqlMergeJobRepository) CountActiveJobsReferencingFile(fileID int64) (int, error) {
	query := `SELECT COUNT(*) FROM merge_job_files jf
	           JOIN merge_jobs j ON jf.merge_job_id = j.id
	           WHERE jf.audio_file_id = ? AND j.status IN (?, ?)`
	var count int
	err := r.db.QueryRow(query, fileID, model.JobStatusPending, model.JobStatusProcessing).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active jobs referencing file %d: %w", fileID, err)
	}
	return count, nil
}

// DeleteMergeJob removes the job row and its file links in one transaction.
func (r *mysqlMergeJobRepository) DeleteMergeJob(jobID int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for DeleteMergeJob: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM merge_job_files WHERE merge_job_id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to delete file links for merge job %d: %w", jobID, err)
	}
	if _, err := tx.Exec(`DELETE FROM merge_jobs WHERE id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to delete merge job %d: %w", jobID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit DeleteMergeJob: %w", err)
	}
	return nil
}
