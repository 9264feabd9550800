package repository

import (
	"database/sql"
	"fmt"

	"MixMerge/model"
)

// AudioFileRepository defines the interface for audio file metadata operations.
type AudioFileRepository interface {
	CreateAudioFile(file *model.AudioFile) (int64, error)
	GetAudioFileByID(id int64) (*model.AudioFile, error)
	GetAudioFilesByUserID(userID int64) ([]*model.AudioFile, error)
	DeleteAudioFile(id int64) error
}

// mysqlAudioFileRepository implements AudioFileRepository for MySQL.
type mysqlAudioFileRepository struct {
	db *sql.DB
}

// NewMySQLAudioFileRepository creates a new mysqlAudioFileRepository.
func NewMySQLAudioFileRepository(db *sql.DB) AudioFileRepository {
	return &mysqlAudioFileRepository{db: db}
}

// CreateAudioFile adds a new audio file record to the database.
func (r *mysqlAudioFileRepository) CreateAudioFile(file *model.AudioFile) (int64, error) {
	query := `INSERT INTO audio_files (filename, original_name, size, duration, mime_type, uploaded_by, uploaded_at)
	           VALUES (?, ?, ?, ?, ?, ?, NOW())`
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateAudioFile: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(file.Filename, file.OriginalName, file.Size, file.Duration, file.MimeType, file.UploadedBy)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateAudioFile: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateAudioFile: %w", err)
	}
	return id, nil
}

// GetAudioFileByID retrieves an audio file by its ID.
func (r *mysqlAudioFileRepository) GetAudioFileByID(id int64) (*model.AudioFile, error) {
	query := `SELECT id, filename, original_name, size, duration, mime_type, uploaded_by, uploaded_at
	           FROM audio_files WHERE id = ?`
	row := r.db.QueryRow(query, id)

	file := &model.AudioFile{}
	err := row.Scan(&file.ID, &file.Filename, &file.OriginalName, &file.Size, &file.Duration, &file.MimeType, &file.UploadedBy, &file.UploadedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // File not found
		}
		return nil, fmt.Errorf("failed to scan audio file by ID %d: %w", id, err)
	}
	return file, nil
}

// GetAudioFilesByUserID retrieves all audio files for a user, newest first.
func (r *mysqlAudioFileRepository) GetAudioFilesByUserID(userID int64) ([]*model.AudioFile, error) {
	query := `SELECT id, filename, original_name, size, duration, mime_type, uploaded_by, uploaded_at
	           FROM audio_files WHERE uploaded_by = ? ORDER BY uploaded_at DESC, id DESC`
	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audio files for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	files := make([]*model.AudioFile, 0)
	for rows.Next() {
		file := &model.AudioFile{}
		err := rows.Scan(&file.ID, &file.Filename, &file.OriginalName, &file.Size, &file.Duration, &file.MimeType, &file.UploadedBy, &file.UploadedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audio file in GetAudioFilesByUserID: %w", err)
		}
		files = append(files, file)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAudioFilesByUserID: %w", err)
	}

	return files, nil
}

// DeleteAudioFile removes an audio file record by its ID.
func (r *mysqlAudioFileRepository) DeleteAudioFile(id int64) error {
	query := `DELETE FROM audio_files WHERE id = ?`
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for DeleteAudioFile: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(id)
	if err != nil {
		return fmt.Errorf("failed to execute DeleteAudioFile for ID %d: %w", id, err)
	}
	return nil
}
