package model

import "time"

// JobStatus represents the lifecycle stage of a merge job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// OutputFormat 合并输出的容器/编码格式
type OutputFormat string

const (
	FormatMP3 OutputFormat = "mp3"
	FormatWAV OutputFormat = "wav"
)

// ValidFormat reports whether f is a supported output format.
func ValidFormat(f OutputFormat) bool {
	return f == FormatMP3 || f == FormatWAV
}

// MergeJob represents one request to merge an ordered set of audio files
// into a single output file.
type MergeJob struct {
	ID            int64        `json:"id" gorm:"primaryKey;autoIncrement"`
	Name          string       `json:"name" gorm:"size:255"`
	Status        JobStatus    `json:"status" gorm:"size:20;not null;default:pending"`
	Progress      int          `json:"progress"` // 0-100, non-decreasing while processing
	OutputFile    string       `json:"outputFile"` // Stored filename, set only on completion
	RemoveSilence bool         `json:"removeSilence"`
	OutputFormat  OutputFormat `json:"outputFormat" gorm:"size:10;not null"`
	CreatedBy     int64        `json:"createdBy" gorm:"index;not null"`
	CreatedAt     time.Time    `json:"createdAt" gorm:"autoCreateTime"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty"`
	FileIDs       []int64      `json:"fileIds" gorm:"-"` // Ordered input file ids, loaded from merge_job_files
}

// TableName 指定表名
func (MergeJob) TableName() string {
	return "merge_jobs"
}

// IsTerminal reports whether the job reached a terminal state.
func (j *MergeJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// MergeJobFile links a merge job to one of its ordered input files.
// Rows are created atomically with the job and are immutable afterwards.
type MergeJobFile struct {
	ID          int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	MergeJobID  int64 `json:"mergeJobId" gorm:"index;not null"`
	AudioFileID int64 `json:"audioFileId" gorm:"not null"`
	Position    int   `json:"position" gorm:"not null"` // Concatenation order, 0-based
}

// TableName 指定表名
func (MergeJobFile) TableName() string {
	return "merge_job_files"
}
