package model

import "time"

// AudioFile represents an uploaded source audio file.
// Filename is the stored artifact name, globally unique and never reused;
// OriginalName is only kept for display.
type AudioFile struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Filename     string    `json:"filename" gorm:"size:255;not null;uniqueIndex"`
	OriginalName string    `json:"originalName" gorm:"size:255"`
	Size         int64     `json:"size"`
	Duration     int       `json:"duration"` // Duration in whole seconds, probed at upload time
	MimeType     string    `json:"mimeType" gorm:"size:100"`
	UploadedBy   int64     `json:"uploadedBy" gorm:"index;not null"`
	UploadedAt   time.Time `json:"uploadedAt" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (AudioFile) TableName() string {
	return "audio_files"
}
