package models

import "time"

// FileUpload stores metadata about a file a student shared during a session.
// The binary itself lives in external storage; URL points at it.
type FileUpload struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionID   string    `gorm:"size:36;index:idx_files_session;not null" json:"session_id"`
	TeacherID   string    `gorm:"size:64;index:idx_files_session" json:"teacher_id"`
	StudentID   string    `gorm:"size:64;index" json:"student_id"`
	StudentName string    `gorm:"size:255" json:"student_name"`
	FileName    string    `gorm:"size:255;not null" json:"file_name"`
	URL         string    `gorm:"size:512;not null" json:"url"`
	PublicID    string    `gorm:"size:255" json:"public_id"`
	FileType    string    `gorm:"size:128" json:"file_type"`
	FileSize    int64     `json:"file_size"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
