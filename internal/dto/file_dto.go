package dto

import (
	"time"

	"github.com/noah-isme/eyeai-api/internal/models"
)

// FileUploadRequest carries the multipart form fields accompanying a shared
// file. The binary itself arrives as the "file" part.
type FileUploadRequest struct {
	TeacherID   string `form:"teacher_id" validate:"required,max=64"`
	SessionID   string `form:"session_id" validate:"required,max=36"`
	StudentID   string `form:"student_id" validate:"required,max=64"`
	StudentName string `form:"student_name" validate:"required,max=255"`
	Description string `form:"description" validate:"omitempty,max=2000"`
}

// FileResponse is the serialized representation of a shared file.
type FileResponse struct {
	ID          uint      `json:"id"`
	SessionID   string    `json:"session_id"`
	TeacherID   string    `json:"teacher_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	FileName    string    `json:"file_name"`
	URL         string    `json:"url"`
	FileType    string    `json:"file_type"`
	FileSize    int64     `json:"file_size"`
	Description string    `json:"description,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// NewFileResponse converts a file record into its DTO.
func NewFileResponse(record models.FileUpload) FileResponse {
	return FileResponse{
		ID:          record.ID,
		SessionID:   record.SessionID,
		TeacherID:   record.TeacherID,
		StudentID:   record.StudentID,
		StudentName: record.StudentName,
		FileName:    record.FileName,
		URL:         record.URL,
		FileType:    record.FileType,
		FileSize:    record.FileSize,
		Description: record.Description,
		UploadedAt:  record.CreatedAt,
	}
}

// NewFileResponseSlice converts a slice of file records into DTOs.
func NewFileResponseSlice(records []models.FileUpload) []FileResponse {
	out := make([]FileResponse, 0, len(records))
	for _, record := range records {
		out = append(out, NewFileResponse(record))
	}
	return out
}
