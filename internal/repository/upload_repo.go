package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/eyeai-api/internal/models"
)

// ErrFileNotFound indicates the requested file record does not exist.
var ErrFileNotFound = errors.New("file not found")

// UploadRepository persists metadata about files shared during a session.
type UploadRepository interface {
	Create(ctx context.Context, record *models.FileUpload) error
	FindByID(ctx context.Context, id uint) (*models.FileUpload, error)
	ListBySession(ctx context.Context, teacherID, sessionID string) ([]models.FileUpload, error)
	ListByStudent(ctx context.Context, teacherID, sessionID, studentID string) ([]models.FileUpload, error)
	Delete(ctx context.Context, id uint) error
}

type uploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository constructs a repository for upload records.
func NewUploadRepository(db *gorm.DB) UploadRepository {
	return &uploadRepository{db: db}
}

func (r *uploadRepository) Create(ctx context.Context, record *models.FileUpload) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *uploadRepository) FindByID(ctx context.Context, id uint) (*models.FileUpload, error) {
	var record models.FileUpload
	err := r.db.WithContext(ctx).First(&record, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *uploadRepository) ListBySession(ctx context.Context, teacherID, sessionID string) ([]models.FileUpload, error) {
	var records []models.FileUpload
	err := r.db.WithContext(ctx).
		Where("teacher_id = ? AND session_id = ?", teacherID, sessionID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *uploadRepository) ListByStudent(ctx context.Context, teacherID, sessionID, studentID string) ([]models.FileUpload, error) {
	var records []models.FileUpload
	err := r.db.WithContext(ctx).
		Where("teacher_id = ? AND session_id = ? AND student_id = ?", teacherID, sessionID, studentID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *uploadRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.FileUpload{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFileNotFound
	}
	return nil
}
