package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/eyeai-api/internal/models"
)

var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrVersionConflict indicates a concurrent writer updated the session
	// between our read and our save.
	ErrVersionConflict = errors.New("session version conflict")
)

// SessionRepository persists session aggregates. Save is atomic over the
// whole aggregate and guarded by an optimistic version check, which is what
// the orchestrator's retry loop relies on.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindActiveByTeacher(ctx context.Context, teacherID string) (*models.Session, error)
	FindByTeacherAndID(ctx context.Context, teacherID, id string) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository constructs a session repository backed by GORM.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) FindActiveByTeacher(ctx context.Context, teacherID string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).
		Where("teacher_id = ? AND is_active = ?", teacherID, true).
		Order("start_time DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) FindByTeacherAndID(ctx context.Context, teacherID, id string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).
		Where("id = ? AND teacher_id = ?", id, teacherID).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Save writes the aggregate in a single statement conditioned on the version
// the caller read. On success the in-memory version is advanced; on a lost
// race it returns ErrVersionConflict and leaves the aggregate untouched.
func (r *sessionRepository) Save(ctx context.Context, session *models.Session) error {
	readVersion := session.Version

	result := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND version = ?", session.ID, readVersion).
		Updates(map[string]interface{}{
			"start_time":    session.StartTime,
			"end_time":      session.EndTime,
			"is_active":     session.IsActive,
			"students":      session.Students,
			"graph_metrics": session.GraphMetrics,
			"version":       readVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	session.Version = readVersion + 1
	return nil
}
