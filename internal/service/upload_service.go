package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/eyeai-api/internal/dto"
	"github.com/noah-isme/eyeai-api/internal/models"
	"github.com/noah-isme/eyeai-api/internal/observability"
	"github.com/noah-isme/eyeai-api/internal/repository"
)

// ErrUploadTooLarge indicates the payload exceeded the configured limit.
var ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")

// FileStorage abstracts the binary storage destination for shared files.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (url, publicID string, err error)
	Destroy(ctx context.Context, publicID string) error
}

// UploadService handles validation, storage and bookkeeping of files that
// students share with the classroom.
type UploadService interface {
	Upload(ctx context.Context, payload dto.FileUploadRequest, file *multipart.FileHeader) (dto.FileResponse, error)
	Get(ctx context.Context, id uint) (dto.FileResponse, error)
	ListBySession(ctx context.Context, teacherID, sessionID string) ([]dto.FileResponse, error)
	ListByStudent(ctx context.Context, teacherID, sessionID, studentID string) ([]dto.FileResponse, error)
	Delete(ctx context.Context, id uint) error
}

type uploadService struct {
	storage   FileStorage
	repo      repository.UploadRepository
	notifier  Notifier
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	maxSize   int64
	tracer    trace.Tracer
}

// NewUploadService constructs an upload service.
func NewUploadService(storage FileStorage, repo repository.UploadRepository, notifier Notifier, validate *validator.Validate, maxSizeMB int, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &uploadService{
		storage:   storage,
		repo:      repo,
		notifier:  notifier,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "upload_service").Logger(),
		maxSize:   int64(maxSizeMB) * 1024 * 1024,
		tracer:    otel.Tracer("github.com/noah-isme/eyeai-api/internal/service/upload"),
	}
}

func (s *uploadService) Upload(ctx context.Context, payload dto.FileUploadRequest, file *multipart.FileHeader) (dto.FileResponse, error) {
	ctx, span := s.tracer.Start(ctx, "upload.store")
	defer span.End()

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.FileResponse{}, err
	}

	if file == nil {
		err := errors.New("file is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.FileResponse{}, err
	}

	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)

	if file.Size > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.FileResponse{}, ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		return dto.FileResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		return dto.FileResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrUploadTooLarge)
		return dto.FileResponse{}, ErrUploadTooLarge
	}

	mime := mimetype.Detect(buf.Bytes())

	url, publicID, err := s.storage.Upload(ctx, file.Filename, bytes.NewReader(buf.Bytes()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.FileResponse{}, fmt.Errorf("failed to store file: %w", err)
	}

	record := models.FileUpload{
		SessionID:   payload.SessionID,
		TeacherID:   payload.TeacherID,
		StudentID:   payload.StudentID,
		StudentName: strings.TrimSpace(s.sanitizer.Sanitize(payload.StudentName)),
		FileName:    file.Filename,
		URL:         url,
		PublicID:    publicID,
		FileType:    mime.String(),
		FileSize:    int64(buf.Len()),
		Description: strings.TrimSpace(s.sanitizer.Sanitize(payload.Description)),
	}

	if err := s.repo.Create(ctx, &record); err != nil {
		span.RecordError(err)
		return dto.FileResponse{}, err
	}

	response := dto.NewFileResponse(record)
	s.notifier.Publish(ctx, payload.TeacherID, EventFileUploaded, response)

	s.logger.Info().
		Str("teacher_id", payload.TeacherID).
		Str("student_id", payload.StudentID).
		Str("file_name", record.FileName).
		Int64("size", record.FileSize).
		Msg("file shared")

	return response, nil
}

func (s *uploadService) Get(ctx context.Context, id uint) (dto.FileResponse, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return dto.FileResponse{}, err
	}
	return dto.NewFileResponse(*record), nil
}

func (s *uploadService) ListBySession(ctx context.Context, teacherID, sessionID string) ([]dto.FileResponse, error) {
	records, err := s.repo.ListBySession(ctx, teacherID, sessionID)
	if err != nil {
		return nil, err
	}
	return dto.NewFileResponseSlice(records), nil
}

func (s *uploadService) ListByStudent(ctx context.Context, teacherID, sessionID, studentID string) ([]dto.FileResponse, error) {
	records, err := s.repo.ListByStudent(ctx, teacherID, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	return dto.NewFileResponseSlice(records), nil
}

func (s *uploadService) Delete(ctx context.Context, id uint) error {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if record.PublicID != "" {
		if err := s.storage.Destroy(ctx, record.PublicID); err != nil {
			s.logger.Warn().Err(err).Str("public_id", record.PublicID).Msg("failed to remove stored binary")
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.notifier.Publish(ctx, record.TeacherID, EventFileDeleted, map[string]uint{"file_id": id})
	return nil
}
