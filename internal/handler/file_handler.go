package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/eyeai-api/internal/dto"
	"github.com/noah-isme/eyeai-api/internal/repository"
	"github.com/noah-isme/eyeai-api/internal/service"
	"github.com/noah-isme/eyeai-api/internal/utils"
)

// FileHandler exposes the file-sharing endpoints.
type FileHandler struct {
	service service.UploadService
	logger  zerolog.Logger
}

// NewFileHandler builds a file handler instance.
func NewFileHandler(service service.UploadService, logger zerolog.Logger) *FileHandler {
	return &FileHandler{
		service: service,
		logger:  logger.With().Str("component", "file_handler").Logger(),
	}
}

// Register attaches the file routes to the provided router group.
func (h *FileHandler) Register(router fiber.Router) {
	router.Post("/upload", h.upload)
	router.Get("/download/:id", h.download)
	router.Get("/session", h.listBySession)
	router.Get("/student", h.listByStudent)
	router.Delete("/:id", h.remove)
}

func (h *FileHandler) upload(c *fiber.Ctx) error {
	payload := dto.FileUploadRequest{
		TeacherID:   strings.TrimSpace(c.FormValue("teacher_id")),
		SessionID:   strings.TrimSpace(c.FormValue("session_id")),
		StudentID:   strings.TrimSpace(c.FormValue("student_id")),
		StudentName: strings.TrimSpace(c.FormValue("student_name")),
		Description: strings.TrimSpace(c.FormValue("description")),
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	uploaded, err := h.service.Upload(c.UserContext(), payload, file)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendCreated(c, "file uploaded", uploaded)
}

// download resolves a file id and redirects the caller to the stored binary.
func (h *FileHandler) download(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid file id")
	}

	file, err := h.service.Get(c.UserContext(), uint(id))
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Redirect(file.URL, fiber.StatusFound)
}

func (h *FileHandler) listBySession(c *fiber.Ctx) error {
	teacherID := strings.TrimSpace(c.Query("teacher_id"))
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if teacherID == "" || sessionID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "teacher_id and session_id required")
	}

	files, err := h.service.ListBySession(c.UserContext(), teacherID, sessionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "session files", files)
}

func (h *FileHandler) listByStudent(c *fiber.Ctx) error {
	teacherID := strings.TrimSpace(c.Query("teacher_id"))
	sessionID := strings.TrimSpace(c.Query("session_id"))
	studentID := strings.TrimSpace(c.Query("student_id"))
	if teacherID == "" || sessionID == "" || studentID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "teacher_id, session_id and student_id required")
	}

	files, err := h.service.ListByStudent(c.UserContext(), teacherID, sessionID, studentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "student files", files)
}

func (h *FileHandler) remove(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid file id")
	}

	if err := h.service.Delete(c.UserContext(), uint(id)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "file deleted", nil)
}

func (h *FileHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, repository.ErrFileNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "file not found")
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, "file exceeds maximum allowed size")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
