package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/eyeai-api/internal/dto"
	"github.com/noah-isme/eyeai-api/internal/registry"
	"github.com/noah-isme/eyeai-api/internal/service"
	"github.com/noah-isme/eyeai-api/internal/utils"
)

// SessionHandler exposes the teacher-facing session lifecycle endpoints.
type SessionHandler struct {
	service service.SessionService
	logger  zerolog.Logger
}

// NewSessionHandler builds a session handler instance.
func NewSessionHandler(service service.SessionService, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  logger.With().Str("component", "session_handler").Logger(),
	}
}

// Register attaches the teacher routes to the provided router group.
func (h *SessionHandler) Register(router fiber.Router) {
	router.Post("/teacher/start", h.start)
	router.Post("/teacher/end", h.end)
	router.Get("/teacher/session", h.sessionData)
	router.Get("/students/count", h.studentCount)
	router.Get("/sessions/:id/summary", h.summary)
}

func (h *SessionHandler) start(c *fiber.Ctx) error {
	var payload dto.StartSessionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	started, err := h.service.StartSession(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "session started", started)
}

func (h *SessionHandler) end(c *fiber.Ctx) error {
	var payload dto.EndSessionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	summary, err := h.service.EndSession(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "session ended", summary)
}

func (h *SessionHandler) sessionData(c *fiber.Ctx) error {
	teacherID := strings.TrimSpace(c.Query("teacher_id"))
	if teacherID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "teacher_id required")
	}

	data, err := h.service.SessionData(c.UserContext(), teacherID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "session data", data)
}

func (h *SessionHandler) studentCount(c *fiber.Ctx) error {
	teacherID := strings.TrimSpace(c.Query("teacher_id"))
	if teacherID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "teacher_id required")
	}

	count, err := h.service.ActiveStudentCount(c.UserContext(), teacherID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "student count", dto.StudentCountResponse{Count: count})
}

func (h *SessionHandler) summary(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("id"))
	teacherID := strings.TrimSpace(c.Query("teacher_id"))
	if teacherID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "teacher_id required")
	}

	summary, err := h.service.SessionSummary(c.UserContext(), teacherID, sessionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "session summary", summary)
}

func (h *SessionHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrNoActiveSession):
		return utils.SendError(c, fiber.StatusNotFound, "no active session found")
	case errors.Is(err, service.ErrSessionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrSessionStillActive):
		return utils.SendError(c, fiber.StatusConflict, "session is still active")
	case errors.Is(err, registry.ErrTeacherBusy):
		return utils.SendError(c, fiber.StatusConflict, "teacher already has an active session")
	case errors.Is(err, service.ErrUpdateContention):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "session busy, retry the request")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
