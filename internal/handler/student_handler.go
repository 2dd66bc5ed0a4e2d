package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/eyeai-api/internal/dto"
	"github.com/noah-isme/eyeai-api/internal/service"
	"github.com/noah-isme/eyeai-api/internal/utils"
)

// StudentHandler exposes the student-facing session endpoints.
type StudentHandler struct {
	service service.SessionService
	logger  zerolog.Logger
}

// NewStudentHandler builds a student handler instance.
func NewStudentHandler(service service.SessionService, logger zerolog.Logger) *StudentHandler {
	return &StudentHandler{
		service: service,
		logger:  logger.With().Str("component", "student_handler").Logger(),
	}
}

// Register attaches the student routes to the provided router group.
func (h *StudentHandler) Register(router fiber.Router) {
	router.Post("/student/join", h.join)
	router.Post("/student/attention", h.attention)
	router.Post("/student/camera", h.camera)
	router.Post("/student/leave", h.leave)
}

func (h *StudentHandler) join(c *fiber.Ctx) error {
	var payload dto.JoinSessionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	joined, err := h.service.JoinStudent(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "joined session", joined)
}

func (h *StudentHandler) attention(c *fiber.Ctx) error {
	var payload dto.AttentionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	metrics, err := h.service.RecordAttention(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attention recorded", metrics)
}

func (h *StudentHandler) camera(c *fiber.Ctx) error {
	var payload dto.CameraStatusRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	status, err := h.service.UpdateCameraStatus(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "camera status updated", status)
}

func (h *StudentHandler) leave(c *fiber.Ctx) error {
	var payload dto.LeaveSessionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.service.RemoveStudent(c.UserContext(), payload); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "left session", nil)
}

func (h *StudentHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrNoActiveSession):
		return utils.SendError(c, fiber.StatusNotFound, "no active session found")
	case errors.Is(err, service.ErrStudentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "student not found in session")
	case errors.Is(err, service.ErrDuplicateStudent):
		return utils.SendError(c, fiber.StatusConflict, "student already joined session")
	case errors.Is(err, service.ErrUpdateContention):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "session busy, retry the request")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
