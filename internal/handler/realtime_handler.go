package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/eyeai-api/internal/middleware"
	"github.com/noah-isme/eyeai-api/internal/service"
)

// RealtimeHandler wires the websocket upgrade for dashboard observers and
// student clients.
type RealtimeHandler struct {
	service service.RealtimeService
	logger  zerolog.Logger
}

// NewRealtimeHandler creates a realtime handler instance.
func NewRealtimeHandler(service service.RealtimeService, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		service: service,
		logger:  logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	teacherID := strings.TrimSpace(conn.Query("teacher_id"))
	if teacherID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusBadRequest, "teacher_id required"))
		_ = conn.Close()
		return
	}

	role := strings.TrimSpace(conn.Query("role"))
	if role == "" {
		role = "teacher"
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	opts := service.RealtimeConnectionOptions{
		Role:        role,
		TeacherID:   teacherID,
		StudentID:   strings.TrimSpace(conn.Query("student_id")),
		StudentName: strings.TrimSpace(conn.Query("student_name")),
		Context:     baseCtx,
	}

	h.logger.Info().Str("teacher_id", teacherID).Str("role", role).Msg("realtime client connected")
	h.service.ServeConnection(conn, opts)
	h.logger.Info().Str("teacher_id", teacherID).Str("role", role).Msg("realtime client disconnected")
}
