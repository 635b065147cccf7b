package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/linguahub-api/internal/middleware"
	"github.com/noah-isme/linguahub-api/internal/service"
	"github.com/noah-isme/linguahub-api/internal/utils"
)

// ChatHandler wires the websocket upgrade for room events.
type ChatHandler struct {
	realtime   service.RealtimeService
	membership service.MembershipService
	logger     zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(realtime service.RealtimeService, membership service.MembershipService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		realtime:   realtime,
		membership: membership,
		logger:     logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Use("/ws", h.authorizeUpgrade)
	router.Get("/ws", websocket.New(h.handleConnection))
}

// authorizeUpgrade checks membership against the participant table before the
// protocol switch so failures still get an HTTP status.
func (h *ChatHandler) authorizeUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	roomID, err := strconv.ParseUint(strings.TrimSpace(c.Query("room_id")), 10, 64)
	if err != nil || roomID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "room_id required")
	}

	ctx := withRequestContext(c)
	member, err := h.membership.IsActiveMember(ctx, uint(roomID), userID)
	if err != nil {
		return respondError(c, h.logger, err, "chat upgrade")
	}
	if !member {
		return utils.SendError(c, fiber.StatusForbidden, "not a member of this room")
	}

	c.Locals("room_id", uint(roomID))
	c.Locals("request_ctx", ctx)
	return c.Next()
}

func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(uint)
	roomID, _ := conn.Locals("room_id").(uint)
	role, _ := conn.Locals("user_role").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	opts := service.ChatConnectionOptions{
		UserID:        userID,
		Role:          role,
		RoomID:        roomID,
		CorrelationID: middleware.CorrelationIDFromContext(baseCtx),
		Context:       baseCtx,
	}

	h.logger.Info().Uint("user_id", userID).Uint("room_id", roomID).Msg("chat websocket connected")
	h.realtime.ServeConnection(conn, opts)
	h.logger.Info().Uint("user_id", userID).Uint("room_id", roomID).Msg("chat websocket disconnected")
}
