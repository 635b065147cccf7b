package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/linguahub-api/internal/dto"
	"github.com/noah-isme/linguahub-api/internal/service"
	"github.com/noah-isme/linguahub-api/internal/utils"
)

// MessageHandler exposes the message lifecycle endpoints.
type MessageHandler struct {
	service service.MessageService
	logger  zerolog.Logger
}

// NewMessageHandler constructs a message handler.
func NewMessageHandler(service service.MessageService, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		service: service,
		logger:  logger.With().Str("component", "message_handler").Logger(),
	}
}

// RegisterRoomRoutes binds history and send under a room group. sendGuards run
// before message creation, e.g. a rate limiter.
func (h *MessageHandler) RegisterRoomRoutes(router fiber.Router, sendGuards ...fiber.Handler) {
	router.Get("/:id/messages", h.history)

	handlers := append(append([]fiber.Handler{}, sendGuards...), h.send)
	router.Post("/:id/messages", handlers...)
}

// Register binds the per-message routes.
func (h *MessageHandler) Register(router fiber.Router) {
	router.Patch("/:id", h.edit)
	router.Delete("/:id", h.softDelete)
	router.Post("/:id/delivered", h.markDelivered)
	router.Post("/:id/read", h.markRead)
}

func (h *MessageHandler) history(c *fiber.Ctx) error {
	roomID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	query := dto.MessageHistoryQuery{RoomID: roomID}
	if before := c.Query("before"); before != "" {
		parsed, err := time.Parse(time.RFC3339Nano, before)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		query.Before = &parsed
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	query.Limit = limit

	messages, err := h.service.History(withRequestContext(c), userIDFromContext(c), query)
	if err != nil {
		return respondError(c, h.logger, err, "chat history")
	}
	return utils.SendSuccess(c, "chat history", messages)
}

func (h *MessageHandler) send(c *fiber.Ctx) error {
	roomID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SendMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	payload.RoomID = roomID

	message, err := h.service.Send(withRequestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "send message")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *MessageHandler) edit(c *fiber.Ctx) error {
	messageID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.EditMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	message, err := h.service.Edit(withRequestContext(c), messageID, userIDFromContext(c), payload.Content)
	if err != nil {
		return respondError(c, h.logger, err, "edit message")
	}
	return utils.SendSuccess(c, "message updated", message)
}

func (h *MessageHandler) softDelete(c *fiber.Ctx) error {
	messageID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	message, err := h.service.SoftDelete(withRequestContext(c), messageID, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "delete message")
	}
	return utils.SendSuccess(c, "message deleted", message)
}

func (h *MessageHandler) markDelivered(c *fiber.Ctx) error {
	messageID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	message, err := h.service.MarkDelivered(withRequestContext(c), messageID, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "mark delivered")
	}
	return utils.SendSuccess(c, "message delivered", message)
}

func (h *MessageHandler) markRead(c *fiber.Ctx) error {
	messageID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	message, err := h.service.MarkRead(withRequestContext(c), messageID, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "mark read")
	}
	return utils.SendSuccess(c, "message read", message)
}
