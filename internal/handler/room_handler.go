package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/linguahub-api/internal/dto"
	"github.com/noah-isme/linguahub-api/internal/middleware"
	"github.com/noah-isme/linguahub-api/internal/models"
	"github.com/noah-isme/linguahub-api/internal/service"
	"github.com/noah-isme/linguahub-api/internal/utils"
)

// RoomHandler exposes room management and membership endpoints.
type RoomHandler struct {
	service service.MembershipService
	logger  zerolog.Logger
}

// NewRoomHandler constructs a room handler.
func NewRoomHandler(service service.MembershipService, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		service: service,
		logger:  logger.With().Str("component", "room_handler").Logger(),
	}
}

// Register binds the room routes under the provided router group.
func (h *RoomHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", middleware.RequireRole(models.RoleAdmin, models.RoleTeacher), h.create)
	router.Post("/private", h.startPrivate)
	router.Delete("/:id", middleware.RequireRole(models.RoleAdmin), h.deactivate)
	router.Post("/:id/join", h.join)
	router.Post("/:id/leave", h.leave)
	router.Post("/:id/read", h.markRead)
	router.Get("/:id/participants", h.participants)
}

func (h *RoomHandler) list(c *fiber.Ctx) error {
	rooms, err := h.service.ListRooms(withRequestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "list rooms")
	}
	return utils.SendSuccess(c, "rooms", rooms)
}

func (h *RoomHandler) create(c *fiber.Ctx) error {
	var payload dto.CreateRoomRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	room, err := h.service.CreateRoom(withRequestContext(c), chatActorFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "create room")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "room created", room)
}

func (h *RoomHandler) startPrivate(c *fiber.Ctx) error {
	var payload dto.StartPrivateChatRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	room, created, err := h.service.StartPrivateChat(withRequestContext(c), userIDFromContext(c), payload.PeerID)
	if err != nil {
		return respondError(c, h.logger, err, "start private chat")
	}
	if created {
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "private chat created", room)
	}
	return utils.SendSuccess(c, "private chat", room)
}

func (h *RoomHandler) deactivate(c *fiber.Ctx) error {
	roomID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeactivateRoom(withRequestContext(c), chatActorFromContext(c), roomID); err != nil {
		return respondError(c, h.logger, err, "deactivate room")
	}
	return utils.SendSuccess(c, "room deactivated", nil)
}

func (h *RoomHandler) join(c *fiber.Ctx) error {
	roomID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Join(withRequestContext(c), roomID, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "join room")
	}
	return utils.SendSuccess(c, result.Message, result)
}

func (h *RoomHandler) leave(c *fiber.Ctx) error {
	roomID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Leave(withRequestContext(c), roomID, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "leave room")
	}
	return utils.SendSuccess(c, result.Message, result)
}

func (h *RoomHandler) markRead(c *fiber.Ctx) error {
	roomID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.MarkRoomRead(withRequestContext(c), roomID, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "mark room read")
	}
	return utils.SendSuccess(c, result.Message, result)
}

func (h *RoomHandler) participants(c *fiber.Ctx) error {
	roomID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	participants, err := h.service.ListParticipants(withRequestContext(c), roomID, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "list participants")
	}
	return utils.SendSuccess(c, "participants", participants)
}
