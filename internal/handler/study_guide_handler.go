package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/linguahub-api/internal/dto"
	"github.com/noah-isme/linguahub-api/internal/service"
	"github.com/noah-isme/linguahub-api/internal/utils"
)

// StudyGuideHandler exposes AI generated study guides.
type StudyGuideHandler struct {
	service service.StudyGuideService
	logger  zerolog.Logger
}

// NewStudyGuideHandler constructs a study guide handler.
func NewStudyGuideHandler(service service.StudyGuideService, logger zerolog.Logger) *StudyGuideHandler {
	return &StudyGuideHandler{
		service: service,
		logger:  logger.With().Str("component", "study_guide_handler").Logger(),
	}
}

// Register binds the study guide routes.
func (h *StudyGuideHandler) Register(router fiber.Router) {
	router.Post("/", h.generate)
	router.Get("/", h.list)
	router.Get("/:id", h.get)
}

func (h *StudyGuideHandler) generate(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.StudyGuideRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	guide, err := h.service.Generate(withRequestContext(c), userID, payload)
	if err != nil {
		return respondError(c, h.logger, err, "generate study guide")
	}

	status := fiber.StatusCreated
	if guide.CacheHit {
		status = fiber.StatusOK
	}
	return utils.SendSuccessWithStatus(c, status, "study guide ready", guide)
}

func (h *StudyGuideHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	guides, err := h.service.List(withRequestContext(c), userID, limit, offset)
	if err != nil {
		return respondError(c, h.logger, err, "list study guides")
	}

	return utils.SendSuccess(c, "study guides", guides)
}

func (h *StudyGuideHandler) get(c *fiber.Ctx) error {
	actor := chatActorFromContext(c)
	if actor.ID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid study guide id")
	}

	guide, err := h.service.Get(withRequestContext(c), actor, id)
	if err != nil {
		return respondError(c, h.logger, err, "get study guide")
	}

	return utils.SendSuccess(c, "study guide", guide)
}
