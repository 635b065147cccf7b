package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/linguahub-api/internal/dto"
	"github.com/noah-isme/linguahub-api/internal/models"
	"github.com/noah-isme/linguahub-api/internal/observability"
	"github.com/noah-isme/linguahub-api/internal/repository"
)

// MembershipService manages rooms and who belongs to them.
type MembershipService interface {
	Join(ctx context.Context, roomID, userID uint) (dto.ActionResponse, error)
	Leave(ctx context.Context, roomID, userID uint) (dto.ActionResponse, error)
	MarkRoomRead(ctx context.Context, roomID, userID uint) (dto.ActionResponse, error)
	CreateRoom(ctx context.Context, actor ChatActor, payload dto.CreateRoomRequest) (dto.RoomResponse, error)
	DeactivateRoom(ctx context.Context, actor ChatActor, roomID uint) error
	ListRooms(ctx context.Context, userID uint) ([]dto.RoomResponse, error)
	ListParticipants(ctx context.Context, roomID, userID uint) ([]dto.ParticipantResponse, error)
	StartPrivateChat(ctx context.Context, userID, peerID uint) (dto.RoomResponse, bool, error)
	IsActiveMember(ctx context.Context, roomID, userID uint) (bool, error)
}

type membershipService struct {
	repo          repository.ChatRepository
	events        ChatEventPublisher
	notifications NotificationPublisher
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	sanitizer     *bluemonday.Policy
	now           func() time.Time
}

// NewMembershipService constructs the room membership manager. events and
// notifications may be nil.
func NewMembershipService(repo repository.ChatRepository, events ChatEventPublisher, notifications NotificationPublisher, validate *validator.Validate, logger zerolog.Logger) MembershipService {
	if events == nil {
		events = noopEventPublisher{}
	}

	return &membershipService{
		repo:          repo,
		events:        events,
		notifications: notifications,
		validator:     validate,
		logger:        logger.With().Str("component", "membership_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/linguahub-api/internal/service/membership"),
		sanitizer:     bluemonday.StrictPolicy(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *membershipService) Join(ctx context.Context, roomID, userID uint) (resp dto.ActionResponse, err error) {
	defer func() { recordChatOperation("room_join", err) }()
	if userID == 0 {
		return dto.ActionResponse{}, ErrUnauthorized
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.room.join", trace.WithAttributes(
		attribute.Int64("chat.room_id", int64(roomID)),
		attribute.Int64("chat.user_id", int64(userID)),
	))
	defer span.End()

	var announcement models.Message
	joined := false
	err = s.repo.Transaction(spanCtx, func(repo repository.ChatRepository) error {
		if _, err := repo.FindActiveRoom(spanCtx, roomID); err != nil {
			return notFound(err, "room")
		}
		user, err := repo.FindUser(spanCtx, userID)
		if err != nil {
			return notFound(err, "user")
		}

		participant, err := repo.FindParticipant(spanCtx, roomID, userID)
		switch {
		case err == nil && participant.Active:
			return nil
		case err == nil:
			if err := repo.SetParticipantActive(spanCtx, participant.ID, true); err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := repo.CreateParticipant(spanCtx, &models.Participant{RoomID: roomID, UserID: userID, Active: true}); err != nil {
				return err
			}
		default:
			return err
		}

		announcement = systemMessage(roomID, userID, fmt.Sprintf("%s joined the room", user.Name))
		if err := repo.CreateMessage(spanCtx, &announcement); err != nil {
			return err
		}
		joined = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return dto.ActionResponse{}, err
	}

	if !joined {
		return dto.ActionResponse{Message: "already a member of this room"}, nil
	}

	observability.ChatMessages().WithLabelValues(models.MessageTypeSystem).Inc()
	s.events.PublishRoomEvent(spanCtx, dto.ChatEvent{
		Event:  dto.ChatEventRoomJoined,
		RoomID: roomID,
		Data:   dto.NewMessageResponse(announcement),
		SentAt: s.now(),
	})
	s.logger.Info().Uint("room_id", roomID).Uint("user_id", userID).Msg("user joined room")

	return dto.ActionResponse{Message: "joined room successfully"}, nil
}

func (s *membershipService) Leave(ctx context.Context, roomID, userID uint) (resp dto.ActionResponse, err error) {
	defer func() { recordChatOperation("room_leave", err) }()
	if userID == 0 {
		return dto.ActionResponse{}, ErrUnauthorized
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.room.leave", trace.WithAttributes(
		attribute.Int64("chat.room_id", int64(roomID)),
		attribute.Int64("chat.user_id", int64(userID)),
	))
	defer span.End()

	var announcement models.Message
	err = s.repo.Transaction(spanCtx, func(repo repository.ChatRepository) error {
		participant, err := repo.FindActiveParticipant(spanCtx, roomID, userID)
		if err != nil {
			return notFound(err, "membership")
		}
		user, err := repo.FindUser(spanCtx, userID)
		if err != nil {
			return notFound(err, "user")
		}
		if err := repo.SetParticipantActive(spanCtx, participant.ID, false); err != nil {
			return err
		}

		announcement = systemMessage(roomID, userID, fmt.Sprintf("%s left the room", user.Name))
		return repo.CreateMessage(spanCtx, &announcement)
	})
	if err != nil {
		span.RecordError(err)
		return dto.ActionResponse{}, err
	}

	s.events.RevokeMember(spanCtx, roomID, userID)
	observability.ChatMessages().WithLabelValues(models.MessageTypeSystem).Inc()
	s.events.PublishRoomEvent(spanCtx, dto.ChatEvent{
		Event:  dto.ChatEventRoomLeft,
		RoomID: roomID,
		Data:   dto.NewMessageResponse(announcement),
		SentAt: s.now(),
	})
	s.logger.Info().Uint("room_id", roomID).Uint("user_id", userID).Msg("user left room")

	return dto.ActionResponse{Message: "left room successfully"}, nil
}

// MarkRoomRead stamps last_seen for an active member. Callers without an
// active membership get the same response and nothing is written.
func (s *membershipService) MarkRoomRead(ctx context.Context, roomID, userID uint) (resp dto.ActionResponse, err error) {
	defer func() { recordChatOperation("room_read", err) }()
	if userID == 0 {
		return dto.ActionResponse{}, ErrUnauthorized
	}

	updated, err := s.repo.TouchLastSeen(ctx, roomID, userID, s.now())
	if err != nil {
		return dto.ActionResponse{}, err
	}
	if updated == 0 {
		s.logger.Debug().Uint("room_id", roomID).Uint("user_id", userID).Msg("mark room read without active membership")
	}

	return dto.ActionResponse{Message: "room marked as read"}, nil
}

func (s *membershipService) CreateRoom(ctx context.Context, actor ChatActor, payload dto.CreateRoomRequest) (resp dto.RoomResponse, err error) {
	defer func() { recordChatOperation("room_create", err) }()
	if actor.ID == 0 {
		return dto.RoomResponse{}, ErrUnauthorized
	}
	if !isStaffRole(actor.Role) {
		return dto.RoomResponse{}, fmt.Errorf("%w: only staff can create rooms", ErrForbidden)
	}

	payload.Name = strings.TrimSpace(s.sanitizer.Sanitize(payload.Name))
	payload.Description = strings.TrimSpace(s.sanitizer.Sanitize(payload.Description))
	payload.Type = strings.ToLower(strings.TrimSpace(payload.Type))
	if err := s.validator.Struct(payload); err != nil {
		return dto.RoomResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.room.create", trace.WithAttributes(
		attribute.String("chat.room_type", payload.Type),
	))
	defer span.End()

	room := models.Room{
		Name:        payload.Name,
		Description: payload.Description,
		Type:        payload.Type,
		Active:      true,
		CreatedByID: actor.ID,
	}
	err = s.repo.Transaction(spanCtx, func(repo repository.ChatRepository) error {
		if err := repo.CreateRoom(spanCtx, &room); err != nil {
			return err
		}
		return repo.CreateParticipant(spanCtx, &models.Participant{RoomID: room.ID, UserID: actor.ID, Active: true})
	})
	if err != nil {
		span.RecordError(err)
		return dto.RoomResponse{}, err
	}

	s.logger.Info().Uint("room_id", room.ID).Uint("user_id", actor.ID).Str("type", room.Type).Msg("room created")
	return dto.NewRoomResponse(room), nil
}

func (s *membershipService) DeactivateRoom(ctx context.Context, actor ChatActor, roomID uint) (err error) {
	defer func() { recordChatOperation("room_deactivate", err) }()
	if actor.ID == 0 {
		return ErrUnauthorized
	}
	if strings.ToLower(actor.Role) != models.RoleAdmin {
		return fmt.Errorf("%w: only admins can deactivate rooms", ErrForbidden)
	}

	if err := s.repo.UpdateRoomActive(ctx, roomID, false); err != nil {
		return notFound(err, "room")
	}
	s.events.CloseRoom(ctx, roomID)

	s.logger.Info().Uint("room_id", roomID).Uint("user_id", actor.ID).Msg("room deactivated")
	return nil
}

func (s *membershipService) ListRooms(ctx context.Context, userID uint) ([]dto.RoomResponse, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}

	rooms, err := s.repo.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]dto.RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response := dto.NewRoomResponse(room)
		participant, err := s.repo.FindActiveParticipant(ctx, room.ID, userID)
		if err != nil {
			return nil, err
		}
		unread, err := s.repo.CountUnread(ctx, room.ID, userID, participant.LastSeen)
		if err != nil {
			return nil, err
		}
		response.UnreadCount = unread
		out = append(out, response)
	}

	return out, nil
}

func (s *membershipService) ListParticipants(ctx context.Context, roomID, userID uint) ([]dto.ParticipantResponse, error) {
	member, err := s.IsActiveMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, fmt.Errorf("%w: not a member of this room", ErrForbidden)
	}

	participants, err := s.repo.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return dto.NewParticipantResponseSlice(participants), nil
}

// StartPrivateChat returns the private room shared by the pair, creating it
// when none exists. The boolean reports whether a room was created.
func (s *membershipService) StartPrivateChat(ctx context.Context, userID, peerID uint) (resp dto.RoomResponse, created bool, err error) {
	defer func() { recordChatOperation("private_start", err) }()
	if userID == 0 {
		return dto.RoomResponse{}, false, ErrUnauthorized
	}
	if peerID == 0 || peerID == userID {
		return dto.RoomResponse{}, false, fmt.Errorf("%w: peer must be another user", ErrValidation)
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.room.private", trace.WithAttributes(
		attribute.Int64("chat.user_id", int64(userID)),
		attribute.Int64("chat.peer_id", int64(peerID)),
	))
	defer span.End()

	var room models.Room
	var caller models.User
	err = s.repo.Transaction(spanCtx, func(repo repository.ChatRepository) error {
		var err error
		caller, err = repo.FindUser(spanCtx, userID)
		if err != nil {
			return notFound(err, "user")
		}
		peer, err := repo.FindUser(spanCtx, peerID)
		if err != nil {
			return notFound(err, "peer")
		}

		room, err = repo.FindPrivateRoom(spanCtx, userID, peerID)
		if err == nil {
			if !room.Active {
				if err := repo.UpdateRoomActive(spanCtx, room.ID, true); err != nil {
					return err
				}
				room.Active = true
			}
			return reactivateParticipants(spanCtx, repo, room.ID, userID, peerID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		room = models.Room{
			Name:        s.sanitizer.Sanitize(fmt.Sprintf("%s & %s", caller.Name, peer.Name)),
			Type:        models.RoomTypePrivate,
			Active:      true,
			CreatedByID: userID,
		}
		if err := repo.CreateRoom(spanCtx, &room); err != nil {
			return err
		}
		for _, id := range []uint{userID, peerID} {
			if err := repo.CreateParticipant(spanCtx, &models.Participant{RoomID: room.ID, UserID: id, Active: true}); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return dto.RoomResponse{}, false, err
	}

	if created && s.notifications != nil {
		payload := dto.NotificationCreateRequest{
			UserID:  peerID,
			Type:    NotificationTypeChatPrivate,
			Message: fmt.Sprintf("%s started a private chat with you", caller.Name),
		}
		if _, err := s.notifications.Publish(spanCtx, payload); err != nil {
			s.logger.Warn().Err(err).Uint("user_id", peerID).Msg("failed to publish private chat notification")
		}
	}

	return dto.NewRoomResponse(room), created, nil
}

// IsActiveMember reports whether the user is an active participant of an
// active room, using a fresh lookup.
func (s *membershipService) IsActiveMember(ctx context.Context, roomID, userID uint) (bool, error) {
	if userID == 0 {
		return false, ErrUnauthorized
	}
	if _, err := s.repo.FindActiveRoom(ctx, roomID); err != nil {
		return false, notFound(err, "room")
	}
	if _, err := s.repo.FindActiveParticipant(ctx, roomID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func reactivateParticipants(ctx context.Context, repo repository.ChatRepository, roomID uint, userIDs ...uint) error {
	for _, id := range userIDs {
		participant, err := repo.FindParticipant(ctx, roomID, id)
		if err != nil {
			return err
		}
		if participant.Active {
			continue
		}
		if err := repo.SetParticipantActive(ctx, participant.ID, true); err != nil {
			return err
		}
	}
	return nil
}

func systemMessage(roomID, userID uint, text string) models.Message {
	return models.Message{
		RoomID:   roomID,
		SenderID: userID,
		Content:  &text,
		Type:     models.MessageTypeSystem,
	}
}

func isStaffRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case models.RoleAdmin, models.RoleTeacher:
		return true
	default:
		return false
	}
}
