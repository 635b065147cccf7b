package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

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

const maxMessageLength = 4000

// MessageService implements the message lifecycle: send, history, edit,
// soft delete and delivery/read tracking.
type MessageService interface {
	Send(ctx context.Context, userID uint, payload dto.SendMessageRequest) (dto.MessageResponse, error)
	History(ctx context.Context, userID uint, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error)
	Edit(ctx context.Context, messageID, userID uint, content string) (dto.MessageResponse, error)
	SoftDelete(ctx context.Context, messageID, userID uint) (dto.MessageResponse, error)
	MarkDelivered(ctx context.Context, messageID, userID uint) (dto.MessageResponse, error)
	MarkRead(ctx context.Context, messageID, userID uint) (dto.MessageResponse, error)
}

type messageService struct {
	repo          repository.ChatRepository
	events        ChatEventPublisher
	notifications NotificationPublisher
	historyLimit  int
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	sanitizer     *bluemonday.Policy
	now           func() time.Time
}

// NewMessageService constructs the message lifecycle manager. events and
// notifications may be nil.
func NewMessageService(repo repository.ChatRepository, events ChatEventPublisher, notifications NotificationPublisher, historyLimit int, validate *validator.Validate, logger zerolog.Logger) MessageService {
	if events == nil {
		events = noopEventPublisher{}
	}
	if historyLimit <= 0 || historyLimit > 100 {
		historyLimit = 50
	}

	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	return &messageService{
		repo:          repo,
		events:        events,
		notifications: notifications,
		historyLimit:  historyLimit,
		validator:     validate,
		logger:        logger.With().Str("component", "message_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/linguahub-api/internal/service/message"),
		sanitizer:     sanitizer,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *messageService) Send(ctx context.Context, userID uint, payload dto.SendMessageRequest) (resp dto.MessageResponse, err error) {
	defer func() { recordChatOperation("message_send", err) }()
	if userID == 0 {
		return dto.MessageResponse{}, ErrUnauthorized
	}

	payload.AttachmentURL = strings.TrimSpace(payload.AttachmentURL)
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if content == "" && payload.AttachmentURL == "" {
		return dto.MessageResponse{}, fmt.Errorf("%w: content or attachment is required", ErrValidation)
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.message.send", trace.WithAttributes(
		attribute.Int64("chat.room_id", int64(payload.RoomID)),
		attribute.Int64("chat.sender_id", int64(userID)),
	))
	defer span.End()

	room, err := s.repo.FindActiveRoom(spanCtx, payload.RoomID)
	if err != nil {
		return dto.MessageResponse{}, notFound(err, "room")
	}
	if err := s.requireActiveParticipant(spanCtx, s.repo, room.ID, userID); err != nil {
		return dto.MessageResponse{}, err
	}

	message := models.Message{
		RoomID:   room.ID,
		SenderID: userID,
		Type:     models.MessageTypeNormal,
	}
	if content != "" {
		message.Content = &content
	}
	if payload.AttachmentURL != "" {
		attachment := payload.AttachmentURL
		message.AttachmentURL = &attachment
	}

	if err := s.repo.CreateMessage(spanCtx, &message); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	stored, err := s.repo.FindMessageWithSender(spanCtx, message.ID)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	response := dto.NewMessageResponse(stored)
	observability.ChatMessages().WithLabelValues(models.MessageTypeNormal).Inc()
	s.publish(spanCtx, dto.ChatEventMessageCreated, response)

	if room.Type == models.RoomTypePrivate {
		s.notifyPrivatePeers(spanCtx, stored)
	}

	return response, nil
}

func (s *messageService) History(ctx context.Context, userID uint, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if query.Limit == 0 {
		query.Limit = s.historyLimit
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if _, err := s.repo.FindActiveRoom(ctx, query.RoomID); err != nil {
		return nil, notFound(err, "room")
	}
	if err := s.requireActiveParticipant(ctx, s.repo, query.RoomID, userID); err != nil {
		return nil, err
	}

	before := time.Time{}
	if query.Before != nil {
		before = *query.Before
	}

	messages, err := s.repo.ListMessages(ctx, query.RoomID, before, query.Limit)
	if err != nil {
		return nil, err
	}

	return dto.NewMessageResponseSlice(messages), nil
}

func (s *messageService) Edit(ctx context.Context, messageID, userID uint, content string) (resp dto.MessageResponse, err error) {
	defer func() { recordChatOperation("message_edit", err) }()
	if userID == 0 {
		return dto.MessageResponse{}, ErrUnauthorized
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.message.edit", trace.WithAttributes(
		attribute.Int64("chat.message_id", int64(messageID)),
	))
	defer span.End()

	message, err := s.repo.FindMessage(spanCtx, messageID)
	if err != nil {
		return dto.MessageResponse{}, notFound(err, "message")
	}
	if message.SenderID != userID {
		return dto.MessageResponse{}, fmt.Errorf("%w: only the sender can edit a message", ErrForbidden)
	}
	if message.Deleted {
		return dto.MessageResponse{}, fmt.Errorf("%w: message has been deleted", ErrInvalidState)
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))
	if clean == "" {
		return dto.MessageResponse{}, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if utf8.RuneCountInString(clean) > maxMessageLength {
		return dto.MessageResponse{}, fmt.Errorf("%w: content exceeds %d characters", ErrValidation, maxMessageLength)
	}

	err = s.repo.UpdateMessageFields(spanCtx, message.ID, map[string]interface{}{
		"content":   clean,
		"edited_at": s.now(),
	})
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, notFound(err, "message")
	}

	updated, err := s.repo.FindMessageDetailed(spanCtx, message.ID)
	if err != nil {
		return dto.MessageResponse{}, notFound(err, "message")
	}

	response := dto.NewMessageResponse(updated)
	s.publish(spanCtx, dto.ChatEventMessageUpdated, response)
	return response, nil
}

// SoftDelete replaces the content with a placeholder and drops the
// attachment. Deleting an already deleted message rewrites the same values.
func (s *messageService) SoftDelete(ctx context.Context, messageID, userID uint) (resp dto.MessageResponse, err error) {
	defer func() { recordChatOperation("message_delete", err) }()
	if userID == 0 {
		return dto.MessageResponse{}, ErrUnauthorized
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.message.delete", trace.WithAttributes(
		attribute.Int64("chat.message_id", int64(messageID)),
	))
	defer span.End()

	message, err := s.repo.FindMessage(spanCtx, messageID)
	if err != nil {
		return dto.MessageResponse{}, notFound(err, "message")
	}
	if message.SenderID != userID {
		return dto.MessageResponse{}, fmt.Errorf("%w: only the sender can delete a message", ErrForbidden)
	}

	err = s.repo.UpdateMessageFields(spanCtx, message.ID, map[string]interface{}{
		"content":        models.DeletedMessagePlaceholder,
		"attachment_url": nil,
		"deleted":        true,
	})
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, notFound(err, "message")
	}

	updated, err := s.repo.FindMessageWithSender(spanCtx, message.ID)
	if err != nil {
		return dto.MessageResponse{}, notFound(err, "message")
	}

	response := dto.NewMessageResponse(updated)
	s.publish(spanCtx, dto.ChatEventMessageDeleted, response)
	return response, nil
}

// MarkDelivered records the first delivery of a message. Later calls leave
// delivered_at untouched.
func (s *messageService) MarkDelivered(ctx context.Context, messageID, userID uint) (resp dto.MessageResponse, err error) {
	defer func() { recordChatOperation("message_delivered", err) }()
	if userID == 0 {
		return dto.MessageResponse{}, ErrUnauthorized
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.message.delivered", trace.WithAttributes(
		attribute.Int64("chat.message_id", int64(messageID)),
	))
	defer span.End()

	message, err := s.repo.FindMessage(spanCtx, messageID)
	if err != nil {
		return dto.MessageResponse{}, notFound(err, "message")
	}
	if err := s.requireActiveParticipant(spanCtx, s.repo, message.RoomID, userID); err != nil {
		return dto.MessageResponse{}, err
	}

	changed := false
	if message.DeliveredAt == nil {
		changed, err = s.repo.SetDeliveredAt(spanCtx, message.ID, s.now())
		if err != nil {
			span.RecordError(err)
			return dto.MessageResponse{}, err
		}
	}

	updated, err := s.repo.FindMessageDetailed(spanCtx, message.ID)
	if err != nil {
		return dto.MessageResponse{}, notFound(err, "message")
	}

	response := dto.NewMessageResponse(updated)
	if changed {
		s.publish(spanCtx, dto.ChatEventMessageDelivered, response)
	}
	return response, nil
}

// MarkRead stamps the message's seen_at and upserts the caller's receipt in
// one transaction. seen_at reflects the most recent reader of any participant.
func (s *messageService) MarkRead(ctx context.Context, messageID, userID uint) (resp dto.MessageResponse, err error) {
	defer func() { recordChatOperation("message_read", err) }()
	if userID == 0 {
		return dto.MessageResponse{}, ErrUnauthorized
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.message.read", trace.WithAttributes(
		attribute.Int64("chat.message_id", int64(messageID)),
		attribute.Int64("chat.user_id", int64(userID)),
	))
	defer span.End()

	message, err := s.repo.FindMessage(spanCtx, messageID)
	if err != nil {
		return dto.MessageResponse{}, notFound(err, "message")
	}

	readAt := s.now()
	err = s.repo.Transaction(spanCtx, func(repo repository.ChatRepository) error {
		if err := s.requireActiveParticipant(spanCtx, repo, message.RoomID, userID); err != nil {
			return err
		}
		if err := repo.UpdateMessageFields(spanCtx, message.ID, map[string]interface{}{"seen_at": readAt}); err != nil {
			return notFound(err, "message")
		}
		return repo.UpsertReadReceipt(spanCtx, message.ID, userID, readAt)
	})
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	updated, err := s.repo.FindMessageDetailed(spanCtx, message.ID)
	if err != nil {
		return dto.MessageResponse{}, notFound(err, "message")
	}

	response := dto.NewMessageResponse(updated)
	s.publish(spanCtx, dto.ChatEventMessageRead, response)
	return response, nil
}

func (s *messageService) requireActiveParticipant(ctx context.Context, repo repository.ChatRepository, roomID, userID uint) error {
	if _, err := repo.FindActiveParticipant(ctx, roomID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: not an active participant of room %d", ErrForbidden, roomID)
		}
		return err
	}
	return nil
}

func (s *messageService) publish(ctx context.Context, event string, message dto.MessageResponse) {
	s.events.PublishRoomEvent(ctx, dto.ChatEvent{
		Event:  event,
		RoomID: message.RoomID,
		Data:   message,
		SentAt: s.now(),
	})
}

func (s *messageService) notifyPrivatePeers(ctx context.Context, message models.Message) {
	if s.notifications == nil {
		return
	}

	participants, err := s.repo.ListParticipants(ctx, message.RoomID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("room_id", message.RoomID).Msg("failed to load private room participants")
		return
	}

	for _, participant := range participants {
		if participant.UserID == message.SenderID {
			continue
		}
		payload := dto.NotificationCreateRequest{
			UserID:  participant.UserID,
			Type:    NotificationTypeChatMessage,
			Message: fmt.Sprintf("New message from %s", message.Sender.Name),
		}
		if _, err := s.notifications.Publish(ctx, payload); err != nil {
			s.logger.Warn().Err(err).Uint("user_id", participant.UserID).Msg("failed to publish chat notification")
		}
	}
}
