package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/linguahub-api/internal/dto"
	"github.com/noah-isme/linguahub-api/internal/models"
	"github.com/noah-isme/linguahub-api/internal/observability"
	"github.com/noah-isme/linguahub-api/internal/repository"
)

const (
	notificationBufferSize = 16
	notificationTypeLimit  = 64

	// NotificationTypeChatMessage is sent to the peer of a private room.
	NotificationTypeChatMessage = "chat_message"
	// NotificationTypeChatPrivate is sent when someone opens a private room.
	NotificationTypeChatPrivate = "chat_private"
)

// NotificationService stores per-user chat notifications and streams them to
// open SSE connections on any node.
type NotificationService interface {
	NotificationPublisher
	List(ctx context.Context, userID uint, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
	Subscribe(userID uint) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

type notificationService struct {
	repo      repository.NotificationRepository
	fanout    *fanout
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
	feeds     *notificationFeeds
}

// notificationFeeds holds the open streams of each user on this node.
type notificationFeeds struct {
	mu      sync.RWMutex
	streams map[uint]map[chan dto.NotificationResponse]struct{}
	log     zerolog.Logger
}

// NewNotificationService constructs the notification service. redisClient and
// natsConn may be nil, in which case streams only see notifications created on
// this node.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, natsConn *nats.Conn, channelBase string, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	serviceLogger := logger.With().Str("component", "notification_service").Logger()

	return &notificationService{
		repo:      repo,
		fanout:    newFanout(redisClient, natsConn, channelBase, "notifications", serviceLogger),
		validator: validate,
		logger:    serviceLogger,
		tracer:    otel.Tracer("github.com/noah-isme/linguahub-api/internal/service/notification"),
		sanitizer: bluemonday.StrictPolicy(),
		feeds: &notificationFeeds{
			streams: make(map[uint]map[chan dto.NotificationResponse]struct{}),
			log:     serviceLogger,
		},
	}
}

func (s *notificationService) Start(ctx context.Context) {
	s.fanout.start(ctx, s.handleRemote)
}

// Publish stores the notification and pushes it to the recipient's streams.
// Type is normalised to lower case so metrics labels stay bounded.
func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	payload.Type = strings.ToLower(strings.TrimSpace(payload.Type))
	payload.Message = strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(
		attribute.Int64("notification.user_id", int64(payload.UserID)),
		attribute.String("notification.type", payload.Type),
	))
	defer span.End()

	model := models.Notification{
		UserID:  payload.UserID,
		Type:    payload.Type,
		Message: payload.Message,
	}
	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	s.feeds.push(response)
	if err := s.fanout.publish(spanCtx, response); err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Uint("user_id", response.UserID).Msg("failed to fan out notification")
	}
	observability.NotificationsPublishedTotal().WithLabelValues(response.Type).Inc()

	return response, nil
}

func (s *notificationService) List(ctx context.Context, userID uint, limit, offset int) ([]dto.NotificationResponse, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}

	notifications, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return dto.NewNotificationResponseSlice(notifications), nil
}

// MarkRead only touches notifications owned by userID; anything else is
// reported as not found.
func (s *notificationService) MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error) {
	if userID == 0 {
		return dto.NotificationResponse{}, ErrUnauthorized
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.Int64("notification.id", int64(id)),
		attribute.Int64("notification.user_id", int64(userID)),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, userID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, notFound(err, "notification")
	}
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	if userID == 0 {
		return 0, ErrUnauthorized
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_all_read", trace.WithAttributes(
		attribute.Int64("notification.user_id", int64(userID)),
	))
	defer span.End()

	updated, err := s.repo.MarkAllRead(spanCtx, userID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	s.logger.Debug().Uint("user_id", userID).Int64("updated", updated).Msg("notifications marked read")
	return updated, nil
}

// Subscribe opens a stream for userID. The returned cancel func closes the
// stream and is safe to call more than once.
func (s *notificationService) Subscribe(userID uint) (<-chan dto.NotificationResponse, func()) {
	stream := make(chan dto.NotificationResponse, notificationBufferSize)
	s.feeds.add(userID, stream)
	observability.SSEClientsActive().Inc()

	var once sync.Once
	return stream, func() {
		once.Do(func() {
			s.feeds.remove(userID, stream)
			observability.SSEClientsActive().Dec()
		})
	}
}

func (s *notificationService) handleRemote(payload json.RawMessage) {
	var notification dto.NotificationResponse
	if err := json.Unmarshal(payload, &notification); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification payload")
		return
	}
	if notification.UserID == 0 {
		return
	}
	if notification.Type == "" || len(notification.Type) > notificationTypeLimit {
		notification.Type = "generic"
	}

	s.feeds.push(notification)
}

func (f *notificationFeeds) add(userID uint, stream chan dto.NotificationResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.streams[userID] == nil {
		f.streams[userID] = make(map[chan dto.NotificationResponse]struct{})
	}
	f.streams[userID][stream] = struct{}{}
}

func (f *notificationFeeds) remove(userID uint, stream chan dto.NotificationResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()

	streams, ok := f.streams[userID]
	if !ok {
		return
	}
	if _, open := streams[stream]; !open {
		return
	}
	delete(streams, stream)
	close(stream)
	if len(streams) == 0 {
		delete(f.streams, userID)
	}
}

func (f *notificationFeeds) push(notification dto.NotificationResponse) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for stream := range f.streams[notification.UserID] {
		select {
		case stream <- notification:
		default:
			f.log.Warn().Uint("user_id", notification.UserID).Msg("dropping notification for slow stream")
		}
	}
}

func (f *notificationFeeds) count(userID uint) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.streams[userID])
}
