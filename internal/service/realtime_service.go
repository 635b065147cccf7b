package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/linguahub-api/internal/dto"
	"github.com/noah-isme/linguahub-api/internal/middleware"
	"github.com/noah-isme/linguahub-api/internal/observability"
)

const (
	chatRedisTTL       = 30 * time.Minute
	chatSendBufferSize = 32
	chatPingInterval   = 30 * time.Second
)

// ChatConnectionOptions wraps metadata extracted during the HTTP upgrade.
type ChatConnectionOptions struct {
	UserID        uint
	Role          string
	RoomID        uint
	CorrelationID string
	Context       context.Context
}

// InboundHandler processes acknowledgement frames sent by websocket clients.
type InboundHandler func(ctx context.Context, userID uint, frame dto.ChatInbound) error

// RealtimeService fans room events out to websocket clients on this node and,
// through Redis or NATS, on every other node.
type RealtimeService interface {
	ChatEventPublisher
	ServeConnection(conn *websocket.Conn, opts ChatConnectionOptions)
	HandleInbound(handler InboundHandler)
	Start(ctx context.Context)
}

type realtimeService struct {
	redis      *redis.Client
	redisCache string
	fanout     *fanout
	validator  *validator.Validate
	logger     zerolog.Logger
	tracer     trace.Tracer
	hub        *chatHub

	mu      sync.RWMutex
	inbound InboundHandler
}

// chatHub keeps track of active websocket clients per room.
type chatHub struct {
	mu    sync.RWMutex
	rooms map[uint]map[*chatClient]struct{}
	log   zerolog.Logger
}

type chatClient struct {
	conn    *websocket.Conn
	send    chan dto.ChatEvent
	options ChatConnectionOptions
	service *realtimeService
	closed  chan struct{}
	once    sync.Once
}

// chatBroadcast is the cross-node payload; exactly one field is set.
type chatBroadcast struct {
	Event  *dto.ChatEvent  `json:"event,omitempty"`
	Revoke *chatRevocation `json:"revoke,omitempty"`
}

// chatRevocation removes subscribers from a room. A zero UserID targets every
// client in the room.
type chatRevocation struct {
	RoomID uint `json:"room_id"`
	UserID uint `json:"user_id,omitempty"`
}

// NewRealtimeService creates the websocket hub. redisClient and natsConn may
// be nil, in which case events stay on this node.
func NewRealtimeService(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, validate *validator.Validate, logger zerolog.Logger) RealtimeService {
	hub := &chatHub{
		rooms: make(map[uint]map[*chatClient]struct{}),
		log:   logger.With().Str("component", "chat_hub").Logger(),
	}

	cachePrefix := ""
	if channelBase != "" {
		cachePrefix = channelBase + ":chat:last"
	}

	serviceLogger := logger.With().Str("component", "realtime_service").Logger()
	return &realtimeService{
		redis:      redisClient,
		redisCache: cachePrefix,
		fanout:     newFanout(redisClient, natsConn, channelBase, "chat", serviceLogger),
		validator:  validate,
		logger:     serviceLogger,
		tracer:     otel.Tracer("github.com/noah-isme/linguahub-api/internal/service/realtime"),
		hub:        hub,
	}
}

func (s *realtimeService) HandleInbound(handler InboundHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound = handler
}

// Start subscribes to events published by other nodes.
func (s *realtimeService) Start(ctx context.Context) {
	s.fanout.start(ctx, s.handleRemote)
}

func (s *realtimeService) ServeConnection(conn *websocket.Conn, opts ChatConnectionOptions) {
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	client := &chatClient{
		conn:    conn,
		send:    make(chan dto.ChatEvent, chatSendBufferSize),
		options: opts,
		service: s,
		closed:  make(chan struct{}),
	}

	s.hub.register(client)
	observability.ChatConnectionsTotal().Inc()
	observability.ChatConnectionsOpen().Inc()

	if last := s.fetchLastEvent(opts.Context, opts.RoomID); last != nil {
		select {
		case client.send <- *last:
		default:
			s.logger.Debug().Uint("room_id", opts.RoomID).Msg("dropping cached chat event due to slow consumer")
		}
	}

	go client.writer()
	client.reader()
}

func (s *realtimeService) PublishRoomEvent(ctx context.Context, event dto.ChatEvent) {
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.broadcast", trace.WithAttributes(
		attribute.Int64("chat.room_id", int64(event.RoomID)),
		attribute.String("chat.event", event.Event),
	))
	defer span.End()

	s.hub.broadcast(event.RoomID, event)
	s.cacheLastEvent(spanCtx, event)
	if err := s.fanout.publish(spanCtx, chatBroadcast{Event: &event}); err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Str("event", event.Event).Msg("failed to publish chat event")
	}
}

// RevokeMember disconnects the user's sockets for the room on every node.
func (s *realtimeService) RevokeMember(ctx context.Context, roomID, userID uint) {
	s.revoke(ctx, chatRevocation{RoomID: roomID, UserID: userID})
}

// CloseRoom disconnects every socket subscribed to the room on every node and
// forgets the cached replay event.
func (s *realtimeService) CloseRoom(ctx context.Context, roomID uint) {
	if s.redis != nil && s.redisCache != "" {
		key := fmt.Sprintf("%s:%d", s.redisCache, roomID)
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			s.logger.Warn().Err(err).Uint("room_id", roomID).Msg("failed to clear cached chat event")
		}
	}
	s.revoke(ctx, chatRevocation{RoomID: roomID})
}

func (s *realtimeService) revoke(ctx context.Context, revocation chatRevocation) {
	spanCtx, span := s.tracer.Start(ctx, "chat.revoke", trace.WithAttributes(
		attribute.Int64("chat.room_id", int64(revocation.RoomID)),
		attribute.Int64("chat.user_id", int64(revocation.UserID)),
	))
	defer span.End()

	dropped := s.hub.evict(revocation.RoomID, revocation.UserID)
	s.logger.Debug().Uint("room_id", revocation.RoomID).Uint("user_id", revocation.UserID).Int("dropped", dropped).Msg("chat subscribers revoked")

	if err := s.fanout.publish(spanCtx, chatBroadcast{Revoke: &revocation}); err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Uint("room_id", revocation.RoomID).Msg("failed to publish chat revocation")
	}
}

func (s *realtimeService) processInbound(ctx context.Context, client *chatClient, frame dto.ChatInbound) error {
	frame.Action = strings.ToLower(strings.TrimSpace(frame.Action))
	if err := s.validator.Struct(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	s.mu.RLock()
	handler := s.inbound
	s.mu.RUnlock()
	if handler == nil {
		return fmt.Errorf("%w: acknowledgements are not accepted", ErrInvalidState)
	}

	return handler(ctx, client.options.UserID, frame)
}

func (s *realtimeService) cacheLastEvent(ctx context.Context, event dto.ChatEvent) {
	if s.redis == nil || s.redisCache == "" {
		return
	}
	if event.Event != dto.ChatEventMessageCreated {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal chat event for cache")
		return
	}

	key := fmt.Sprintf("%s:%d", s.redisCache, event.RoomID)
	if err := s.redis.Set(ctx, key, payload, chatRedisTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache chat event")
	}
}

func (s *realtimeService) fetchLastEvent(ctx context.Context, roomID uint) *dto.ChatEvent {
	if s.redis == nil || s.redisCache == "" {
		return nil
	}

	key := fmt.Sprintf("%s:%d", s.redisCache, roomID)
	result, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return nil
	}

	var event dto.ChatEvent
	if err := json.Unmarshal([]byte(result), &event); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unmarshal cached chat event")
		return nil
	}

	return &event
}

func (s *realtimeService) handleRemote(payload json.RawMessage) {
	var broadcast chatBroadcast
	if err := json.Unmarshal(payload, &broadcast); err != nil {
		s.logger.Warn().Err(err).Msg("invalid chat broadcast")
		return
	}

	switch {
	case broadcast.Revoke != nil:
		s.hub.evict(broadcast.Revoke.RoomID, broadcast.Revoke.UserID)
	case broadcast.Event != nil:
		s.hub.broadcast(broadcast.Event.RoomID, *broadcast.Event)
	}
}

func (h *chatHub) register(client *chatClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := client.options.RoomID
	if _, exists := h.rooms[room]; !exists {
		h.rooms[room] = make(map[*chatClient]struct{})
	}
	h.rooms[room][client] = struct{}{}
	h.log.Debug().Uint("room_id", room).Uint("user_id", client.options.UserID).Msg("chat client connected")
}

func (h *chatHub) unregister(client *chatClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := client.options.RoomID
	if clients, ok := h.rooms[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	h.log.Debug().Uint("room_id", room).Uint("user_id", client.options.UserID).Msg("chat client disconnected")
}

func (h *chatHub) broadcast(roomID uint, event dto.ChatEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[roomID] {
		select {
		case client.send <- event:
		default:
			h.log.Warn().Uint("room_id", roomID).Uint("user_id", client.options.UserID).Msg("dropping chat event for slow client")
		}
	}
}

// evict detaches matching clients from the room and closes their sockets.
func (h *chatHub) evict(roomID, userID uint) int {
	h.mu.Lock()
	var evicted []*chatClient
	for client := range h.rooms[roomID] {
		if userID != 0 && client.options.UserID != userID {
			continue
		}
		delete(h.rooms[roomID], client)
		evicted = append(evicted, client)
	}
	if len(h.rooms[roomID]) == 0 {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()

	for _, client := range evicted {
		client.close()
	}
	return len(evicted)
}

func (h *chatHub) clientCount(roomID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (c *chatClient) reader() {
	defer c.close()

	ctx := c.options.Context
	if c.options.CorrelationID == "" {
		c.options.CorrelationID = middleware.CorrelationIDFromContext(ctx)
	}
	logger := c.service.logger.With().
		Str("correlation_id", c.options.CorrelationID).
		Uint("user_id", c.options.UserID).
		Logger()

	for {
		var frame dto.ChatInbound
		if err := c.conn.ReadJSON(&frame); err != nil {
			logger.Debug().Err(err).Msg("chat read loop ended")
			return
		}

		if err := c.service.processInbound(ctx, c, frame); err != nil {
			logger.Warn().Err(err).Uint("message_id", frame.MessageID).Msg("failed to process chat acknowledgement")
			c.enqueue(dto.ChatEvent{
				Event:  dto.ChatEventError,
				RoomID: c.options.RoomID,
				Data:   inboundErrorData(err),
				SentAt: time.Now().UTC(),
			})
		}
	}
}

func (c *chatClient) enqueue(event dto.ChatEvent) {
	select {
	case <-c.closed:
		return
	default:
	}

	select {
	case c.send <- event:
	default:
		c.service.logger.Warn().Msg("client queue full, dropping chat event")
	}
}

func (c *chatClient) writer() {
	defer c.close()

	ticker := time.NewTicker(chatPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-c.send:
			if err := c.conn.WriteJSON(event); err != nil {
				c.service.logger.Debug().Err(err).Msg("chat write loop terminated")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("chat ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *chatClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.unregister(c)
		observability.ChatConnectionsOpen().Dec()
		_ = c.conn.Close()
	})
}

func inboundErrorData(err error) map[string]string {
	return map[string]string{"message": err.Error(), "outcome": chatOutcome(err)}
}
