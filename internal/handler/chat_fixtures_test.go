package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/linguahub-api/internal/dto"
	"github.com/noah-isme/linguahub-api/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	var body envelope
	decodeResponse(t, resp, &body)
	return body
}

// asCaller mimics the JWT middleware by resolving a fixed identity.
func asCaller(userID uint, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID != 0 {
			c.Locals("user_id", userID)
		}
		c.Locals("user_role", role)
		return c.Next()
	}
}

type stubMembershipService struct {
	err       error
	member    bool
	created   bool
	room      dto.RoomResponse
	lastRoom  uint
	lastUser  uint
	lastActor service.ChatActor
	lastPeer  uint
}

func (s *stubMembershipService) Join(_ context.Context, roomID, userID uint) (dto.ActionResponse, error) {
	s.lastRoom, s.lastUser = roomID, userID
	if s.err != nil {
		return dto.ActionResponse{}, s.err
	}
	return dto.ActionResponse{Message: "joined room successfully"}, nil
}

func (s *stubMembershipService) Leave(_ context.Context, roomID, userID uint) (dto.ActionResponse, error) {
	s.lastRoom, s.lastUser = roomID, userID
	if s.err != nil {
		return dto.ActionResponse{}, s.err
	}
	return dto.ActionResponse{Message: "left room successfully"}, nil
}

func (s *stubMembershipService) MarkRoomRead(_ context.Context, roomID, userID uint) (dto.ActionResponse, error) {
	s.lastRoom, s.lastUser = roomID, userID
	if s.err != nil {
		return dto.ActionResponse{}, s.err
	}
	return dto.ActionResponse{Message: "room marked as read"}, nil
}

func (s *stubMembershipService) CreateRoom(_ context.Context, actor service.ChatActor, payload dto.CreateRoomRequest) (dto.RoomResponse, error) {
	s.lastActor = actor
	if s.err != nil {
		return dto.RoomResponse{}, s.err
	}
	return dto.RoomResponse{ID: 1, Name: payload.Name, Type: payload.Type, Active: true}, nil
}

func (s *stubMembershipService) DeactivateRoom(_ context.Context, actor service.ChatActor, roomID uint) error {
	s.lastActor, s.lastRoom = actor, roomID
	return s.err
}

func (s *stubMembershipService) ListRooms(_ context.Context, userID uint) ([]dto.RoomResponse, error) {
	s.lastUser = userID
	if s.err != nil {
		return nil, s.err
	}
	return []dto.RoomResponse{s.room}, nil
}

func (s *stubMembershipService) ListParticipants(_ context.Context, roomID, userID uint) ([]dto.ParticipantResponse, error) {
	s.lastRoom, s.lastUser = roomID, userID
	if s.err != nil {
		return nil, s.err
	}
	return []dto.ParticipantResponse{{UserID: userID, Name: "Ana", Role: "student"}}, nil
}

func (s *stubMembershipService) StartPrivateChat(_ context.Context, userID, peerID uint) (dto.RoomResponse, bool, error) {
	s.lastUser, s.lastPeer = userID, peerID
	if s.err != nil {
		return dto.RoomResponse{}, false, s.err
	}
	return s.room, s.created, nil
}

func (s *stubMembershipService) IsActiveMember(_ context.Context, roomID, userID uint) (bool, error) {
	s.lastRoom, s.lastUser = roomID, userID
	return s.member, s.err
}

type stubMessageService struct {
	err          error
	message      dto.MessageResponse
	lastUser     uint
	lastMessage  uint
	lastSend     dto.SendMessageRequest
	lastQuery    dto.MessageHistoryQuery
	lastContent  string
	lastDelivery uint
}

func (s *stubMessageService) Send(_ context.Context, userID uint, payload dto.SendMessageRequest) (dto.MessageResponse, error) {
	s.lastUser, s.lastSend = userID, payload
	if s.err != nil {
		return dto.MessageResponse{}, s.err
	}
	return s.message, nil
}

func (s *stubMessageService) History(_ context.Context, userID uint, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error) {
	s.lastUser, s.lastQuery = userID, query
	if s.err != nil {
		return nil, s.err
	}
	return []dto.MessageResponse{s.message}, nil
}

func (s *stubMessageService) Edit(_ context.Context, messageID, userID uint, content string) (dto.MessageResponse, error) {
	s.lastMessage, s.lastUser, s.lastContent = messageID, userID, content
	if s.err != nil {
		return dto.MessageResponse{}, s.err
	}
	return s.message, nil
}

func (s *stubMessageService) SoftDelete(_ context.Context, messageID, userID uint) (dto.MessageResponse, error) {
	s.lastMessage, s.lastUser = messageID, userID
	if s.err != nil {
		return dto.MessageResponse{}, s.err
	}
	return s.message, nil
}

func (s *stubMessageService) MarkDelivered(_ context.Context, messageID, userID uint) (dto.MessageResponse, error) {
	s.lastDelivery, s.lastUser = messageID, userID
	if s.err != nil {
		return dto.MessageResponse{}, s.err
	}
	return s.message, nil
}

func (s *stubMessageService) MarkRead(_ context.Context, messageID, userID uint) (dto.MessageResponse, error) {
	s.lastMessage, s.lastUser = messageID, userID
	if s.err != nil {
		return dto.MessageResponse{}, s.err
	}
	return s.message, nil
}

// stubRealtime records accepted connections and greets each with a single frame.
type stubRealtime struct {
	mu       sync.Mutex
	accepted []service.ChatConnectionOptions
}

func (s *stubRealtime) PublishRoomEvent(context.Context, dto.ChatEvent) {}

func (s *stubRealtime) RevokeMember(context.Context, uint, uint) {}

func (s *stubRealtime) CloseRoom(context.Context, uint) {}

func (s *stubRealtime) HandleInbound(service.InboundHandler) {}

func (s *stubRealtime) Start(context.Context) {}

func (s *stubRealtime) ServeConnection(conn *websocket.Conn, opts service.ChatConnectionOptions) {
	s.mu.Lock()
	s.accepted = append(s.accepted, opts)
	s.mu.Unlock()

	_ = conn.WriteJSON(dto.ChatEvent{Event: dto.ChatEventRoomJoined, RoomID: opts.RoomID})
}

func (s *stubRealtime) connections() []service.ChatConnectionOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]service.ChatConnectionOptions(nil), s.accepted...)
}
