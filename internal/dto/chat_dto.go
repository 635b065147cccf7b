package dto

import (
	"time"

	"github.com/noah-isme/linguahub-api/internal/models"
)

// CreateRoomRequest is the payload staff use to open a room.
type CreateRoomRequest struct {
	Name        string `json:"name" validate:"required,min=3,max=120"`
	Description string `json:"description" validate:"max=1000"`
	Type        string `json:"type" validate:"required,oneof=general support class"`
}

// StartPrivateChatRequest opens (or reuses) a private room with a peer.
type StartPrivateChatRequest struct {
	PeerID uint `json:"peer_id" validate:"required"`
}

// SendMessageRequest is the payload for posting into a room. Either content
// or an attachment reference must be present.
type SendMessageRequest struct {
	RoomID        uint   `json:"-" validate:"required"`
	Content       string `json:"content" validate:"max=4000"`
	AttachmentURL string `json:"attachment_url" validate:"omitempty,url,max=512"`
}

// EditMessageRequest replaces the content of an existing message.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// MessageHistoryQuery represents cursor filters for room history.
type MessageHistoryQuery struct {
	RoomID uint       `validate:"required"`
	Before *time.Time `query:"before"`
	Limit  int        `query:"limit" validate:"omitempty,min=1,max=100"`
}

// ActionResponse is returned by membership operations.
type ActionResponse struct {
	Message string `json:"message"`
}

// RoomResponse is the serialized representation of a room.
type RoomResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	Active      bool      `json:"active"`
	CreatedByID uint      `json:"created_by_id"`
	UnreadCount int64     `json:"unread_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// ParticipantResponse lists an active member of a room.
type ParticipantResponse struct {
	UserID   uint       `json:"user_id"`
	Name     string     `json:"name"`
	Role     string     `json:"role"`
	LastSeen *time.Time `json:"last_seen"`
	JoinedAt time.Time  `json:"joined_at"`
}

// SenderSummary is the public view of a message author.
type SenderSummary struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// ReadReceiptResponse records who read a message and when.
type ReadReceiptResponse struct {
	UserID uint      `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// MessageResponse is the serialized representation of a chat message.
type MessageResponse struct {
	ID            uint                  `json:"id"`
	RoomID        uint                  `json:"room_id"`
	SenderID      uint                  `json:"sender_id"`
	Sender        *SenderSummary        `json:"sender,omitempty"`
	Content       *string               `json:"content"`
	Type          string                `json:"type"`
	Deleted       bool                  `json:"deleted"`
	AttachmentURL *string               `json:"attachment_url"`
	DeliveredAt   *time.Time            `json:"delivered_at"`
	EditedAt      *time.Time            `json:"edited_at"`
	SeenAt        *time.Time            `json:"seen_at"`
	CreatedAt     time.Time             `json:"created_at"`
	ReadReceipts  []ReadReceiptResponse `json:"read_receipts,omitempty"`
}

// NewRoomResponse converts a room model into a DTO.
func NewRoomResponse(room models.Room) RoomResponse {
	return RoomResponse{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		Type:        room.Type,
		Active:      room.Active,
		CreatedByID: room.CreatedByID,
		CreatedAt:   room.CreatedAt,
	}
}

// NewParticipantResponseSlice converts participants with preloaded users into DTOs.
func NewParticipantResponseSlice(participants []models.Participant) []ParticipantResponse {
	out := make([]ParticipantResponse, 0, len(participants))
	for _, participant := range participants {
		out = append(out, ParticipantResponse{
			UserID:   participant.UserID,
			Name:     participant.User.Name,
			Role:     participant.User.Role,
			LastSeen: participant.LastSeen,
			JoinedAt: participant.CreatedAt,
		})
	}
	return out
}

// NewMessageResponse converts a model into a DTO. Sender and receipts are
// included only when they were loaded.
func NewMessageResponse(message models.Message) MessageResponse {
	response := MessageResponse{
		ID:            message.ID,
		RoomID:        message.RoomID,
		SenderID:      message.SenderID,
		Content:       message.Content,
		Type:          message.Type,
		Deleted:       message.Deleted,
		AttachmentURL: message.AttachmentURL,
		DeliveredAt:   message.DeliveredAt,
		EditedAt:      message.EditedAt,
		SeenAt:        message.SeenAt,
		CreatedAt:     message.CreatedAt,
	}
	if message.Sender.ID != 0 {
		response.Sender = &SenderSummary{
			ID:   message.Sender.ID,
			Name: message.Sender.Name,
			Role: message.Sender.Role,
		}
	}
	if len(message.ReadReceipts) > 0 {
		receipts := make([]ReadReceiptResponse, 0, len(message.ReadReceipts))
		for _, receipt := range message.ReadReceipts {
			receipts = append(receipts, ReadReceiptResponse{UserID: receipt.UserID, ReadAt: receipt.ReadAt})
		}
		response.ReadReceipts = receipts
	}
	return response
}

// NewMessageResponseSlice converts a slice of models into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// Realtime event names.
const (
	ChatEventMessageCreated   = "message.created"
	ChatEventMessageUpdated   = "message.updated"
	ChatEventMessageDeleted   = "message.deleted"
	ChatEventMessageDelivered = "message.delivered"
	ChatEventMessageRead      = "message.read"
	ChatEventRoomJoined       = "room.joined"
	ChatEventRoomLeft         = "room.left"
	ChatEventError            = "error"
)

// ChatEvent is pushed to websocket clients subscribed to a room.
type ChatEvent struct {
	Event  string      `json:"event"`
	RoomID uint        `json:"room_id"`
	Data   interface{} `json:"data,omitempty"`
	SentAt time.Time   `json:"sent_at"`
}

// ChatInbound is a frame sent by websocket clients to acknowledge messages.
type ChatInbound struct {
	Action    string `json:"action" validate:"required,oneof=delivered read"`
	MessageID uint   `json:"message_id" validate:"required"`
}
