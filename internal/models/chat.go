package models

import "time"

// Room types.
const (
	RoomTypeGeneral = "general"
	RoomTypeSupport = "support"
	RoomTypeClass   = "class"
	RoomTypePrivate = "private"
)

// Message types.
const (
	MessageTypeNormal = "normal"
	MessageTypeSystem = "system"
)

// DeletedMessagePlaceholder replaces the content of soft-deleted messages.
const DeletedMessagePlaceholder = "This message was deleted"

// Room is a named conversation container. Rooms are deactivated, never removed.
type Room struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Type        string    `gorm:"size:32;not null;index" json:"type"`
	Active      bool      `gorm:"not null;default:true" json:"active"`
	CreatedByID uint      `gorm:"index" json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Participant links a user to a room. At most one row exists per (room, user);
// leaving flips Active instead of deleting the row.
type Participant struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	RoomID    uint       `gorm:"not null;uniqueIndex:idx_participants_room_user" json:"room_id"`
	UserID    uint       `gorm:"not null;uniqueIndex:idx_participants_room_user;index" json:"user_id"`
	Active    bool       `gorm:"not null" json:"active"`
	LastSeen  *time.Time `json:"last_seen"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	User      User       `gorm:"foreignKey:UserID" json:"user"`
}

// Message belongs to exactly one room and one sender. Content is nil for
// attachment-only messages.
type Message struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	RoomID        uint          `gorm:"not null;index:idx_messages_room_created" json:"room_id"`
	SenderID      uint          `gorm:"not null;index" json:"sender_id"`
	Content       *string       `gorm:"type:text" json:"content"`
	Type          string        `gorm:"size:16;not null;default:normal" json:"type"`
	Deleted       bool          `gorm:"not null;default:false" json:"deleted"`
	AttachmentURL *string       `gorm:"size:512" json:"attachment_url"`
	DeliveredAt   *time.Time    `json:"delivered_at"`
	EditedAt      *time.Time    `json:"edited_at"`
	SeenAt        *time.Time    `json:"seen_at"`
	CreatedAt     time.Time     `gorm:"index:idx_messages_room_created" json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Sender        User          `gorm:"foreignKey:SenderID" json:"sender"`
	ReadReceipts  []ReadReceipt `gorm:"foreignKey:MessageID" json:"read_receipts"`
}

// ReadReceipt records that a user read a message. The composite key keeps a
// single receipt per (message, user).
type ReadReceipt struct {
	MessageID uint      `gorm:"primaryKey;autoIncrement:false" json:"message_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	ReadAt    time.Time `gorm:"not null" json:"read_at"`
}
