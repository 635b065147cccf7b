package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/linguahub-api/internal/models"
)

// ChatRepository persists rooms, participants, messages and read receipts.
type ChatRepository interface {
	Transaction(ctx context.Context, fn func(repo ChatRepository) error) error

	FindUser(ctx context.Context, id uint) (models.User, error)

	CreateRoom(ctx context.Context, room *models.Room) error
	FindRoom(ctx context.Context, id uint) (models.Room, error)
	FindActiveRoom(ctx context.Context, id uint) (models.Room, error)
	UpdateRoomActive(ctx context.Context, id uint, active bool) error
	ListRoomsForUser(ctx context.Context, userID uint) ([]models.Room, error)
	FindPrivateRoom(ctx context.Context, userID, peerID uint) (models.Room, error)

	FindParticipant(ctx context.Context, roomID, userID uint) (models.Participant, error)
	FindActiveParticipant(ctx context.Context, roomID, userID uint) (models.Participant, error)
	CreateParticipant(ctx context.Context, participant *models.Participant) error
	SetParticipantActive(ctx context.Context, id uint, active bool) error
	TouchLastSeen(ctx context.Context, roomID, userID uint, at time.Time) (int64, error)
	ListParticipants(ctx context.Context, roomID uint) ([]models.Participant, error)
	CountUnread(ctx context.Context, roomID, userID uint, since *time.Time) (int64, error)

	CreateMessage(ctx context.Context, message *models.Message) error
	FindMessage(ctx context.Context, id uint) (models.Message, error)
	FindMessageWithSender(ctx context.Context, id uint) (models.Message, error)
	FindMessageDetailed(ctx context.Context, id uint) (models.Message, error)
	UpdateMessageFields(ctx context.Context, id uint, fields map[string]interface{}) error
	SetDeliveredAt(ctx context.Context, id uint, at time.Time) (bool, error)
	ListMessages(ctx context.Context, roomID uint, before time.Time, limit int) ([]models.Message, error)
	UpsertReadReceipt(ctx context.Context, messageID, userID uint, at time.Time) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository constructs a chat repository backed by GORM.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// Transaction runs fn against a repository bound to a single database transaction.
func (r *chatRepository) Transaction(ctx context.Context, fn func(repo ChatRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&chatRepository{db: tx})
	})
}

func (r *chatRepository) FindUser(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *chatRepository) CreateRoom(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *chatRepository) FindRoom(ctx context.Context, id uint) (models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (r *chatRepository) FindActiveRoom(ctx context.Context, id uint) (models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&room).Error; err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (r *chatRepository) UpdateRoomActive(ctx context.Context, id uint, active bool) error {
	result := r.db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", id).Update("active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *chatRepository) ListRoomsForUser(ctx context.Context, userID uint) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.WithContext(ctx).
		Joins("JOIN participants ON participants.room_id = rooms.id").
		Where("participants.user_id = ? AND participants.active = ? AND rooms.active = ?", userID, true, true).
		Order("rooms.updated_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *chatRepository) FindPrivateRoom(ctx context.Context, userID, peerID uint) (models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).
		Joins("JOIN participants pa ON pa.room_id = rooms.id AND pa.user_id = ?", userID).
		Joins("JOIN participants pb ON pb.room_id = rooms.id AND pb.user_id = ?", peerID).
		Where("rooms.type = ?", models.RoomTypePrivate).
		Order("rooms.id ASC").
		First(&room).Error
	if err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (r *chatRepository) FindParticipant(ctx context.Context, roomID, userID uint) (models.Participant, error) {
	var participant models.Participant
	err := r.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).First(&participant).Error
	if err != nil {
		return models.Participant{}, err
	}
	return participant, nil
}

func (r *chatRepository) FindActiveParticipant(ctx context.Context, roomID, userID uint) (models.Participant, error) {
	var participant models.Participant
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ? AND active = ?", roomID, userID, true).
		First(&participant).Error
	if err != nil {
		return models.Participant{}, err
	}
	return participant, nil
}

func (r *chatRepository) CreateParticipant(ctx context.Context, participant *models.Participant) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(participant).Error
}

func (r *chatRepository) SetParticipantActive(ctx context.Context, id uint, active bool) error {
	result := r.db.WithContext(ctx).Model(&models.Participant{}).Where("id = ?", id).Update("active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *chatRepository) TouchLastSeen(ctx context.Context, roomID, userID uint, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("room_id = ? AND user_id = ? AND active = ?", roomID, userID, true).
		Update("last_seen", at)
	return result.RowsAffected, result.Error
}

func (r *chatRepository) ListParticipants(ctx context.Context, roomID uint) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("room_id = ? AND active = ?", roomID, true).
		Order("created_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *chatRepository) CountUnread(ctx context.Context, roomID, userID uint, since *time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("room_id = ? AND sender_id <> ?", roomID, userID)
	if since != nil {
		query = query.Where("created_at > ?", *since)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *chatRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(message).Error
}

func (r *chatRepository) FindMessage(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *chatRepository) FindMessageWithSender(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).Preload("Sender").First(&message, id).Error; err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *chatRepository) FindMessageDetailed(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Preload("ReadReceipts", func(db *gorm.DB) *gorm.DB {
			return db.Order("read_at ASC")
		}).
		First(&message, id).Error
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *chatRepository) UpdateMessageFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetDeliveredAt stamps delivered_at only when it is still empty. It reports
// whether this call performed the write.
func (r *chatRepository) SetDeliveredAt(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND delivered_at IS NULL", id).
		Update("delivered_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *chatRepository) ListMessages(ctx context.Context, roomID uint, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).
		Preload("Sender").
		Preload("ReadReceipts").
		Where("room_id = ?", roomID)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []models.Message
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// UpsertReadReceipt creates the (message, user) receipt or refreshes its timestamp.
func (r *chatRepository) UpsertReadReceipt(ctx context.Context, messageID, userID uint, at time.Time) error {
	receipt := models.ReadReceipt{MessageID: messageID, UserID: userID, ReadAt: at}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"read_at"}),
	}).Create(&receipt).Error
}
