package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/linguahub-api/internal/dto"
	"github.com/noah-isme/linguahub-api/internal/models"
	"github.com/noah-isme/linguahub-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.Participant{},
		&models.Message{},
		&models.ReadReceipt{},
		&models.Notification{},
		&models.StudyGuide{},
	))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name, role string) models.User {
	t.Helper()
	user := models.User{Name: name, Email: uuid.NewString() + "@linguahub.test", Role: role}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedRoom(t *testing.T, db *gorm.DB, name string, active bool) models.Room {
	t.Helper()
	room := models.Room{Name: name, Type: models.RoomTypeGeneral, Active: true}
	require.NoError(t, db.Create(&room).Error)
	if !active {
		require.NoError(t, db.Model(&room).Update("active", false).Error)
		room.Active = false
	}
	return room
}

type recordingPublisher struct {
	mu      sync.Mutex
	events  []dto.ChatEvent
	revoked []chatRevocation
}

func (p *recordingPublisher) RevokeMember(_ context.Context, roomID, userID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, chatRevocation{RoomID: roomID, UserID: userID})
}

func (p *recordingPublisher) CloseRoom(_ context.Context, roomID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, chatRevocation{RoomID: roomID})
}

func (p *recordingPublisher) revocations() []chatRevocation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chatRevocation(nil), p.revoked...)
}

func (p *recordingPublisher) PublishRoomEvent(_ context.Context, event dto.ChatEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Event)
	}
	return out
}

type stubNotificationPublisher struct {
	mu    sync.Mutex
	calls []dto.NotificationCreateRequest
}

func (s *stubNotificationPublisher) Publish(_ context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, payload)
	return dto.NotificationResponse{ID: uint(len(s.calls)), UserID: payload.UserID, Type: payload.Type, Message: payload.Message}, nil
}

type chatFixture struct {
	db            *gorm.DB
	repo          repository.ChatRepository
	events        *recordingPublisher
	notifications *stubNotificationPublisher
	membership    MembershipService
	messages      *messageService
}

func newChatFixture(t *testing.T) chatFixture {
	t.Helper()

	db := newTestDB(t)
	repo := repository.NewChatRepository(db)
	events := &recordingPublisher{}
	notifications := &stubNotificationPublisher{}
	validate := validator.New(validator.WithRequiredStructEnabled())

	return chatFixture{
		db:            db,
		repo:          repo,
		events:        events,
		notifications: notifications,
		membership:    NewMembershipService(repo, events, notifications, validate, testLogger()),
		messages:      NewMessageService(repo, events, notifications, 50, validate, testLogger()).(*messageService),
	}
}

func (f chatFixture) countMessages(t *testing.T, roomID uint, messageType string) int64 {
	t.Helper()
	query := f.db.Model(&models.Message{}).Where("room_id = ?", roomID)
	if messageType != "" {
		query = query.Where("type = ?", messageType)
	}
	var count int64
	require.NoError(t, query.Count(&count).Error)
	return count
}
