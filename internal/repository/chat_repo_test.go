package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/linguahub-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
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

func createUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	user := models.User{Name: name, Email: uuid.NewString() + "@linguahub.test", Role: models.RoleStudent}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func createRoom(t *testing.T, repo ChatRepository, roomType string) models.Room {
	t.Helper()
	room := models.Room{Name: "room-" + roomType, Type: roomType, Active: true}
	require.NoError(t, repo.CreateRoom(context.Background(), &room))
	return room
}

func createMessage(t *testing.T, repo ChatRepository, roomID, senderID uint, text string) models.Message {
	t.Helper()
	message := models.Message{RoomID: roomID, SenderID: senderID, Content: &text, Type: models.MessageTypeNormal}
	require.NoError(t, repo.CreateMessage(context.Background(), &message))
	return message
}

func TestChatRepositoryUpsertReadReceiptKeepsSingleRow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	user := createUser(t, db, "Ana")
	room := createRoom(t, repo, models.RoomTypeGeneral)
	message := createMessage(t, repo, room.ID, user.ID, "hola")

	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)
	require.NoError(t, repo.UpsertReadReceipt(ctx, message.ID, user.ID, first))
	require.NoError(t, repo.UpsertReadReceipt(ctx, message.ID, user.ID, second))

	var receipts []models.ReadReceipt
	require.NoError(t, db.Find(&receipts).Error)
	require.Len(t, receipts, 1)
	require.True(t, second.Equal(receipts[0].ReadAt))

	detailed, err := repo.FindMessageDetailed(ctx, message.ID)
	require.NoError(t, err)
	require.Equal(t, "Ana", detailed.Sender.Name)
	require.Len(t, detailed.ReadReceipts, 1)
}

func TestChatRepositoryTransactionRollsBack(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	user := createUser(t, db, "Ben")
	room := createRoom(t, repo, models.RoomTypeGeneral)

	boom := errors.New("announcement failed")
	err := repo.Transaction(ctx, func(tx ChatRepository) error {
		if err := tx.CreateParticipant(ctx, &models.Participant{RoomID: room.ID, UserID: user.ID, Active: true}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.FindParticipant(ctx, room.ID, user.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestChatRepositoryParticipantUniqueness(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	user := createUser(t, db, "Cy")
	room := createRoom(t, repo, models.RoomTypeClass)

	require.NoError(t, repo.CreateParticipant(ctx, &models.Participant{RoomID: room.ID, UserID: user.ID, Active: true}))
	require.Error(t, repo.CreateParticipant(ctx, &models.Participant{RoomID: room.ID, UserID: user.ID, Active: true}))

	participant, err := repo.FindActiveParticipant(ctx, room.ID, user.ID)
	require.NoError(t, err)
	require.NoError(t, repo.SetParticipantActive(ctx, participant.ID, false))

	_, err = repo.FindActiveParticipant(ctx, room.ID, user.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	touched, err := repo.TouchLastSeen(ctx, room.ID, user.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, touched)

	participants, err := repo.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Empty(t, participants)
}

func TestChatRepositoryFindPrivateRoom(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	a := createUser(t, db, "A")
	b := createUser(t, db, "B")
	c := createUser(t, db, "C")

	general := createRoom(t, repo, models.RoomTypeGeneral)
	private := createRoom(t, repo, models.RoomTypePrivate)
	for _, roomID := range []uint{general.ID, private.ID} {
		for _, userID := range []uint{a.ID, b.ID} {
			require.NoError(t, repo.CreateParticipant(ctx, &models.Participant{RoomID: roomID, UserID: userID, Active: true}))
		}
	}

	found, err := repo.FindPrivateRoom(ctx, b.ID, a.ID)
	require.NoError(t, err)
	require.Equal(t, private.ID, found.ID)

	_, err = repo.FindPrivateRoom(ctx, a.ID, c.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	rooms, err := repo.ListRoomsForUser(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 2)

	require.NoError(t, repo.UpdateRoomActive(ctx, general.ID, false))
	rooms, err = repo.ListRoomsForUser(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	require.ErrorIs(t, repo.UpdateRoomActive(ctx, 999, false), gorm.ErrRecordNotFound)
}

func TestChatRepositoryListMessagesPaginates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	user := createUser(t, db, "Dee")
	room := createRoom(t, repo, models.RoomTypeGeneral)

	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		text := fmt.Sprintf("m%d", i)
		message := models.Message{RoomID: room.ID, SenderID: user.ID, Content: &text, Type: models.MessageTypeNormal, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, repo.CreateMessage(ctx, &message))
	}

	latest, err := repo.ListMessages(ctx, room.ID, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.Equal(t, "m3", *latest[0].Content)
	require.Equal(t, "m4", *latest[1].Content)

	older, err := repo.ListMessages(ctx, room.ID, latest[0].CreatedAt, 10)
	require.NoError(t, err)
	require.Len(t, older, 3)
	require.Equal(t, "m0", *older[0].Content)
	require.Equal(t, "Dee", older[0].Sender.Name)
}

func TestChatRepositoryDeliveryAndUnread(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()

	reader := createUser(t, db, "Reader")
	writer := createUser(t, db, "Writer")
	room := createRoom(t, repo, models.RoomTypeGeneral)
	message := createMessage(t, repo, room.ID, writer.ID, "first")
	createMessage(t, repo, room.ID, reader.ID, "mine")

	changed, err := repo.SetDeliveredAt(ctx, message.ID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, changed)
	changed, err = repo.SetDeliveredAt(ctx, message.ID, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.False(t, changed)

	unread, err := repo.CountUnread(ctx, room.ID, reader.ID, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), unread)

	future := time.Now().UTC().Add(time.Hour)
	unread, err = repo.CountUnread(ctx, room.ID, reader.ID, &future)
	require.NoError(t, err)
	require.Zero(t, unread)

	err = repo.UpdateMessageFields(ctx, 12345, map[string]interface{}{"deleted": true})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestNotificationAndStudyGuideRepositories(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	user := createUser(t, db, "Eve")

	notifications := NewNotificationRepository(db)
	note := models.Notification{UserID: user.ID, Type: "chat_message", Message: "hello"}
	require.NoError(t, notifications.Create(ctx, &note))

	read, err := notifications.MarkRead(ctx, note.ID, user.ID)
	require.NoError(t, err)
	require.True(t, read.Read)
	_, err = notifications.MarkRead(ctx, note.ID, user.ID+1)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	list, err := notifications.ListByUser(ctx, user.ID, 0, -1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	guides := NewStudyGuideRepository(db)
	guide := models.StudyGuide{UserID: user.ID, Language: "French", Level: "B2", Topic: "Subjunctive", Title: "Doubt and desire"}
	require.NoError(t, guides.Create(ctx, &guide))

	found, err := guides.FindByID(ctx, guide.ID)
	require.NoError(t, err)
	require.Equal(t, "Doubt and desire", found.Title)

	mine, err := guides.ListByUser(ctx, user.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
}
