package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/linguahub-api/internal/dto"
	"github.com/noah-isme/linguahub-api/internal/models"
)

func TestMembershipJoinThenLeave(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	user := seedUser(t, f.db, "Ana", models.RoleStudent)
	room := seedRoom(t, f.db, "Spanish A1", true)

	resp, err := f.membership.Join(ctx, room.ID, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Message)

	_, err = f.membership.Leave(ctx, room.ID, user.ID)
	require.NoError(t, err)

	participant, err := f.repo.FindParticipant(ctx, room.ID, user.ID)
	require.NoError(t, err)
	require.False(t, participant.Active)

	var system []models.Message
	require.NoError(t, f.db.Where("room_id = ? AND type = ?", room.ID, models.MessageTypeSystem).Order("id").Find(&system).Error)
	require.Len(t, system, 2)
	require.Equal(t, "Ana joined the room", *system[0].Content)
	require.Equal(t, "Ana left the room", *system[1].Content)
	require.Equal(t, []string{dto.ChatEventRoomJoined, dto.ChatEventRoomLeft}, f.events.names())
	require.Equal(t, []chatRevocation{{RoomID: room.ID, UserID: user.ID}}, f.events.revocations())
}

func TestMembershipJoinIsIdempotent(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	user := seedUser(t, f.db, "Ben", models.RoleStudent)
	room := seedRoom(t, f.db, "French B1", true)

	_, err := f.membership.Join(ctx, room.ID, user.ID)
	require.NoError(t, err)
	_, err = f.membership.Join(ctx, room.ID, user.ID)
	require.NoError(t, err)

	var rows int64
	require.NoError(t, f.db.Model(&models.Participant{}).Where("room_id = ? AND user_id = ?", room.ID, user.ID).Count(&rows).Error)
	require.Equal(t, int64(1), rows)
	require.Equal(t, int64(1), f.countMessages(t, room.ID, models.MessageTypeSystem))
}

func TestMembershipRejoinReactivatesExistingRow(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	user := seedUser(t, f.db, "Chen", models.RoleStudent)
	room := seedRoom(t, f.db, "German A2", true)

	_, err := f.membership.Join(ctx, room.ID, user.ID)
	require.NoError(t, err)
	_, err = f.membership.Leave(ctx, room.ID, user.ID)
	require.NoError(t, err)
	_, err = f.membership.Join(ctx, room.ID, user.ID)
	require.NoError(t, err)

	var participants []models.Participant
	require.NoError(t, f.db.Where("room_id = ? AND user_id = ?", room.ID, user.ID).Find(&participants).Error)
	require.Len(t, participants, 1)
	require.True(t, participants[0].Active)
	require.Equal(t, int64(3), f.countMessages(t, room.ID, models.MessageTypeSystem))
}

func TestMembershipJoinRequiresActiveRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	user := seedUser(t, f.db, "Dana", models.RoleStudent)
	closed := seedRoom(t, f.db, "Archived", false)

	_, err := f.membership.Join(ctx, closed.ID, user.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.membership.Join(ctx, 9999, user.ID)
	require.ErrorIs(t, err, ErrNotFound)

	var rows int64
	require.NoError(t, f.db.Model(&models.Participant{}).Count(&rows).Error)
	require.Zero(t, rows)
}

func TestMembershipLeaveRequiresActiveMembership(t *testing.T) {
	f := newChatFixture(t)
	user := seedUser(t, f.db, "Eli", models.RoleStudent)
	room := seedRoom(t, f.db, "Italian", true)

	_, err := f.membership.Leave(context.Background(), room.ID, user.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Zero(t, f.countMessages(t, room.ID, ""))
}

func TestMembershipRequiresIdentity(t *testing.T) {
	f := newChatFixture(t)
	room := seedRoom(t, f.db, "Portuguese", true)

	_, err := f.membership.Join(context.Background(), room.ID, 0)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.membership.Leave(context.Background(), room.ID, 0)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.membership.MarkRoomRead(context.Background(), room.ID, 0)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestMembershipMarkRoomRead(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	member := seedUser(t, f.db, "Fay", models.RoleStudent)
	outsider := seedUser(t, f.db, "Gus", models.RoleStudent)
	room := seedRoom(t, f.db, "Japanese", true)

	_, err := f.membership.Join(ctx, room.ID, member.ID)
	require.NoError(t, err)

	resp, err := f.membership.MarkRoomRead(ctx, room.ID, member.ID)
	require.NoError(t, err)
	require.Equal(t, "room marked as read", resp.Message)

	participant, err := f.repo.FindActiveParticipant(ctx, room.ID, member.ID)
	require.NoError(t, err)
	require.NotNil(t, participant.LastSeen)

	resp, err = f.membership.MarkRoomRead(ctx, room.ID, outsider.ID)
	require.NoError(t, err)
	require.Equal(t, "room marked as read", resp.Message)

	_, err = f.repo.FindParticipant(ctx, room.ID, outsider.ID)
	require.Error(t, err)
}

func TestMembershipCreateRoomRequiresStaff(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	teacher := seedUser(t, f.db, "Hana", models.RoleTeacher)
	student := seedUser(t, f.db, "Ivo", models.RoleStudent)

	payload := dto.CreateRoomRequest{Name: "  Korean <b>101</b> ", Type: "class"}

	_, err := f.membership.CreateRoom(ctx, ChatActor{ID: student.ID, Role: student.Role}, payload)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.membership.CreateRoom(ctx, ChatActor{ID: teacher.ID, Role: teacher.Role}, dto.CreateRoomRequest{Name: "ok name", Type: "private"})
	require.ErrorIs(t, err, ErrValidation)

	room, err := f.membership.CreateRoom(ctx, ChatActor{ID: teacher.ID, Role: teacher.Role}, payload)
	require.NoError(t, err)
	require.Equal(t, "Korean 101", room.Name)
	require.True(t, room.Active)

	member, err := f.membership.IsActiveMember(ctx, room.ID, teacher.ID)
	require.NoError(t, err)
	require.True(t, member)
}

func TestMembershipDeactivateRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	admin := seedUser(t, f.db, "Root", models.RoleAdmin)
	teacher := seedUser(t, f.db, "Jo", models.RoleTeacher)
	room := seedRoom(t, f.db, "Dutch", true)

	require.ErrorIs(t, f.membership.DeactivateRoom(ctx, ChatActor{ID: teacher.ID, Role: teacher.Role}, room.ID), ErrForbidden)
	require.NoError(t, f.membership.DeactivateRoom(ctx, ChatActor{ID: admin.ID, Role: admin.Role}, room.ID))
	require.ErrorIs(t, f.membership.DeactivateRoom(ctx, ChatActor{ID: admin.ID, Role: admin.Role}, 4242), ErrNotFound)
	require.Equal(t, []chatRevocation{{RoomID: room.ID}}, f.events.revocations())

	_, err := f.membership.Join(ctx, room.ID, teacher.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMembershipListRoomsCountsUnread(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	reader := seedUser(t, f.db, "Kai", models.RoleStudent)
	writer := seedUser(t, f.db, "Lea", models.RoleStudent)
	room := seedRoom(t, f.db, "Mandarin", true)

	_, err := f.membership.Join(ctx, room.ID, reader.ID)
	require.NoError(t, err)
	_, err = f.membership.MarkRoomRead(ctx, room.ID, reader.ID)
	require.NoError(t, err)
	_, err = f.membership.Join(ctx, room.ID, writer.ID)
	require.NoError(t, err)
	_, err = f.messages.Send(ctx, writer.ID, dto.SendMessageRequest{RoomID: room.ID, Content: "ni hao"})
	require.NoError(t, err)

	rooms, err := f.membership.ListRooms(ctx, reader.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	// writer's join announcement and greeting
	require.Equal(t, int64(2), rooms[0].UnreadCount)

	participants, err := f.membership.ListParticipants(ctx, room.ID, reader.ID)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	require.Equal(t, "Kai", participants[0].Name)

	outsider := seedUser(t, f.db, "Max", models.RoleStudent)
	_, err = f.membership.ListParticipants(ctx, room.ID, outsider.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestMembershipStartPrivateChatReusesRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	a := seedUser(t, f.db, "Nia", models.RoleStudent)
	b := seedUser(t, f.db, "Omar", models.RoleTeacher)

	_, _, err := f.membership.StartPrivateChat(ctx, a.ID, a.ID)
	require.ErrorIs(t, err, ErrValidation)
	_, _, err = f.membership.StartPrivateChat(ctx, a.ID, 777)
	require.ErrorIs(t, err, ErrNotFound)

	room, created, err := f.membership.StartPrivateChat(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, models.RoomTypePrivate, room.Type)
	require.Equal(t, "Nia &amp; Omar", room.Name)
	require.Len(t, f.notifications.calls, 1)
	require.Equal(t, b.ID, f.notifications.calls[0].UserID)

	_, err = f.membership.Leave(ctx, room.ID, b.ID)
	require.NoError(t, err)

	again, created, err := f.membership.StartPrivateChat(ctx, b.ID, a.ID)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, room.ID, again.ID)
	require.Len(t, f.notifications.calls, 1)

	member, err := f.membership.IsActiveMember(ctx, room.ID, b.ID)
	require.NoError(t, err)
	require.True(t, member)
}
