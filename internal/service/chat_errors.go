package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/linguahub-api/internal/dto"
	"github.com/noah-isme/linguahub-api/internal/observability"
)

var (
	// ErrUnauthorized indicates the caller identity could not be resolved.
	ErrUnauthorized = errors.New("authentication required")
	// ErrNotFound indicates the entity is absent or inactive.
	ErrNotFound = errors.New("resource not found")
	// ErrForbidden indicates the caller lacks rights over the entity.
	ErrForbidden = errors.New("insufficient permissions")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates the operation is illegal for the entity's current state.
	ErrInvalidState = errors.New("invalid state for operation")
)

// ChatActor identifies the caller of a privileged chat operation.
type ChatActor struct {
	ID   uint
	Role string
}

// ChatEventPublisher receives room events after a mutation has been committed.
// RevokeMember and CloseRoom drop live subscriptions that no longer match the
// participant table.
type ChatEventPublisher interface {
	PublishRoomEvent(ctx context.Context, event dto.ChatEvent)
	RevokeMember(ctx context.Context, roomID, userID uint)
	CloseRoom(ctx context.Context, roomID uint)
}

// NotificationPublisher exposes the subset of the notification service needed by chat.
type NotificationPublisher interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
}

type noopEventPublisher struct{}

func (noopEventPublisher) PublishRoomEvent(context.Context, dto.ChatEvent) {}

func (noopEventPublisher) RevokeMember(context.Context, uint, uint) {}

func (noopEventPublisher) CloseRoom(context.Context, uint) {}

func notFound(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, entity)
	}
	return err
}

func chatOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	default:
		return "error"
	}
}

func recordChatOperation(operation string, err error) {
	observability.ChatOperations().WithLabelValues(operation, chatOutcome(err)).Inc()
}
