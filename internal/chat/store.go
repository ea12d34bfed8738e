package chat

import (
	"context"

	"github.com/shopdesk/supportchat/internal/model"
)

// Store is the durable side of the chat. Missing rooms are reported as
// repository.ErrNotFound and closed rooms as repository.ErrAlreadyClosed.
type Store interface {
	FindActiveRoomForCustomer(ctx context.Context, customerID int64) (*model.ChatRoom, error)
	// CreateRoom returns the already active room with created=false when one exists.
	CreateRoom(ctx context.Context, customerID int64) (room *model.ChatRoom, created bool, err error)
	GetRoom(ctx context.Context, roomID int64) (*model.ChatRoom, error)
	AssignStaffIfUnset(ctx context.Context, roomID, staffID int64) (room *model.ChatRoom, assigned bool, err error)
	CloseRoom(ctx context.Context, roomID int64) (*model.ChatRoom, error)
	TouchRoomUpdatedAt(ctx context.Context, roomID int64) error
	ListActiveRooms(ctx context.Context) ([]model.RoomSummary, error)

	InsertMessage(ctx context.Context, m *model.ChatMessage) error
	ListMessages(ctx context.Context, roomID int64, limit, offset int) ([]model.ChatMessage, error)
	ListRecentMessages(ctx context.Context, roomID int64, limit, offset int) ([]model.ChatMessage, error)
	MarkRead(ctx context.Context, roomID int64, senderKind model.PrincipalKind) (int64, error)

	DisplayName(ctx context.Context, id int64, kind model.PrincipalKind) (string, error)
}

// RateLimiter decides whether a principal may send another message.
type RateLimiter interface {
	Allow(ctx context.Context, p model.Principal) (bool, error)
}

// StaffNotifier reaches a staff member who has no live connection.
type StaffNotifier interface {
	NotifyStaff(ctx context.Context, staffID int64, alert AdminAlert) error
}
