package model

import "time"

type RoomStatus string

const (
	RoomStatusActive RoomStatus = "active"
	RoomStatusClosed RoomStatus = "closed"
)

// ChatRoom — обращение одного покупателя; сотрудник назначается не более одного раза.
type ChatRoom struct {
	ID         int64      `json:"id"`
	CustomerID int64      `json:"customer_id"`
	StaffID    *int64     `json:"staff_id"`
	Status     RoomStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (r *ChatRoom) IsClosed() bool { return r.Status == RoomStatusClosed }

// RoomDetails adds participant names to a room for HTTP responses.
type RoomDetails struct {
	ChatRoom
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	StaffName     string `json:"staff_name,omitempty"`
	StaffEmail    string `json:"staff_email,omitempty"`
}

// RoomSummary is the staff dashboard row for an active room.
type RoomSummary struct {
	RoomDetails
	UnreadCount     int            `json:"unread_count"`
	LastMessage     *string        `json:"last_message"`
	LastMessageTime *time.Time     `json:"last_message_time"`
	LastSenderKind  *PrincipalKind `json:"last_sender_kind"`
}

type RecentActivity struct {
	RoomID        int64         `json:"room_id"`
	CustomerName  string        `json:"customer_name"`
	CustomerEmail string        `json:"customer_email"`
	Body          string        `json:"message"`
	SenderKind    PrincipalKind `json:"sender_kind"`
	CreatedAt     time.Time     `json:"created_at"`
}

type ChatStats struct {
	TotalRooms      int              `json:"total_rooms"`
	ActiveRooms     int              `json:"active_rooms"`
	TotalMessages   int              `json:"total_messages"`
	UnreadMessages  int              `json:"unread_messages"`
	RoomsWithUnread int              `json:"rooms_with_unread"`
	OnlineStaff     int              `json:"online_staff"`
	RecentActivity  []RecentActivity `json:"recent_activity"`
}
