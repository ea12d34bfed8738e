package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopdesk/supportchat/internal/logger"
	"github.com/shopdesk/supportchat/internal/model"
)

const roomColumns = `id, customer_id, staff_id, status, created_at, updated_at`

type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func scanRoom(row pgx.Row) (*model.ChatRoom, error) {
	r := &model.ChatRoom{}
	if err := row.Scan(&r.ID, &r.CustomerID, &r.StaffID, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return r, nil
}

// FindActiveRoomForCustomer возвращает самую свежую активную комнату покупателя.
func (r *RoomRepository) FindActiveRoomForCustomer(ctx context.Context, customerID int64) (*model.ChatRoom, error) {
	defer logger.DeferLogDuration("room.FindActiveRoomForCustomer", time.Now())()
	room, err := scanRoom(r.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM chat_rooms
		 WHERE customer_id = $1 AND status = 'active'
		 ORDER BY created_at DESC LIMIT 1`, customerID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.FindActiveRoomForCustomer: %w", err)
	}
	return room, nil
}

// CreateRoom создаёт активную комнату без сотрудника. Если параллельный запрос
// уже создал активную комнату (idx_chat_rooms_one_active), возвращается она и created=false.
func (r *RoomRepository) CreateRoom(ctx context.Context, customerID int64) (*model.ChatRoom, bool, error) {
	defer logger.DeferLogDuration("room.CreateRoom", time.Now())()
	room, err := scanRoom(r.pool.QueryRow(ctx,
		`INSERT INTO chat_rooms (customer_id, status)
		 VALUES ($1, 'active')
		 ON CONFLICT (customer_id) WHERE status = 'active' DO NOTHING
		 RETURNING `+roomColumns, customerID,
	))
	if err == nil {
		return room, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("roomRepo.CreateRoom: %w", err)
	}
	room, err = r.FindActiveRoomForCustomer(ctx, customerID)
	if err != nil {
		return nil, false, fmt.Errorf("roomRepo.CreateRoom existing: %w", err)
	}
	return room, false, nil
}

func (r *RoomRepository) GetRoom(ctx context.Context, roomID int64) (*model.ChatRoom, error) {
	defer logger.DeferLogDuration("room.GetRoom", time.Now())()
	room, err := scanRoom(r.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM chat_rooms WHERE id = $1`, roomID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.GetRoom: %w", err)
	}
	return room, nil
}

// GetRoomDetails — комната с именами покупателя и сотрудника.
func (r *RoomRepository) GetRoomDetails(ctx context.Context, roomID int64) (*model.RoomDetails, error) {
	defer logger.DeferLogDuration("room.GetRoomDetails", time.Now())()
	d := &model.RoomDetails{}
	err := r.pool.QueryRow(ctx,
		`SELECT cr.id, cr.customer_id, cr.staff_id, cr.status, cr.created_at, cr.updated_at,
		        u.username, u.email, COALESCE(a.name, ''), COALESCE(a.email, '')
		 FROM chat_rooms cr
		 JOIN users u ON u.id = cr.customer_id
		 LEFT JOIN admins a ON a.id = cr.staff_id
		 WHERE cr.id = $1`, roomID,
	).Scan(&d.ID, &d.CustomerID, &d.StaffID, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		&d.CustomerName, &d.CustomerEmail, &d.StaffName, &d.StaffEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.GetRoomDetails: %w", err)
	}
	return d, nil
}

// AssignStaffIfUnset назначает сотрудника, только если комната активна и ещё без сотрудника.
// assigned=false означает, что назначение уже было; в этом случае комната возвращается как есть.
func (r *RoomRepository) AssignStaffIfUnset(ctx context.Context, roomID, staffID int64) (*model.ChatRoom, bool, error) {
	defer logger.DeferLogDuration("room.AssignStaffIfUnset", time.Now())()
	room, err := scanRoom(r.pool.QueryRow(ctx,
		`UPDATE chat_rooms SET staff_id = $2, updated_at = NOW()
		 WHERE id = $1 AND staff_id IS NULL AND status = 'active'
		 RETURNING `+roomColumns, roomID, staffID,
	))
	if err == nil {
		return room, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("roomRepo.AssignStaffIfUnset: %w", err)
	}
	room, err = r.GetRoom(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	if room.IsClosed() {
		return nil, false, ErrAlreadyClosed
	}
	return room, false, nil
}

// CloseRoom переводит комнату active -> closed. Повторное закрытие не трогает updated_at.
func (r *RoomRepository) CloseRoom(ctx context.Context, roomID int64) (*model.ChatRoom, error) {
	defer logger.DeferLogDuration("room.CloseRoom", time.Now())()
	room, err := scanRoom(r.pool.QueryRow(ctx,
		`UPDATE chat_rooms SET status = 'closed', updated_at = NOW()
		 WHERE id = $1 AND status = 'active'
		 RETURNING `+roomColumns, roomID,
	))
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("roomRepo.CloseRoom: %w", err)
	}
	if _, err := r.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return nil, ErrAlreadyClosed
}

func (r *RoomRepository) TouchRoomUpdatedAt(ctx context.Context, roomID int64) error {
	defer logger.DeferLogDuration("room.TouchRoomUpdatedAt", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE chat_rooms SET updated_at = NOW() WHERE id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("roomRepo.TouchRoomUpdatedAt: %w", err)
	}
	return nil
}

// ListActiveRooms — строки панели сотрудников, свежие сверху.
func (r *RoomRepository) ListActiveRooms(ctx context.Context) ([]model.RoomSummary, error) {
	defer logger.DeferLogDuration("room.ListActiveRooms", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT cr.id, cr.customer_id, cr.staff_id, cr.status, cr.created_at, cr.updated_at,
		        u.username, u.email, COALESCE(a.name, ''), COALESCE(a.email, ''),
		        (SELECT COUNT(*) FROM chat_messages m
		          WHERE m.room_id = cr.id AND m.sender_kind = 'customer' AND m.is_read = FALSE),
		        lm.body, lm.created_at, lm.sender_kind
		 FROM chat_rooms cr
		 JOIN users u ON u.id = cr.customer_id
		 LEFT JOIN admins a ON a.id = cr.staff_id
		 LEFT JOIN LATERAL (
		     SELECT body, created_at, sender_kind FROM chat_messages
		     WHERE room_id = cr.id ORDER BY id DESC LIMIT 1
		 ) lm ON TRUE
		 WHERE cr.status = 'active'
		 ORDER BY cr.updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.ListActiveRooms query: %w", err)
	}
	defer rows.Close()

	rooms := make([]model.RoomSummary, 0, 16)
	for rows.Next() {
		var s model.RoomSummary
		var lastKind *string
		if err := rows.Scan(&s.ID, &s.CustomerID, &s.StaffID, &s.Status, &s.CreatedAt, &s.UpdatedAt,
			&s.CustomerName, &s.CustomerEmail, &s.StaffName, &s.StaffEmail,
			&s.UnreadCount, &s.LastMessage, &s.LastMessageTime, &lastKind); err != nil {
			return nil, fmt.Errorf("roomRepo.ListActiveRooms scan: %w", err)
		}
		if lastKind != nil {
			k := model.PrincipalKind(*lastKind)
			s.LastSenderKind = &k
		}
		rooms = append(rooms, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roomRepo.ListActiveRooms rows: %w", err)
	}
	return rooms, nil
}

// Stats — сводка для панели; OnlineStaff заполняет вызывающий (данные присутствия не в БД).
func (r *RoomRepository) Stats(ctx context.Context) (*model.ChatStats, error) {
	defer logger.DeferLogDuration("room.Stats", time.Now())()
	s := &model.ChatStats{}
	err := r.pool.QueryRow(ctx,
		`SELECT
		    (SELECT COUNT(*) FROM chat_rooms),
		    (SELECT COUNT(*) FROM chat_rooms WHERE status = 'active'),
		    (SELECT COUNT(*) FROM chat_messages),
		    (SELECT COUNT(*) FROM chat_messages WHERE is_read = FALSE AND sender_kind = 'customer'),
		    (SELECT COUNT(DISTINCT room_id) FROM chat_messages WHERE is_read = FALSE AND sender_kind = 'customer')`,
	).Scan(&s.TotalRooms, &s.ActiveRooms, &s.TotalMessages, &s.UnreadMessages, &s.RoomsWithUnread)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.Stats counts: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT cr.id, u.username, u.email, m.body, m.sender_kind, m.created_at
		 FROM chat_messages m
		 JOIN chat_rooms cr ON cr.id = m.room_id
		 JOIN users u ON u.id = cr.customer_id
		 WHERE cr.status = 'active'
		 ORDER BY m.id DESC
		 LIMIT 10`,
	)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.Stats activity: %w", err)
	}
	defer rows.Close()
	s.RecentActivity = make([]model.RecentActivity, 0, 10)
	for rows.Next() {
		var a model.RecentActivity
		var kind string
		if err := rows.Scan(&a.RoomID, &a.CustomerName, &a.CustomerEmail, &a.Body, &kind, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("roomRepo.Stats scan: %w", err)
		}
		a.SenderKind = model.PrincipalKind(kind)
		s.RecentActivity = append(s.RecentActivity, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roomRepo.Stats rows: %w", err)
	}
	return s, nil
}
