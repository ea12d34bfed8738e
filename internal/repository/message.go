package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopdesk/supportchat/internal/logger"
	"github.com/shopdesk/supportchat/internal/model"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// InsertMessage сохраняет сообщение и заполняет ID, IsRead и CreatedAt.
func (r *MessageRepository) InsertMessage(ctx context.Context, m *model.ChatMessage) error {
	defer logger.DeferLogDuration("message.InsertMessage", time.Now())()
	if m.Kind == "" {
		m.Kind = model.MessageKindText
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (room_id, sender_id, sender_kind, body, message_kind)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, is_read, created_at`,
		m.RoomID, m.SenderID, m.SenderKind, m.Body, m.Kind,
	).Scan(&m.ID, &m.IsRead, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("messageRepo.InsertMessage: %w", err)
	}
	return nil
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// messagesQuery — окно сообщений комнаты; имя отправителя берётся из users/admins по sender_kind.
// limit <= 0 — без ограничения.
func messagesQuery(roomID int64, order string, limit, offset int) (string, []any, error) {
	q := psql.Select(
		"m.id", "m.room_id", "m.sender_id", "m.sender_kind",
		"COALESCE(CASE m.sender_kind WHEN 'staff' THEN a.name ELSE u.username END, '')",
		"m.body", "m.message_kind", "m.is_read", "m.created_at",
	).
		From("chat_messages m").
		LeftJoin("users u ON m.sender_kind = 'customer' AND u.id = m.sender_id").
		LeftJoin("admins a ON m.sender_kind = 'staff' AND a.id = m.sender_id").
		Where(sq.Eq{"m.room_id": roomID}).
		OrderBy("m.id " + order)
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	return q.ToSql()
}

// ListMessages возвращает сообщения по возрастанию id начиная с offset. limit <= 0 — без ограничения.
func (r *MessageRepository) ListMessages(ctx context.Context, roomID int64, limit, offset int) ([]model.ChatMessage, error) {
	defer logger.DeferLogDuration("message.ListMessages", time.Now())()
	return r.queryMessages(ctx, "messageRepo.ListMessages", roomID, "ASC", limit, offset)
}

// ListRecentMessages — окно из limit сообщений, пропустив offset самых новых; порядок возрастающий.
func (r *MessageRepository) ListRecentMessages(ctx context.Context, roomID int64, limit, offset int) ([]model.ChatMessage, error) {
	defer logger.DeferLogDuration("message.ListRecentMessages", time.Now())()
	msgs, err := r.queryMessages(ctx, "messageRepo.ListRecentMessages", roomID, "DESC", limit, offset)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *MessageRepository) queryMessages(ctx context.Context, op string, roomID int64, order string, limit, offset int) ([]model.ChatMessage, error) {
	query, args, err := messagesQuery(roomID, order, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s build: %w", op, err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", op, err)
	}
	return collectMessages(rows, op)
}

func collectMessages(rows pgx.Rows, op string) ([]model.ChatMessage, error) {
	defer rows.Close()
	msgs := make([]model.ChatMessage, 0, 50)
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderKind, &m.SenderName,
			&m.Body, &m.Kind, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return msgs, nil
}

// MarkRead помечает прочитанными непрочитанные сообщения отправителя senderKind; возвращает число изменённых.
func (r *MessageRepository) MarkRead(ctx context.Context, roomID int64, senderKind model.PrincipalKind) (int64, error) {
	defer logger.DeferLogDuration("message.MarkRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE chat_messages SET is_read = TRUE
		 WHERE room_id = $1 AND sender_kind = $2 AND is_read = FALSE`,
		roomID, senderKind,
	)
	if err != nil {
		return 0, fmt.Errorf("messageRepo.MarkRead: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepository) CountMessages(ctx context.Context, roomID int64) (int, error) {
	defer logger.DeferLogDuration("message.CountMessages", time.Now())()
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chat_messages WHERE room_id = $1`, roomID).Scan(&n); err != nil {
		return 0, fmt.Errorf("messageRepo.CountMessages: %w", err)
	}
	return n, nil
}
