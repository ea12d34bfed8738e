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

// DirectoryRepository читает имена покупателей (users) и сотрудников (admins).
// Таблицы принадлежат магазину, чат только читает их.
type DirectoryRepository struct {
	pool *pgxpool.Pool
}

func NewDirectoryRepository(pool *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

func (r *DirectoryRepository) DisplayName(ctx context.Context, id int64, kind model.PrincipalKind) (string, error) {
	defer logger.DeferLogDuration("directory.DisplayName", time.Now())()
	query := `SELECT username FROM users WHERE id = $1`
	if kind == model.KindStaff {
		query = `SELECT name FROM admins WHERE id = $1`
	}
	var name string
	err := r.pool.QueryRow(ctx, query, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("directoryRepo.DisplayName: %w", err)
	}
	return name, nil
}
