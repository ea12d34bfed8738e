package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Store объединяет репозитории чата в одно хранилище сообщений.
type Store struct {
	*RoomRepository
	*MessageRepository
	*DirectoryRepository
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		RoomRepository:      NewRoomRepository(pool),
		MessageRepository:   NewMessageRepository(pool),
		DirectoryRepository: NewDirectoryRepository(pool),
	}
}
