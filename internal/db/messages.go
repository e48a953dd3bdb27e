package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DirectorMessage struct {
	ID         uuid.UUID `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	UserName   string    `json:"user_name"`
	Message    string    `json:"message"`
	Delivered  bool      `json:"delivered"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveDirectorMessage stores an undelivered message and returns it with its
// generated id.
func (db *DB) SaveDirectorMessage(ctx context.Context, telegramID int64, userName, message string) (*DirectorMessage, error) {
	m := DirectorMessage{
		ID:         uuid.New(),
		TelegramID: telegramID,
		UserName:   userName,
		Message:    message,
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO director_messages (id, telegram_id, user_name, message)
		 VALUES ($1, $2, $3, $4) RETURNING created_at`,
		m.ID, m.TelegramID, m.UserName, m.Message,
	).Scan(&m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("save director message: %w", err)
	}
	return &m, nil
}

func (db *DB) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	result, err := db.pool.Exec(ctx,
		"UPDATE director_messages SET delivered = true WHERE id = $1",
		id,
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDirectorMessages returns the most recent messages, newest first.
func (db *DB) ListDirectorMessages(ctx context.Context, limit int) ([]DirectorMessage, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, telegram_id, user_name, message, delivered, created_at
		 FROM director_messages ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []DirectorMessage
	for rows.Next() {
		var m DirectorMessage
		if err := rows.Scan(&m.ID, &m.TelegramID, &m.UserName, &m.Message, &m.Delivered, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
