package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Rules struct {
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (db *DB) GetRules(ctx context.Context, kind string) (*Rules, error) {
	var r Rules
	err := db.pool.QueryRow(ctx,
		"SELECT kind, text, updated_at FROM rules WHERE kind = $1",
		kind,
	).Scan(&r.Kind, &r.Text, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rules %q: %w", kind, err)
	}
	return &r, nil
}

// SetRules creates or replaces the text for kind.
func (db *DB) SetRules(ctx context.Context, kind, text string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO rules (kind, text, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (kind) DO UPDATE SET text = EXCLUDED.text, updated_at = EXCLUDED.updated_at`,
		kind, text,
	)
	if err != nil {
		return fmt.Errorf("set rules %q: %w", kind, err)
	}
	return nil
}
