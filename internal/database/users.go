package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stayfinder/internal/models"
)

// UpsertUser creates the profile for user.ID or updates its editable fields.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	if user.Role == "" {
		user.Role = models.RoleGuest
	}
	query := `INSERT INTO users (id, name, email, role, telegram_chat_id, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                email = excluded.email,
                role = excluded.role,
                telegram_chat_id = excluded.telegram_chat_id,
                updated_at = excluded.updated_at`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Role,
		user.TelegramChatID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create or update user: %w", err)
	}
	user.UpdatedAt = now
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, name, email, role, telegram_chat_id, created_at, updated_at
              FROM users WHERE id = ?`
	var user models.User
	err := db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Name, &user.Email, &user.Role, &user.TelegramChatID, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
