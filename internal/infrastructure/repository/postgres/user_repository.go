package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

// UserRepository reads the account table shared with the accounts service.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.db.QueryRowContext(ctx, `SELECT id, email, name, tier FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Email, &user.Name, &user.Tier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrUserNotFound, "get user", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// NotificationRepository stores in-app notifications.
type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) CreateInAppNotification(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO notifications (id, user_id, document_id, type, title, message, created_at, read_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, n.ID, n.UserID, n.DocumentID, n.Type, n.Title, n.Message, n.CreatedAt.UTC(), n.ReadAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
