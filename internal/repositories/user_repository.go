package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"groupchat-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository exposes the account fields the realtime layer needs.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	UpdatePresence(ctx context.Context, userID int, online bool, lastSeen time.Time) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, username, email, avatar, is_online, last_seen, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// UpdatePresence stores the online flag and last seen timestamp.
func (r *UserRepo) UpdatePresence(ctx context.Context, userID int, online bool, lastSeen time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_online=$2, last_seen=$3 WHERE id=$1`, userID, online, lastSeen)
	if err != nil {
		return fmt.Errorf("update presence for user %d: %w", userID, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
