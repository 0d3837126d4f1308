package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jaaahooou/apka-inz/internal/domain"
)

// UserRepository reads principals and flips their presence flags. The user
// lifecycle itself belongs to the account-management side of the application;
// the messaging core only touches is_online and is_visible.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	query := `
		SELECT id, first_name, last_name, email, is_active, is_online, is_visible, created_at
		FROM users
		WHERE id = $1
	`
	var u domain.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email,
		&u.IsActive, &u.IsOnline, &u.IsVisible, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %d: %w", id, err)
	}
	return &u, nil
}

// SetOnline flips only the is_online column so connect/disconnect never races
// with a concurrent profile edit rewriting the rest of the row.
func (r *UserRepository) SetOnline(ctx context.Context, id int64, online bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_online = $2 WHERE id = $1`, id, online)
	if err != nil {
		return fmt.Errorf("failed to set is_online for user %d: %w", id, err)
	}
	return nil
}
