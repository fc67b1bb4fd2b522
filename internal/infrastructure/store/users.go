package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/example/ec-shop/internal/domain/user"
)

// UserStore persists users in PostgreSQL.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, u *user.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return user.ErrEmailTaken
		}
		return err
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*user.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, role, is_active, created_at, updated_at
		FROM users WHERE id = $1
	`, id))
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, role, is_active, created_at, updated_at
		FROM users WHERE email = $1
	`, email))
}

func (s *UserStore) scanOne(row *sql.Row) (*user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
