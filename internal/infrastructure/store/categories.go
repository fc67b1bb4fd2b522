package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/ec-shop/internal/domain/catalog"
)

// CategoryStore persists categories in PostgreSQL.
type CategoryStore struct {
	db *sql.DB
}

func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

func (s *CategoryStore) Create(ctx context.Context, c *catalog.Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, slug, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Name, c.Slug, c.Description, c.CreatedAt)
	return err
}

func (s *CategoryStore) GetBySlug(ctx context.Context, slug string) (*catalog.Category, error) {
	var c catalog.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, created_at FROM categories WHERE slug = $1
	`, slug).Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrCategoryNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *CategoryStore) List(ctx context.Context) ([]*catalog.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, description, created_at FROM categories ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []*catalog.Category
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, &c)
	}
	return categories, rows.Err()
}
