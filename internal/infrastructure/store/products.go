package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/example/ec-shop/internal/domain/catalog"
)

// ProductStore persists products in PostgreSQL. Stock mutations tied to
// order creation and cancellation live in OrderStore so they share the
// order's transaction.
type ProductStore struct {
	db *sql.DB
}

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

const productColumns = `id, name, description, price, stock, images, category_id, is_active, created_at, updated_at`

func (s *ProductStore) Create(ctx context.Context, p *catalog.Product) error {
	images, err := json.Marshal(p.Images)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.Name, p.Description, p.Price, p.Stock, images, nullString(p.CategoryID), p.IsActive, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *ProductStore) Update(ctx context.Context, p *catalog.Product) error {
	images, err := json.Marshal(p.Images)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET
			name = $2, description = $3, price = $4, stock = $5,
			images = $6, category_id = $7, is_active = $8, updated_at = $9
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Price, p.Stock, images, nullString(p.CategoryID), p.IsActive, p.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

// Deactivate hides a product from the storefront. Products referenced by
// order snapshots are never hard-deleted.
func (s *ProductStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET is_active = FALSE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

func (s *ProductStore) Get(ctx context.Context, id string) (*catalog.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE id = $1
	`, id))
}

// SearchParams filters the public product listing.
type SearchParams struct {
	Query      string
	CategoryID string
	MinPrice   float64
	MaxPrice   float64
	Limit      int
	Offset     int
}

// Search lists active products. A text query matches via full-text search
// or a substring fallback, so short fragments still hit.
func (s *ProductStore) Search(ctx context.Context, params SearchParams) ([]*catalog.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	conditions := []string{"is_active = TRUE"}
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if params.Query != "" {
		p := arg(params.Query)
		conditions = append(conditions, fmt.Sprintf(
			`(to_tsvector('english', name || ' ' || description) @@ plainto_tsquery('english', %s)
			  OR name ILIKE '%%' || %s || '%%')`, p, p))
	}
	if params.CategoryID != "" {
		conditions = append(conditions, "category_id = "+arg(params.CategoryID))
	}
	if params.MinPrice > 0 {
		conditions = append(conditions, "price >= "+arg(params.MinPrice))
	}
	if params.MaxPrice > 0 {
		conditions = append(conditions, "price <= "+arg(params.MaxPrice))
	}

	query += " WHERE " + strings.Join(conditions, " AND ")
	query += " ORDER BY created_at DESC"
	if params.Limit > 0 {
		query += " LIMIT " + arg(params.Limit)
	}
	if params.Offset > 0 {
		query += " OFFSET " + arg(params.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*catalog.Product
	for rows.Next() {
		p, err := scanProductRow(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row *sql.Row) (*catalog.Product, error) {
	p, err := scanProductRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanProductRow(row rowScanner) (*catalog.Product, error) {
	var p catalog.Product
	var images []byte
	var categoryID sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &images, &categoryID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(images, &p.Images); err != nil {
		return nil, err
	}
	p.CategoryID = categoryID.String
	return &p, nil
}
