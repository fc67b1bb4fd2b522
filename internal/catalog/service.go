package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/ec-shop/internal/domain/catalog"
	"github.com/example/ec-shop/internal/infrastructure/store"
)

// ProductRepository and CategoryRepository are implemented by the Postgres
// stores.
type ProductRepository interface {
	Create(ctx context.Context, p *catalog.Product) error
	Update(ctx context.Context, p *catalog.Product) error
	Deactivate(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*catalog.Product, error)
	Search(ctx context.Context, params store.SearchParams) ([]*catalog.Product, error)
}

type CategoryRepository interface {
	Create(ctx context.Context, c *catalog.Category) error
	GetBySlug(ctx context.Context, slug string) (*catalog.Category, error)
	List(ctx context.Context) ([]*catalog.Category, error)
}

type Service struct {
	products   ProductRepository
	categories CategoryRepository
	nowFunc    func() time.Time
}

func NewService(products ProductRepository, categories CategoryRepository) *Service {
	return &Service{products: products, categories: categories, nowFunc: time.Now}
}

// ProductParams carries admin create/update payloads.
type ProductParams struct {
	Name        string
	Description string
	Price       float64
	Stock       int
	Images      []string
	CategoryID  string
}

func (s *Service) CreateProduct(ctx context.Context, params ProductParams) (*catalog.Product, error) {
	now := s.nowFunc()
	p := &catalog.Product{
		ID:          uuid.New().String(),
		Name:        params.Name,
		Description: params.Description,
		Price:       params.Price,
		Stock:       params.Stock,
		Images:      params.Images,
		CategoryID:  params.CategoryID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, params ProductParams) (*catalog.Product, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = params.Name
	p.Description = params.Description
	p.Price = params.Price
	p.Stock = params.Stock
	p.Images = params.Images
	p.CategoryID = params.CategoryID
	p.UpdatedAt = s.nowFunc()
	if err := s.products.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProduct deactivates the product. Orders hold item snapshots, so
// rows are never removed.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.products.Deactivate(ctx, id)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	return s.products.Get(ctx, id)
}

func (s *Service) SearchProducts(ctx context.Context, params store.SearchParams) ([]*catalog.Product, error) {
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 20
	}
	return s.products.Search(ctx, params)
}

func (s *Service) CreateCategory(ctx context.Context, name, slug, description string) (*catalog.Category, error) {
	if slug == "" {
		slug = slugify(name)
	}
	c := &catalog.Category{
		ID:          uuid.New().String(),
		Name:        name,
		Slug:        slug,
		Description: description,
		CreatedAt:   s.nowFunc(),
	}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCategoryBySlug(ctx context.Context, slug string) (*catalog.Category, error) {
	return s.categories.GetBySlug(ctx, slug)
}

func (s *Service) ListCategories(ctx context.Context) ([]*catalog.Category, error) {
	return s.categories.List(ctx)
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
