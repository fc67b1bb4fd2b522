package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	catalogsvc "github.com/example/ec-shop/internal/catalog"
	"github.com/example/ec-shop/internal/domain/catalog"
	"github.com/example/ec-shop/internal/infrastructure/store"
)

// CatalogHandlers handles product and category HTTP requests
type CatalogHandlers struct {
	catalog *catalogsvc.Service
}

func NewCatalogHandlers(catalogService *catalogsvc.Service) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalogService}
}

type ProductRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Price       float64  `json:"price" validate:"gte=0"`
	Stock       int      `json:"stock" validate:"gte=0"`
	Images      []string `json:"images"`
	CategoryID  string   `json:"category_id"`
}

type CategoryRequest struct {
	Name        string `json:"name" validate:"required"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// SearchProducts is the public product listing.
func (h *CatalogHandlers) SearchProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minPrice, _ := strconv.ParseFloat(q.Get("min_price"), 64)
	maxPrice, _ := strconv.ParseFloat(q.Get("max_price"), 64)
	limit, offset := pagination(r)

	products, err := h.catalog.SearchProducts(r.Context(), store.SearchParams{
		Query:      q.Get("q"),
		CategoryID: q.Get("category"),
		MinPrice:   minPrice,
		MaxPrice:   maxPrice,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		log.Printf("[API] Failed to search products: %v", err)
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if products == nil {
		products = []*catalog.Product{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *CatalogHandlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/api/products/")

	p, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondJSONError(w, "Product not found", http.StatusNotFound)
		} else {
			log.Printf("[API] Failed to get product %s: %v", id, err)
			respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *CatalogHandlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.catalog.CreateProduct(r.Context(), catalogsvc.ProductParams{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Images:      req.Images,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		log.Printf("[API] Failed to create product: %v", err)
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *CatalogHandlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/api/products/")

	var req ProductRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.catalog.UpdateProduct(r.Context(), id, catalogsvc.ProductParams{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Images:      req.Images,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondJSONError(w, "Product not found", http.StatusNotFound)
		} else {
			log.Printf("[API] Failed to update product %s: %v", id, err)
			respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// DeleteProduct deactivates the product so existing order snapshots keep a
// valid reference.
func (h *CatalogHandlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/api/products/")

	if err := h.catalog.DeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondJSONError(w, "Product not found", http.StatusNotFound)
		} else {
			log.Printf("[API] Failed to delete product %s: %v", id, err)
			respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

func (h *CatalogHandlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		log.Printf("[API] Failed to list categories: %v", err)
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if categories == nil {
		categories = []*catalog.Category{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *CatalogHandlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	c, err := h.catalog.CreateCategory(r.Context(), req.Name, req.Slug, req.Description)
	if err != nil {
		log.Printf("[API] Failed to create category: %v", err)
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}
