package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/example/ec-shop/internal/api/middleware"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/domain/catalog"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/orders"
)

// OrderHandlers handles order-related HTTP requests
type OrderHandlers struct {
	orders *orders.Service
}

func NewOrderHandlers(ordersService *orders.Service) *OrderHandlers {
	return &OrderHandlers{orders: ordersService}
}

type CreateOrderRequest struct {
	Items           []orders.Line         `json:"items" validate:"required,min=1,dive"`
	ShippingAddress order.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                `json:"payment_method"`
	Notes           string                `json:"notes"`
}

type PayOrderRequest struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	UpdateTime   time.Time `json:"update_time"`
	EmailAddress string    `json:"email_address"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type UpdateStatusRequest struct {
	Status            string     `json:"status" validate:"required"`
	TrackingNumber    string     `json:"tracking_number"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
}

// CreateOrder places an order from the client-held cart.
func (h *OrderHandlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	for _, line := range req.Items {
		if line.ProductID == "" || line.Quantity < 1 {
			respondJSONError(w, "Each item needs a product_id and a positive quantity", http.StatusBadRequest)
			return
		}
	}

	o, err := h.orders.Create(r.Context(), orders.CreateParams{
		UserID:          middleware.GetUserID(r.Context()),
		Lines:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrProductNotFound):
			respondJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, catalog.ErrProductInactive),
			errors.Is(err, catalog.ErrInsufficientStock):
			respondJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("[API] Failed to create order: %v", err)
			respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, http.StatusCreated, o)
}

// MyOrders lists the authenticated user's orders, newest first.
func (h *OrderHandlers) MyOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	userID := middleware.GetUserID(r.Context())

	list, total, err := h.orders.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("[API] Failed to list orders for user %s: %v", userID, err)
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*order.Order{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"orders": list,
		"total":  total,
	})
}

// GetOrder fetches a single order. Customers may only read their own.
func (h *OrderHandlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/api/orders/")

	o, ok := h.loadOwnedOrder(w, r, id)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// PayOrder records an out-of-band payment confirmation.
func (h *OrderHandlers) PayOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/api/orders/")
	if _, ok := h.loadOwnedOrder(w, r, id); !ok {
		return
	}

	var req PayOrderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	o, err := h.orders.Pay(r.Context(), id, order.PaymentResult{
		ID:           req.ID,
		Status:       req.Status,
		UpdateTime:   req.UpdateTime,
		EmailAddress: req.EmailAddress,
	})
	if err != nil {
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			respondJSONError(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, order.ErrAlreadyPaid):
			respondJSONError(w, "Order is already paid", http.StatusBadRequest)
		default:
			log.Printf("[API] Failed to pay order %s: %v", id, err)
			respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, http.StatusOK, o)
}

// CancelOrder cancels an order and restores the stock of its items.
func (h *OrderHandlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/api/orders/")
	if _, ok := h.loadOwnedOrder(w, r, id); !ok {
		return
	}

	var req CancelOrderRequest
	if r.ContentLength > 0 {
		if !decodeAndValidate(w, r, &req) {
			return
		}
	}

	o, err := h.orders.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			respondJSONError(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, order.ErrOrderDelivered):
			respondJSONError(w, "Cannot cancel a delivered order", http.StatusBadRequest)
		case errors.Is(err, order.ErrOrderCancelled):
			respondJSONError(w, "Order is already cancelled", http.StatusBadRequest)
		default:
			log.Printf("[API] Failed to cancel order %s: %v", id, err)
			respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, http.StatusOK, o)
}

// ListOrders is the admin listing with an optional status filter.
func (h *OrderHandlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := order.Status(r.URL.Query().Get("status"))
	if status != "" && !order.ValidStatus(status) {
		respondJSONError(w, "Unknown order status", http.StatusBadRequest)
		return
	}

	limit, offset := pagination(r)
	list, total, err := h.orders.ListAll(r.Context(), status, limit, offset)
	if err != nil {
		log.Printf("[API] Failed to list orders: %v", err)
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*order.Order{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"orders": list,
		"total":  total,
	})
}

// UpdateStatus is the admin status overwrite endpoint.
func (h *OrderHandlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/api/orders/")

	var req UpdateStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), id, order.Status(req.Status), req.TrackingNumber, req.EstimatedDelivery)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			respondJSONError(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, order.ErrUnknownStatus):
			respondJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("[API] Failed to update status of order %s: %v", id, err)
			respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, http.StatusOK, o)
}

// Stats returns the admin order overview.
func (h *OrderHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.Stats(r.Context())
	if err != nil {
		log.Printf("[API] Failed to compute order stats: %v", err)
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// loadOwnedOrder fetches the order and enforces that customers only touch
// their own orders. Admins bypass the ownership check.
func (h *OrderHandlers) loadOwnedOrder(w http.ResponseWriter, r *http.Request, id string) (*order.Order, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondJSONError(w, "Order not found", http.StatusNotFound)
		} else {
			log.Printf("[API] Failed to load order %s: %v", id, err)
			respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return nil, false
	}

	if claims.Role != auth.RoleAdmin && o.UserID != claims.UserID {
		respondJSONError(w, "forbidden", http.StatusForbidden)
		return nil, false
	}
	return o, true
}
