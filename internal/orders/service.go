package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/ec-shop/internal/domain/catalog"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/events"
)

// OrderRepository is the persistence surface the workflow needs. Create and
// CancelWithRestock adjust product stock in the same transaction as the
// order write.
type OrderRepository interface {
	Create(ctx context.Context, o *order.Order) error
	Save(ctx context.Context, o *order.Order) error
	CancelWithRestock(ctx context.Context, o *order.Order) error
	Get(ctx context.Context, id string) (*order.Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*order.Order, int, error)
	ListAll(ctx context.Context, status order.Status, limit, offset int) ([]*order.Order, int, error)
	Stats(ctx context.Context) (*Stats, error)
}

type ProductRepository interface {
	Get(ctx context.Context, id string) (*catalog.Product, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Stats is the admin overview aggregate.
type Stats struct {
	TotalOrders int            `json:"total_orders"`
	ByStatus    map[string]int `json:"by_status"`
	PaidRevenue float64        `json:"paid_revenue"`
}

// Line is one cart line submitted at checkout. Everything else on the order
// item is snapshotted from the product server-side.
type Line struct {
	ProductID          string                    `json:"product_id"`
	Quantity           int                       `json:"quantity"`
	SelectedParameters []order.SelectedParameter `json:"selected_parameters,omitempty"`
}

// CreateParams carries the checkout payload into the workflow.
type CreateParams struct {
	UserID          string
	Lines           []Line
	ShippingAddress order.ShippingAddress
	PaymentMethod   string
	Notes           string
}

type Service struct {
	orders    OrderRepository
	products  ProductRepository
	publisher Publisher
	nowFunc   func() time.Time
}

func NewService(orders OrderRepository, products ProductRepository, publisher Publisher) *Service {
	return &Service{
		orders:    orders,
		products:  products,
		publisher: publisher,
		nowFunc:   time.Now,
	}
}

// Create validates every cart line against the live catalog, snapshots the
// products into order items and writes the order together with the stock
// decrements in one transaction. The event publish happens after commit and
// is best-effort.
func (s *Service) Create(ctx context.Context, params CreateParams) (*order.Order, error) {
	items := make([]order.Item, 0, len(params.Lines))
	for _, line := range params.Lines {
		p, err := s.products.Get(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, line.ProductID)
			}
			return nil, err
		}
		if !p.IsActive {
			return nil, fmt.Errorf("%w: %s", catalog.ErrProductInactive, p.Name)
		}
		if p.Stock < line.Quantity {
			return nil, fmt.Errorf("%w for %s: %d available", catalog.ErrInsufficientStock, p.Name, p.Stock)
		}
		items = append(items, order.Item{
			ProductID:          p.ID,
			Name:               p.Name,
			Image:              p.FirstImage(),
			Price:              p.Price,
			Quantity:           line.Quantity,
			SelectedParameters: line.SelectedParameters,
		})
	}

	now := s.nowFunc()
	paymentMethod := params.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = order.DefaultPaymentMethod
	}

	o := &order.Order{
		ID:              uuid.New().String(),
		UserID:          params.UserID,
		Items:           items,
		ShippingAddress: params.ShippingAddress,
		PaymentMethod:   paymentMethod,
		Status:          order.StatusPending,
		Notes:           params.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.Recalculate()

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeOrderPlaced, o.ID, events.OrderPlaced{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Items:      o.Items,
		TotalPrice: o.TotalPrice,
		PlacedAt:   now,
	})
	return o, nil
}

// Cancel moves the order to Cancelled and restores stock for its items in
// one transaction. Delivered and already-cancelled orders are rejected by
// the domain check before anything is written.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := o.Cancel(reason); err != nil {
		return nil, err
	}

	o.Recalculate()
	o.UpdatedAt = s.nowFunc()
	if err := s.orders.CancelWithRestock(ctx, o); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeOrderCancelled, o.ID, events.OrderCancelled{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Reason:      o.Notes,
		CancelledAt: o.UpdatedAt,
	})
	return o, nil
}

// Pay records an out-of-band payment confirmation.
func (s *Service) Pay(ctx context.Context, orderID string, result order.PaymentResult) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := o.MarkPaid(result, s.nowFunc()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateStatus is the admin status overwrite.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status order.Status, trackingNumber string, eta *time.Time) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.ApplyStatus(o, status, trackingNumber, eta, s.nowFunc()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, o); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeOrderStatusChanged, o.ID, events.OrderStatusChanged{
		OrderID:        o.ID,
		UserID:         o.UserID,
		Status:         o.Status,
		TrackingNumber: o.TrackingNumber,
		ChangedAt:      o.UpdatedAt,
	})
	return o, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*order.Order, error) {
	return s.orders.Get(ctx, orderID)
}

func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*order.Order, int, error) {
	return s.orders.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, status order.Status, limit, offset int) ([]*order.Order, int, error) {
	return s.orders.ListAll(ctx, status, limit, offset)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.orders.Stats(ctx)
}

// persist is the single write path for order mutations. Every save reprices
// the order from its item snapshot, including status-only updates.
func (s *Service) persist(ctx context.Context, o *order.Order) error {
	o.Recalculate()
	o.UpdatedAt = s.nowFunc()
	return s.orders.Save(ctx, o)
}

func (s *Service) publish(ctx context.Context, eventType, orderID string, payload any) {
	if s.publisher == nil {
		return
	}
	env, err := events.Wrap(eventType, orderID, payload)
	if err != nil {
		log.Printf("[Orders] failed to wrap %s event for order %s: %v", eventType, orderID, err)
		return
	}
	if err := s.publisher.Publish(ctx, orderID, env); err != nil {
		log.Printf("[Orders] failed to publish %s event for order %s: %v", eventType, orderID, err)
	}
}
