package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/email"
	"github.com/example/ec-shop/internal/events"
)

// UserLookup resolves recipient addresses. Implemented by the users store.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// Handler turns order events into customer emails.
type Handler struct {
	emailService email.Sender
	users        UserLookup
}

func NewHandler(emailSvc email.Sender, users UserLookup) *Handler {
	return &Handler{
		emailService: emailSvc,
		users:        users,
	}
}

// HandleEvent processes one event from Kafka. Lookup and delivery failures
// are logged and swallowed so one bad message cannot wedge the consumer.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	switch env.Type {
	case events.TypeOrderPlaced:
		return h.handleOrderPlaced(ctx, env)
	case events.TypeOrderStatusChanged:
		return h.handleStatusChanged(ctx, env)
	}
	return nil
}

func (h *Handler) handleOrderPlaced(ctx context.Context, env events.Envelope) error {
	var e events.OrderPlaced
	if err := json.Unmarshal(env.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderPlaced event: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing OrderPlaced event for order %s, user %s", e.OrderID, e.UserID)

	address, ok := h.recipient(ctx, e.UserID)
	if !ok {
		return nil
	}

	emailItems := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		emailItems[i] = email.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	if err := h.emailService.SendOrderConfirmation(address, e.OrderID, e.TotalPrice, emailItems); err != nil {
		log.Printf("[Notifier] Failed to send confirmation to %s: %v", address, err)
		return nil
	}

	log.Printf("[Notifier] Order confirmation email sent to %s for order %s", address, e.OrderID)
	return nil
}

func (h *Handler) handleStatusChanged(ctx context.Context, env events.Envelope) error {
	var e events.OrderStatusChanged
	if err := json.Unmarshal(env.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderStatusChanged event: %v", err)
		return err
	}

	if e.Status != order.StatusShipped {
		return nil
	}

	address, ok := h.recipient(ctx, e.UserID)
	if !ok {
		return nil
	}

	if err := h.emailService.SendShippingNotice(address, e.OrderID, e.TrackingNumber); err != nil {
		log.Printf("[Notifier] Failed to send shipping notice to %s: %v", address, err)
		return nil
	}

	log.Printf("[Notifier] Shipping notice sent to %s for order %s", address, e.OrderID)
	return nil
}

func (h *Handler) recipient(ctx context.Context, userID string) (string, bool) {
	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		log.Printf("[Notifier] Error getting user %s: %v", userID, err)
		return "", false
	}
	return u.Email, true
}
