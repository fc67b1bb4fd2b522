package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/example/ec-shop/internal/domain/order"
)

const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderCancelled     = "order.cancelled"
	TypeOrderStatusChanged = "order.status_changed"
)

// Envelope wraps an order event for the wire. Consumers switch on Type and
// unmarshal Data into the matching payload.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OrderID    string          `json:"order_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type OrderPlaced struct {
	OrderID    string       `json:"order_id"`
	UserID     string       `json:"user_id"`
	Items      []order.Item `json:"items"`
	TotalPrice float64      `json:"total_price"`
	PlacedAt   time.Time    `json:"placed_at"`
}

type OrderCancelled struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

type OrderStatusChanged struct {
	OrderID        string       `json:"order_id"`
	UserID         string       `json:"user_id"`
	Status         order.Status `json:"status"`
	TrackingNumber string       `json:"tracking_number,omitempty"`
	ChangedAt      time.Time    `json:"changed_at"`
}

// Wrap builds an Envelope around a payload.
func Wrap(eventType, orderID string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:         uuid.New().String(),
		Type:       eventType,
		OrderID:    orderID,
		OccurredAt: time.Now(),
		Data:       data,
	}, nil
}
