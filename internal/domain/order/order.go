package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
	StatusRefunded   Status = "Refunded"
)

const (
	// DefaultPaymentMethod is used when checkout does not name one; payment
	// is finalized out-of-band by an admin.
	DefaultPaymentMethod = "Negotiable"

	taxRate           = 0.10
	freeShippingAbove = 100.0
	flatShippingPrice = 10.0
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrAlreadyPaid    = errors.New("order is already paid")
	ErrOrderDelivered = errors.New("cannot cancel delivered order")
	ErrOrderCancelled = errors.New("order is already cancelled")
	ErrUnknownStatus  = errors.New("unknown order status")
)

// SelectedParameter is a buyer-chosen customization on an order item. Value
// may be a scalar or a structured value (e.g. dimensions), so it stays raw.
type SelectedParameter struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// Item is a snapshot of a product at order time. Name, image and price are
// captured when the order is created and never follow the live product.
type Item struct {
	ProductID          string              `json:"product_id"`
	Name               string              `json:"name"`
	Image              string              `json:"image"`
	Price              float64             `json:"price"`
	Quantity           int                 `json:"quantity"`
	SelectedParameters []SelectedParameter `json:"selected_parameters,omitempty"`
}

type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

// PaymentResult records an externally confirmed payment.
type PaymentResult struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	UpdateTime   time.Time `json:"update_time"`
	EmailAddress string    `json:"email_address"`
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Items           []Item          `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentResult   *PaymentResult  `json:"payment_result,omitempty"`

	ItemsPrice    float64 `json:"items_price"`
	TaxPrice      float64 `json:"tax_price"`
	ShippingPrice float64 `json:"shipping_price"`
	TotalPrice    float64 `json:"total_price"`

	IsPaid      bool       `json:"is_paid"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	IsDelivered bool       `json:"is_delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	Status            Status     `json:"status"`
	TrackingNumber    string     `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	NegotiationNotes  string     `json:"negotiation_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidStatus reports whether s is one of the six enumerated values.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Recalculate recomputes the derived prices from the current item snapshot.
// It runs before every persist, not just on creation, so a status-only
// update still reprices the order from its items.
func (o *Order) Recalculate() {
	var items float64
	for _, it := range o.Items {
		items += it.Price * float64(it.Quantity)
	}
	o.ItemsPrice = round2(items)
	o.TaxPrice = round2(o.ItemsPrice * taxRate)
	if o.ItemsPrice > freeShippingAbove {
		o.ShippingPrice = 0
	} else {
		o.ShippingPrice = flatShippingPrice
	}
	o.TotalPrice = round2(o.ItemsPrice + o.TaxPrice + o.ShippingPrice)
}

// MarkPaid records an external payment confirmation and moves the order to
// Processing. Paying twice is rejected and leaves PaidAt untouched.
func (o *Order) MarkPaid(res PaymentResult, now time.Time) error {
	if o.IsPaid {
		return ErrAlreadyPaid
	}
	o.IsPaid = true
	o.PaidAt = &now
	o.PaymentResult = &res
	o.Status = StatusProcessing
	return nil
}

// MarkDelivered flips the delivery flags and the status together. Writing
// the status directly bypasses this and desyncs IsDelivered/DeliveredAt.
func (o *Order) MarkDelivered(now time.Time) {
	o.IsDelivered = true
	o.DeliveredAt = &now
	o.Status = StatusDelivered
}

// SetTracking records shipment tracking and forces the status to Shipped.
func (o *Order) SetTracking(number string, eta *time.Time) {
	o.TrackingNumber = number
	if eta != nil {
		o.EstimatedDelivery = eta
	}
	o.Status = StatusShipped
}

// Cancel rejects orders that are delivered or already cancelled. Restoring
// product stock is the caller's job and must happen in the same transaction.
func (o *Order) Cancel(reason string) error {
	switch o.Status {
	case StatusDelivered:
		return ErrOrderDelivered
	case StatusCancelled:
		return ErrOrderCancelled
	}
	if reason == "" {
		reason = "Cancelled by customer"
	}
	o.Status = StatusCancelled
	o.Notes = reason
	return nil
}

// ApplyStatus is the admin status overwrite. Any enumerated value is
// accepted; Delivered and Shipped route through their mutation helpers so
// their side effects stay consistent, everything else is written as-is.
func ApplyStatus(o *Order, target Status, trackingNumber string, eta *time.Time, now time.Time) error {
	if !ValidStatus(target) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, target)
	}
	switch target {
	case StatusDelivered:
		o.MarkDelivered(now)
	case StatusShipped:
		if trackingNumber != "" {
			o.SetTracking(trackingNumber, eta)
		} else {
			o.Status = StatusShipped
		}
	default:
		o.Status = target
	}
	return nil
}
