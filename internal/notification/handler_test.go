package notification

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/email"
	"github.com/example/ec-shop/internal/events"
)

type fakeUsers struct {
	byID map[string]*user.User
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

type fakeSender struct {
	confirmations []string
	shipping      []string
	otps          []string
}

func (f *fakeSender) SendOTP(to, _ string) error {
	f.otps = append(f.otps, to)
	return nil
}

func (f *fakeSender) SendOrderConfirmation(to, _ string, _ float64, _ []email.OrderItem) error {
	f.confirmations = append(f.confirmations, to)
	return nil
}

func (f *fakeSender) SendShippingNotice(to, _, _ string) error {
	f.shipping = append(f.shipping, to)
	return nil
}

func newTestHandler() (*Handler, *fakeSender) {
	sender := &fakeSender{}
	users := &fakeUsers{byID: map[string]*user.User{
		"user-1": {ID: "user-1", Email: "buyer@example.com"},
	}}
	return NewHandler(sender, users), sender
}

func marshal(t *testing.T, eventType, orderID string, payload any) []byte {
	t.Helper()
	env, err := events.Wrap(eventType, orderID, payload)
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return data
}

func TestOrderPlacedSendsConfirmation(t *testing.T) {
	h, sender := newTestHandler()

	msg := marshal(t, events.TypeOrderPlaced, "order-1", events.OrderPlaced{
		OrderID:    "order-1",
		UserID:     "user-1",
		Items:      []order.Item{{ProductID: "p1", Name: "Walnut Desk", Quantity: 1, Price: 150}},
		TotalPrice: 165,
	})

	require.NoError(t, h.HandleEvent(context.Background(), nil, msg))
	assert.Equal(t, []string{"buyer@example.com"}, sender.confirmations)
}

func TestShippedStatusSendsNotice(t *testing.T) {
	h, sender := newTestHandler()

	msg := marshal(t, events.TypeOrderStatusChanged, "order-1", events.OrderStatusChanged{
		OrderID:        "order-1",
		UserID:         "user-1",
		Status:         order.StatusShipped,
		TrackingNumber: "TRK-42",
	})

	require.NoError(t, h.HandleEvent(context.Background(), nil, msg))
	assert.Equal(t, []string{"buyer@example.com"}, sender.shipping)
	assert.Empty(t, sender.confirmations)
}

func TestNonShippedStatusIgnored(t *testing.T) {
	h, sender := newTestHandler()

	msg := marshal(t, events.TypeOrderStatusChanged, "order-1", events.OrderStatusChanged{
		OrderID: "order-1",
		UserID:  "user-1",
		Status:  order.StatusProcessing,
	})

	require.NoError(t, h.HandleEvent(context.Background(), nil, msg))
	assert.Empty(t, sender.shipping)
}

func TestUnknownUserSwallowed(t *testing.T) {
	h, sender := newTestHandler()

	msg := marshal(t, events.TypeOrderPlaced, "order-1", events.OrderPlaced{
		OrderID: "order-1",
		UserID:  "user-missing",
	})

	require.NoError(t, h.HandleEvent(context.Background(), nil, msg))
	assert.Empty(t, sender.confirmations)
}

func TestMalformedEventRejected(t *testing.T) {
	h, _ := newTestHandler()

	err := h.HandleEvent(context.Background(), nil, []byte("not json"))
	assert.Error(t, err)
}
