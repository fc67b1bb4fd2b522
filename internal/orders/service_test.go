package orders

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-shop/internal/domain/catalog"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/events"
)

type fakeProducts struct {
	products map[string]*catalog.Product
}

func (f *fakeProducts) Get(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeOrders struct {
	byID      map[string]*order.Order
	created   []*order.Order
	saved     []*order.Order
	restocked []*order.Order
	createErr error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{byID: make(map[string]*order.Order)}
}

func (f *fakeOrders) Create(_ context.Context, o *order.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, o)
	f.byID[o.ID] = o
	return nil
}

func (f *fakeOrders) Save(_ context.Context, o *order.Order) error {
	if _, ok := f.byID[o.ID]; !ok {
		return order.ErrOrderNotFound
	}
	f.saved = append(f.saved, o)
	f.byID[o.ID] = o
	return nil
}

func (f *fakeOrders) CancelWithRestock(_ context.Context, o *order.Order) error {
	if _, ok := f.byID[o.ID]; !ok {
		return order.ErrOrderNotFound
	}
	f.restocked = append(f.restocked, o)
	f.byID[o.ID] = o
	return nil
}

func (f *fakeOrders) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) ListByUser(_ context.Context, userID string, _, _ int) ([]*order.Order, int, error) {
	var out []*order.Order
	for _, o := range f.byID {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (f *fakeOrders) ListAll(_ context.Context, _ order.Status, _, _ int) ([]*order.Order, int, error) {
	var out []*order.Order
	for _, o := range f.byID {
		out = append(out, o)
	}
	return out, len(out), nil
}

func (f *fakeOrders) Stats(_ context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[string]int)}
	for _, o := range f.byID {
		stats.ByStatus[string(o.Status)]++
		stats.TotalOrders++
		if o.IsPaid {
			stats.PaidRevenue += o.TotalPrice
		}
	}
	return stats, nil
}

type fakePublisher struct {
	published []events.Envelope
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, _ string, event any) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, event.(events.Envelope))
	return nil
}

func testCatalog() *fakeProducts {
	return &fakeProducts{products: map[string]*catalog.Product{
		"prod-1": {
			ID: "prod-1", Name: "Walnut Desk", Price: 150.00, Stock: 5,
			Images: []string{"https://cdn.example.com/desk.jpg"}, IsActive: true,
		},
		"prod-2": {
			ID: "prod-2", Name: "Brass Lamp", Price: 20.00, Stock: 2,
			IsActive: true,
		},
		"prod-inactive": {
			ID: "prod-inactive", Name: "Retired Chair", Price: 80.00, Stock: 10,
			IsActive: false,
		},
	}}
}

func newTestService() (*Service, *fakeOrders, *fakePublisher) {
	repo := newFakeOrders()
	pub := &fakePublisher{}
	svc := NewService(repo, testCatalog(), pub)
	return svc, repo, pub
}

func TestCreateSnapshotsProductsAndPrices(t *testing.T) {
	svc, repo, pub := newTestService()

	o, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines: []Line{
			{ProductID: "prod-1", Quantity: 2},
			{ProductID: "prod-2", Quantity: 1},
		},
		ShippingAddress: order.ShippingAddress{FullName: "Ada Lovelace", City: "London"},
	})
	require.NoError(t, err)

	require.Len(t, o.Items, 2)
	assert.Equal(t, "Walnut Desk", o.Items[0].Name)
	assert.Equal(t, "https://cdn.example.com/desk.jpg", o.Items[0].Image)
	assert.Equal(t, 150.00, o.Items[0].Price)
	assert.Equal(t, "", o.Items[1].Image)

	// 320 items, 32 tax, free shipping above 100
	assert.Equal(t, 320.00, o.ItemsPrice)
	assert.Equal(t, 32.00, o.TaxPrice)
	assert.Equal(t, 0.00, o.ShippingPrice)
	assert.Equal(t, 352.00, o.TotalPrice)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.DefaultPaymentMethod, o.PaymentMethod)
	assert.NotEmpty(t, o.ID)

	require.Len(t, repo.created, 1)
	require.Len(t, pub.published, 1)
	env := pub.published[0]
	assert.Equal(t, events.TypeOrderPlaced, env.Type)
	assert.Equal(t, o.ID, env.OrderID)

	var placed events.OrderPlaced
	require.NoError(t, json.Unmarshal(env.Data, &placed))
	assert.Equal(t, "user-1", placed.UserID)
	assert.Equal(t, 352.00, placed.TotalPrice)
}

func TestCreateKeepsExplicitPaymentMethod(t *testing.T) {
	svc, _, _ := newTestService()

	o, err := svc.Create(context.Background(), CreateParams{
		UserID:        "user-1",
		Lines:         []Line{{ProductID: "prod-2", Quantity: 1}},
		PaymentMethod: "BankTransfer",
	})
	require.NoError(t, err)
	assert.Equal(t, "BankTransfer", o.PaymentMethod)
}

func TestCreateUnknownProduct(t *testing.T) {
	svc, repo, pub := newTestService()

	_, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines:  []Line{{ProductID: "prod-missing", Quantity: 1}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
	assert.Contains(t, err.Error(), "prod-missing")
	assert.Empty(t, repo.created)
	assert.Empty(t, pub.published)
}

func TestCreateInactiveProduct(t *testing.T) {
	svc, repo, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines:  []Line{{ProductID: "prod-inactive", Quantity: 1}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrProductInactive)
	assert.Contains(t, err.Error(), "Retired Chair")
	assert.Empty(t, repo.created)
}

func TestCreateInsufficientStock(t *testing.T) {
	svc, repo, pub := newTestService()

	_, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines:  []Line{{ProductID: "prod-2", Quantity: 3}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Brass Lamp")
	assert.Contains(t, err.Error(), "2 available")
	assert.Empty(t, repo.created)
	assert.Empty(t, pub.published)
}

func TestCreateStoreFailureSkipsPublish(t *testing.T) {
	svc, repo, pub := newTestService()
	repo.createErr = errors.New("db down")

	_, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines:  []Line{{ProductID: "prod-1", Quantity: 1}},
	})
	require.Error(t, err)
	assert.Empty(t, pub.published)
}

func TestCreateSucceedsWhenPublishFails(t *testing.T) {
	svc, _, pub := newTestService()
	pub.err = errors.New("broker unreachable")

	o, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines:  []Line{{ProductID: "prod-1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.NotNil(t, o)
}

func TestCancelRestocksAndPublishes(t *testing.T) {
	svc, repo, pub := newTestService()

	placed, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines:  []Line{{ProductID: "prod-1", Quantity: 1}},
	})
	require.NoError(t, err)
	pub.published = nil

	cancelled, err := svc.Cancel(context.Background(), placed.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, "changed my mind", cancelled.Notes)

	require.Len(t, repo.restocked, 1)
	require.Len(t, pub.published, 1)
	assert.Equal(t, events.TypeOrderCancelled, pub.published[0].Type)

	var payload events.OrderCancelled
	require.NoError(t, json.Unmarshal(pub.published[0].Data, &payload))
	assert.Equal(t, "changed my mind", payload.Reason)
}

func TestCancelDeliveredOrderRejected(t *testing.T) {
	svc, repo, pub := newTestService()

	placed, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines:  []Line{{ProductID: "prod-1", Quantity: 1}},
	})
	require.NoError(t, err)
	repo.byID[placed.ID].MarkDelivered(time.Now())
	pub.published = nil

	_, err = svc.Cancel(context.Background(), placed.ID, "")
	assert.ErrorIs(t, err, order.ErrOrderDelivered)
	assert.Empty(t, repo.restocked)
	assert.Empty(t, pub.published)
}

func TestCancelUnknownOrder(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Cancel(context.Background(), "order-missing", "")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestPayMarksOrderPaid(t *testing.T) {
	svc, repo, _ := newTestService()

	placed, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines:  []Line{{ProductID: "prod-1", Quantity: 1}},
	})
	require.NoError(t, err)

	paid, err := svc.Pay(context.Background(), placed.ID, order.PaymentResult{
		ID: "txn-1", Status: "COMPLETED", EmailAddress: "buyer@example.com",
	})
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, order.StatusProcessing, paid.Status)
	require.Len(t, repo.saved, 1)
}

func TestPayTwiceRejected(t *testing.T) {
	svc, _, _ := newTestService()

	placed, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines:  []Line{{ProductID: "prod-1", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = svc.Pay(context.Background(), placed.ID, order.PaymentResult{ID: "txn-1"})
	require.NoError(t, err)

	_, err = svc.Pay(context.Background(), placed.ID, order.PaymentResult{ID: "txn-2"})
	assert.ErrorIs(t, err, order.ErrAlreadyPaid)
}

func TestUpdateStatusShippedWithTracking(t *testing.T) {
	svc, _, pub := newTestService()

	placed, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines:  []Line{{ProductID: "prod-1", Quantity: 1}},
	})
	require.NoError(t, err)
	pub.published = nil

	eta := time.Now().Add(72 * time.Hour)
	updated, err := svc.UpdateStatus(context.Background(), placed.ID, order.StatusShipped, "TRK-42", &eta)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, updated.Status)
	assert.Equal(t, "TRK-42", updated.TrackingNumber)
	require.NotNil(t, updated.EstimatedDelivery)

	require.Len(t, pub.published, 1)
	assert.Equal(t, events.TypeOrderStatusChanged, pub.published[0].Type)

	var payload events.OrderStatusChanged
	require.NoError(t, json.Unmarshal(pub.published[0].Data, &payload))
	assert.Equal(t, order.StatusShipped, payload.Status)
	assert.Equal(t, "TRK-42", payload.TrackingNumber)
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	svc, repo, _ := newTestService()

	placed, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines:  []Line{{ProductID: "prod-1", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), placed.ID, "Teleported", "", nil)
	assert.ErrorIs(t, err, order.ErrUnknownStatus)
	assert.Empty(t, repo.saved)
}

func TestStatusUpdateRepricesFromItems(t *testing.T) {
	svc, repo, _ := newTestService()

	placed, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines:  []Line{{ProductID: "prod-1", Quantity: 1}},
	})
	require.NoError(t, err)

	// Simulate a stale total in storage; the persist path recomputes it.
	repo.byID[placed.ID].TotalPrice = 1.00

	updated, err := svc.UpdateStatus(context.Background(), placed.ID, order.StatusProcessing, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 165.00, updated.TotalPrice)
}

func TestStatsAggregatesOrders(t *testing.T) {
	svc, _, _ := newTestService()

	first, err := svc.Create(context.Background(), CreateParams{
		UserID: "user-1",
		Lines:  []Line{{ProductID: "prod-1", Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateParams{
		UserID: "user-2",
		Lines:  []Line{{ProductID: "prod-2", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = svc.Pay(context.Background(), first.ID, order.PaymentResult{ID: "txn-1"})
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, 1, stats.ByStatus[string(order.StatusProcessing)])
	assert.Equal(t, 1, stats.ByStatus[string(order.StatusPending)])
	assert.Equal(t, 165.00, stats.PaidRevenue)
}
