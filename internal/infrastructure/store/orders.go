package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/ec-shop/internal/domain/catalog"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/orders"
)

// OrderStore persists orders in PostgreSQL. Order creation and
// cancellation mutate product stock inside the order's transaction, so a
// crash mid-way cannot leave stock half-adjusted against a created order.
type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

const orderColumns = `id, user_id, items, shipping_address, payment_method, payment_result,
	items_price, tax_price, shipping_price, total_price,
	is_paid, paid_at, is_delivered, delivered_at,
	status, tracking_number, estimated_delivery, notes, negotiation_notes,
	created_at, updated_at`

// Create inserts the order and decrements stock for every item in one
// transaction. The stock >= quantity guard on the UPDATE makes concurrent
// checkouts for the last units lose cleanly instead of overselling.
func (s *OrderStore) Create(ctx context.Context, o *order.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, it := range o.Items {
		res, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = NOW()
			WHERE id = $1 AND stock >= $2
		`, it.ProductID, it.Quantity)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w for %s", catalog.ErrInsufficientStock, it.Name)
		}
	}

	items, addr, payment, err := marshalOrderJSON(o)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`, o.ID, o.UserID, items, addr, o.PaymentMethod, payment,
		o.ItemsPrice, o.TaxPrice, o.ShippingPrice, o.TotalPrice,
		o.IsPaid, nullTime(o.PaidAt), o.IsDelivered, nullTime(o.DeliveredAt),
		o.Status, o.TrackingNumber, nullTime(o.EstimatedDelivery), o.Notes, o.NegotiationNotes,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Save overwrites a persisted order.
func (s *OrderStore) Save(ctx context.Context, o *order.Order) error {
	items, addr, payment, err := marshalOrderJSON(o)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET
			items = $2, shipping_address = $3, payment_method = $4, payment_result = $5,
			items_price = $6, tax_price = $7, shipping_price = $8, total_price = $9,
			is_paid = $10, paid_at = $11, is_delivered = $12, delivered_at = $13,
			status = $14, tracking_number = $15, estimated_delivery = $16,
			notes = $17, negotiation_notes = $18, updated_at = $19
		WHERE id = $1
	`, o.ID, items, addr, o.PaymentMethod, payment,
		o.ItemsPrice, o.TaxPrice, o.ShippingPrice, o.TotalPrice,
		o.IsPaid, nullTime(o.PaidAt), o.IsDelivered, nullTime(o.DeliveredAt),
		o.Status, o.TrackingNumber, nullTime(o.EstimatedDelivery),
		o.Notes, o.NegotiationNotes, o.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

// CancelWithRestock saves the cancelled order and restores stock for every
// item in one transaction, the inverse of Create.
func (s *OrderStore) CancelWithRestock(ctx context.Context, o *order.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, it := range o.Items {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1
		`, it.ProductID, it.Quantity); err != nil {
			return err
		}
	}

	items, addr, payment, err := marshalOrderJSON(o)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET
			items = $2, shipping_address = $3, payment_method = $4, payment_result = $5,
			items_price = $6, tax_price = $7, shipping_price = $8, total_price = $9,
			is_paid = $10, paid_at = $11, is_delivered = $12, delivered_at = $13,
			status = $14, tracking_number = $15, estimated_delivery = $16,
			notes = $17, negotiation_notes = $18, updated_at = $19
		WHERE id = $1
	`, o.ID, items, addr, o.PaymentMethod, payment,
		o.ItemsPrice, o.TaxPrice, o.ShippingPrice, o.TotalPrice,
		o.IsPaid, nullTime(o.PaidAt), o.IsDelivered, nullTime(o.DeliveredAt),
		o.Status, o.TrackingNumber, nullTime(o.EstimatedDelivery),
		o.Notes, o.NegotiationNotes, o.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return order.ErrOrderNotFound
	}

	return tx.Commit()
}

func (s *OrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrderRow(s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

func (s *OrderStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*order.Order, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	return orders, total, err
}

func (s *OrderStore) ListAll(ctx context.Context, status order.Status, limit, offset int) ([]*order.Order, int, error) {
	var total int
	var rows *sql.Rows
	var err error

	if status != "" {
		if err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM orders WHERE status = $1`, status).Scan(&total); err != nil {
			return nil, 0, err
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+orderColumns+` FROM orders
			WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
		`, status, limit, offset)
	} else {
		if err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
			return nil, 0, err
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+orderColumns+` FROM orders
			ORDER BY created_at DESC LIMIT $1 OFFSET $2
		`, limit, offset)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	return orders, total, err
}

func (s *OrderStore) Stats(ctx context.Context) (*orders.Stats, error) {
	stats := &orders.Stats{ByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = count
		stats.TotalOrders += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_price), 0) FROM orders WHERE is_paid`).Scan(&stats.PaidRevenue)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func marshalOrderJSON(o *order.Order) (items, addr, payment []byte, err error) {
	if items, err = json.Marshal(o.Items); err != nil {
		return
	}
	if addr, err = json.Marshal(o.ShippingAddress); err != nil {
		return
	}
	if o.PaymentResult != nil {
		payment, err = json.Marshal(o.PaymentResult)
	}
	return
}

func collectOrders(rows *sql.Rows) ([]*order.Order, error) {
	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrderRow(row rowScanner) (*order.Order, error) {
	var o order.Order
	var items, addr []byte
	var payment []byte
	var paidAt, deliveredAt, eta sql.NullTime

	err := row.Scan(&o.ID, &o.UserID, &items, &addr, &o.PaymentMethod, &payment,
		&o.ItemsPrice, &o.TaxPrice, &o.ShippingPrice, &o.TotalPrice,
		&o.IsPaid, &paidAt, &o.IsDelivered, &deliveredAt,
		&o.Status, &o.TrackingNumber, &eta, &o.Notes, &o.NegotiationNotes,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return nil, err
	}
	if len(payment) > 0 {
		o.PaymentResult = &order.PaymentResult{}
		if err := json.Unmarshal(payment, o.PaymentResult); err != nil {
			return nil, err
		}
	}

	o.PaidAt = timePtr(paidAt)
	o.DeliveredAt = timePtr(deliveredAt)
	o.EstimatedDelivery = timePtr(eta)
	return &o, nil
}
