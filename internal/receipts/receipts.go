package receipts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"ticket-storefront/internal/status"
)

const Collection = "placed_orders"

// Receipt is the local record of an order this storefront placed.
type Receipt struct {
	Visitor       string    `json:"visitor"`
	OrderID       int64     `json:"orderTicketGroupId"`
	OrderNo       string    `json:"orderNo"`
	Mode          string    `json:"mode"`
	Amount        string    `json:"amount"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	RedirectURL   string    `json:"redirectUrl"`
	PaymentStatus string    `json:"paymentStatus"`
	Created       time.Time `json:"created"`
}

type Store interface {
	Record(ctx context.Context, r Receipt) error
	ByOrderID(ctx context.Context, orderID int64) (*Receipt, error)
	ByVisitor(ctx context.Context, visitor string, limit int) ([]Receipt, error)
	UpdatePaymentStatus(ctx context.Context, orderID int64, paymentStatus string) error
}

// NewCollection describes the placed_orders collection.
func NewCollection() *core.Collection {
	c := core.NewBaseCollection(Collection)
	c.Fields.Add(
		&core.TextField{Name: "visitor", Required: true, Max: 64},
		&core.NumberField{Name: "order_id", Required: true, OnlyInt: true},
		&core.TextField{Name: "order_no", Max: 64},
		&core.SelectField{Name: "mode", Required: true, MaxSelect: 1, Values: []string{"free", "paid"}},
		&core.TextField{Name: "amount", Max: 32},
		&core.TextField{Name: "payment_method", Max: 32},
		&core.TextField{Name: "redirect_url", Max: 2048},
		&core.TextField{Name: "payment_status", Max: 32},
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	)
	c.AddIndex("idx_placed_orders_order_id", true, "order_id", "")
	c.AddIndex("idx_placed_orders_visitor", false, "visitor", "")
	return c
}

// PocketBaseStore keeps receipts in the placed_orders collection.
type PocketBaseStore struct {
	app core.App
}

func NewPocketBaseStore(app core.App) *PocketBaseStore {
	return &PocketBaseStore{app: app}
}

func (s *PocketBaseStore) Record(ctx context.Context, r Receipt) error {
	collection, err := s.app.FindCollectionByNameOrId(Collection)
	if err != nil {
		return fmt.Errorf("find %s collection: %w", Collection, err)
	}

	rec := core.NewRecord(collection)
	rec.Set("visitor", r.Visitor)
	rec.Set("order_id", r.OrderID)
	rec.Set("order_no", r.OrderNo)
	rec.Set("mode", r.Mode)
	rec.Set("amount", r.Amount)
	rec.Set("payment_method", r.PaymentMethod)
	rec.Set("redirect_url", r.RedirectURL)
	rec.Set("payment_status", r.PaymentStatus)

	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return fmt.Errorf("save receipt %d: %w", r.OrderID, err)
	}
	return nil
}

func (s *PocketBaseStore) find(orderID int64) (*core.Record, error) {
	rec, err := s.app.FindFirstRecordByFilter(Collection, "order_id = {:orderId}", dbx.Params{"orderId": orderID})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", orderID, status.ErrReceiptNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find receipt %d: %w", orderID, err)
	}
	return rec, nil
}

func (s *PocketBaseStore) ByOrderID(_ context.Context, orderID int64) (*Receipt, error) {
	rec, err := s.find(orderID)
	if err != nil {
		return nil, err
	}
	r := fromRecord(rec)
	return &r, nil
}

func (s *PocketBaseStore) ByVisitor(_ context.Context, visitor string, limit int) ([]Receipt, error) {
	records, err := s.app.FindRecordsByFilter(
		Collection,
		"visitor = {:visitor}",
		"-created",
		limit,
		0,
		dbx.Params{"visitor": visitor},
	)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}

	out := make([]Receipt, 0, len(records))
	for _, rec := range records {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

func (s *PocketBaseStore) UpdatePaymentStatus(ctx context.Context, orderID int64, paymentStatus string) error {
	rec, err := s.find(orderID)
	if err != nil {
		return err
	}
	rec.Set("payment_status", paymentStatus)
	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return fmt.Errorf("update receipt %d: %w", orderID, err)
	}
	return nil
}

func fromRecord(rec *core.Record) Receipt {
	return Receipt{
		Visitor:       rec.GetString("visitor"),
		OrderID:       int64(rec.GetInt("order_id")),
		OrderNo:       rec.GetString("order_no"),
		Mode:          rec.GetString("mode"),
		Amount:        rec.GetString("amount"),
		PaymentMethod: rec.GetString("payment_method"),
		RedirectURL:   rec.GetString("redirect_url"),
		PaymentStatus: rec.GetString("payment_status"),
		Created:       rec.GetDateTime("created").Time(),
	}
}

// MemoryStore keeps receipts in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	receipts map[int64]Receipt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{receipts: make(map[int64]Receipt)}
}

func (m *MemoryStore) Record(_ context.Context, r Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Created.IsZero() {
		r.Created = time.Now()
	}
	m.receipts[r.OrderID] = r
	return nil
}

func (m *MemoryStore) ByOrderID(_ context.Context, orderID int64) (*Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.receipts[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, status.ErrReceiptNotFound)
	}
	return &r, nil
}

func (m *MemoryStore) ByVisitor(_ context.Context, visitor string, limit int) ([]Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Receipt
	for _, r := range m.receipts {
		if r.Visitor == visitor {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdatePaymentStatus(_ context.Context, orderID int64, paymentStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, status.ErrReceiptNotFound)
	}
	r.PaymentStatus = paymentStatus
	m.receipts[orderID] = r
	return nil
}
