package payment

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"duka-be/internal/order"

	"github.com/shopspring/decimal"
)

// memOrders is an in-memory order.Repository. CompareAndSetStatus holds the
// lock across the WithinTx hook, so the hook and the status write commit or
// fail together the way a database transaction would.
type memOrders struct {
	mu     sync.Mutex
	orders map[string]*order.Order
	events []order.StatusEvent
}

func newMemOrders(orders ...*order.Order) *memOrders {
	m := &memOrders{orders: map[string]*order.Order{}}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memOrders) CreateOrder(ctx context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *memOrders) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) CompareAndSetStatus(ctx context.Context, c order.StatusChange) (*order.StatusEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[c.OrderID]
	if !ok || o.Status != c.From {
		return nil, order.ErrStatusChanged
	}
	if c.WithinTx != nil {
		if err := c.WithinTx(nil); err != nil {
			return nil, err
		}
	}

	o.Status = c.To
	ev := order.StatusEvent{
		ID:        int64(len(m.events) + 1),
		OrderID:   o.ID,
		UserID:    o.UserID,
		Total:     o.Total,
		From:      c.From,
		To:        c.To,
		Actor:     c.Actor,
		CreatedAt: time.Now(),
	}
	m.events = append(m.events, ev)
	return &ev, nil
}

func (m *memOrders) ListUnnotifiedEvents(ctx context.Context, createdBefore time.Time, limit int) ([]order.StatusEvent, error) {
	return nil, nil
}

func (m *memOrders) MarkEventNotified(ctx context.Context, eventID int64) error {
	return nil
}

func (m *memOrders) status(id string) order.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

// setStatus bypasses the state machine, like a concurrent writer would.
func (m *memOrders) setStatus(id string, s order.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[id].Status = s
}

// memAttempts is an in-memory Repository enforcing one pending attempt per order.
type memAttempts struct {
	mu       sync.Mutex
	attempts map[string]*Attempt
	orphans  []OrphanCallback
}

func newMemAttempts() *memAttempts {
	return &memAttempts{attempts: map[string]*Attempt{}}
}

func (m *memAttempts) add(a Attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = &a
}

func (m *memAttempts) InsertAttemptTx(ctx context.Context, tx *sql.Tx, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.attempts {
		if existing.OrderID == a.OrderID && existing.Outcome == OutcomePending {
			return ErrAttemptInFlight
		}
	}
	a.Outcome = OutcomePending
	a.CreatedAt = time.Now()
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *memAttempts) find(match func(*Attempt) bool) (*Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAttemptNotFound
}

func (m *memAttempts) GetAttemptByCheckoutRequestID(ctx context.Context, id string) (*Attempt, error) {
	return m.find(func(a *Attempt) bool { return a.CheckoutRequestID == id })
}

func (m *memAttempts) GetAttemptByMerchantRequestID(ctx context.Context, id string) (*Attempt, error) {
	return m.find(func(a *Attempt) bool { return a.MerchantRequestID == id })
}

func (m *memAttempts) ListAttemptsByOrder(ctx context.Context, orderID string) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.OrderID == orderID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAttempts) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.Outcome == OutcomePending && a.CreatedAt.Before(createdBefore) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAttempts) FinalizeAttempt(ctx context.Context, id string, f Finalization) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok || a.Outcome != OutcomePending {
		return false, nil
	}
	now := time.Now()
	code, desc := f.ResultCode, f.ResultDesc
	a.Outcome = f.Outcome
	a.ReceiptNumber = f.ReceiptNumber
	a.ResultCode = &code
	a.ResultDesc = &desc
	a.RawCallback = f.RawCallback
	a.TransactionDate = f.TransactionDate
	a.PayerPhone = f.PayerPhone
	a.FinalizedAt = &now
	return true, nil
}

func (m *memAttempts) FinalizeAttemptTx(ctx context.Context, tx *sql.Tx, id string, f Finalization) (bool, error) {
	return m.FinalizeAttempt(ctx, id, f)
}

func (m *memAttempts) SaveOrphanCallback(ctx context.Context, o *OrphanCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = int64(len(m.orphans) + 1)
	o.ReceivedAt = time.Now()
	m.orphans = append(m.orphans, *o)
	return nil
}

func (m *memAttempts) ListOrphanCallbacks(ctx context.Context, limit int) ([]OrphanCallback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OrphanCallback(nil), m.orphans...), nil
}

func (m *memAttempts) get(id string) Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.attempts[id]
}

func (m *memAttempts) orphanCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orphans)
}

// recordingNotifier counts the transitions handed to it.
type recordingNotifier struct {
	mu     sync.Mutex
	events []order.StatusEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, ev order.StatusEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) sent() []order.StatusEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]order.StatusEvent(nil), n.events...)
}

// fakeGateway hands out sequential correlation ids.
type fakeGateway struct {
	mu       sync.Mutex
	requests []PushRequest
	err      error
}

func (g *fakeGateway) Push(ctx context.Context, req PushRequest) (*PushResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, req)
	n := len(g.requests)
	return &PushResult{
		MerchantRequestID: "29115-34620561-" + string(rune('0'+n)),
		CheckoutRequestID: "ws_CO_" + string(rune('0'+n)),
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

func (g *fakeGateway) pushes() []PushRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]PushRequest(nil), g.requests...)
}

type harness struct {
	orders   *memOrders
	attempts *memAttempts
	notifier *recordingNotifier
	gateway  *fakeGateway
	svc      order.Service
}

func newHarness(orders ...*order.Order) *harness {
	h := &harness{
		orders:   newMemOrders(orders...),
		attempts: newMemAttempts(),
		notifier: &recordingNotifier{},
		gateway:  &fakeGateway{},
	}
	h.svc = order.NewService(h.orders, h.notifier)
	return h
}

func pendingOrder() *order.Order {
	return &order.Order{
		ID:            "7f3c2a1e-9b4d-4e2f-8a6c-1d2e3f4a5b6c",
		UserID:        "user-1",
		Status:        order.StatusPending,
		Subtotal:      decimal.NewFromInt(4500),
		ShippingFee:   decimal.NewFromInt(500),
		Total:         decimal.NewFromInt(5000),
		PaymentMethod: order.MethodMpesa,
	}
}
