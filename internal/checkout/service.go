package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"ticket-storefront/internal/status"
	"ticket-storefront/monitoring"
)

// Service loads, mutates and saves visitor checkouts. Updates for one
// visitor are serialised within this process.
type Service struct {
	store       Store
	gatewayBase string
	monitor     *monitoring.Monitor
	logger      *slog.Logger
	now         func() time.Time

	locks visitorLocks
}

func NewService(store Store, gatewayBase string, monitor *monitoring.Monitor) *Service {
	return &Service{
		store:       store,
		gatewayBase: gatewayBase,
		monitor:     monitor,
		logger:      slog.Default(),
		now:         time.Now,
	}
}

func (s *Service) lock(visitor string) func() {
	return s.locks.lock(visitor)
}

// visitorLocks hands out one mutex per visitor. An entry lives while a
// caller holds or waits on it, so visitors never contend with each other.
type visitorLocks struct {
	mu sync.Mutex
	m  map[string]*visitorLock
}

type visitorLock struct {
	mu   sync.Mutex
	refs int
}

func (l *visitorLocks) lock(visitor string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*visitorLock)
	}
	vl, ok := l.m[visitor]
	if !ok {
		vl = &visitorLock{}
		l.m[visitor] = vl
	}
	vl.refs++
	l.mu.Unlock()

	vl.mu.Lock()
	return func() {
		vl.mu.Unlock()

		l.mu.Lock()
		vl.refs--
		if vl.refs == 0 {
			delete(l.m, visitor)
		}
		l.mu.Unlock()
	}
}

func (l *visitorLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (s *Service) Get(ctx context.Context, visitor string) (*Checkout, error) {
	return s.store.Load(ctx, visitor)
}

// Update applies fn to the visitor's checkout and saves the result. Nothing
// is saved when fn fails.
func (s *Service) Update(ctx context.Context, visitor string, fn func(*Checkout) error) (*Checkout, error) {
	defer s.lock(visitor)()

	c, err := s.store.Load(ctx, visitor)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return c, err
	}

	c.UpdatedAt = s.now()
	if err := s.store.Save(ctx, visitor, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Complete places the visitor's order and fills in the redirect target. The
// checkout is saved on failure too so the error stays visible, and so a
// visitor sent back to an earlier step lands there on the next view.
func (s *Service) Complete(ctx context.Context, visitor string, isMember bool, placer OrderPlacer) (*Completion, *Checkout, error) {
	defer s.lock(visitor)()

	c, err := s.store.Load(ctx, visitor)
	if err != nil {
		return nil, nil, err
	}

	done, err := c.Complete(ctx, isMember, placer)
	if isGuardErr(err) {
		return nil, c, err
	}

	c.UpdatedAt = s.now()
	if serr := s.store.Save(ctx, visitor, c); serr != nil {
		s.logger.Error("save checkout after completion", "visitor", visitor, "error", serr)
	}

	if isStepErr(err) {
		return nil, c, err
	}
	if err != nil {
		s.monitor.TrackCompletion(modeOf(c), "failure")
		return nil, c, err
	}

	done.Redirect = s.redirect(done)
	s.monitor.TrackCompletion(done.Mode, "success")
	s.logger.Info("order placed",
		"visitor", visitor,
		"order_id", done.Placement.OrderID,
		"order_no", done.Placement.OrderNo,
		"mode", done.Mode,
		"amount", done.Amount.StringFixed(2),
	)
	return done, c, nil
}

// isGuardErr reports a rejection made before any backend call.
func isGuardErr(err error) bool {
	return errors.Is(err, status.ErrNotOnReview) ||
		errors.Is(err, status.ErrTermsNotAccepted) ||
		errors.Is(err, status.ErrNoTicketsSelected)
}

// isStepErr reports an earlier step that stopped passing at completion.
func isStepErr(err error) bool {
	return errors.Is(err, status.ErrGuestInfoIncomplete) ||
		errors.Is(err, status.ErrPaymentRequired) ||
		errors.Is(err, status.ErrBankRequired)
}

func modeOf(c *Checkout) string {
	if c.Cart.Free() {
		return ModeFree
	}
	return ModePaid
}

// redirect picks the gateway URL for paid orders that returned one, and the
// confirmation route otherwise. Relative gateway paths are joined onto the
// gateway base URL.
func (s *Service) redirect(done *Completion) string {
	p := done.Placement
	if p.PaymentURL == "" {
		return ConfirmationPath(p.OrderID)
	}

	u, err := url.Parse(p.PaymentURL)
	if err == nil && u.IsAbs() {
		return p.PaymentURL
	}
	if s.gatewayBase == "" {
		return p.PaymentURL
	}
	return strings.TrimRight(s.gatewayBase, "/") + "/" + strings.TrimLeft(p.PaymentURL, "/")
}

func ConfirmationPath(orderID int64) string {
	return fmt.Sprintf("/orders/%d/confirmation", orderID)
}
