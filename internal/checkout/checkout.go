package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ticket-storefront/internal/status"
	"ticket-storefront/models"
)

// Payment is the visitor's payment choice. Methods prefixed "fpx" are online
// banking and need a bank.
type Payment struct {
	Method string `json:"method"`
	Bank   string `json:"bank"`
	Mode   string `json:"mode"`
}

func (p Payment) needsBank() bool {
	return strings.HasPrefix(strings.ToLower(p.Method), "fpx")
}

// Checkout is the persisted per-visitor checkout state.
type Checkout struct {
	Cart          Cart         `json:"cart"`
	Step          Step         `json:"step"`
	Guest         models.Guest `json:"guest"`
	Payment       Payment      `json:"payment"`
	TermsAccepted bool         `json:"termsAccepted"`
	LastError     string       `json:"lastError,omitempty"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

func New() *Checkout {
	return &Checkout{
		Cart: Cart{Selected: make(map[string]bool)},
		Step: StepItems,
	}
}

// OrderPlacer places orders at the backend.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req *models.PaidOrderRequest) (*models.OrderPlacement, error)
	PlaceFreeOrder(ctx context.Context, req *models.FreeOrderRequest) (*models.OrderPlacement, error)
}

const (
	ModeFree = "free"
	ModePaid = "paid"
)

// Completion describes a placed order.
type Completion struct {
	Placement models.OrderPlacement `json:"placement"`
	Mode      string                `json:"mode"`
	Amount    decimal.Decimal       `json:"amount"`
	Method    string                `json:"paymentMethod,omitempty"`
	Redirect  string                `json:"redirect"`
}

func (c *Checkout) ActiveSteps(isMember bool) []Step {
	return ActiveSteps(isMember, c.Cart.Free())
}

func (c *Checkout) guard(isMember bool) error {
	return c.guardStep(c.Step, isMember)
}

// guardStep checks the data the step collects. Steps inactive for the
// current cart pass.
func (c *Checkout) guardStep(step Step, isMember bool) error {
	if !active(step, isMember, c.Cart.Free()) {
		return nil
	}

	switch step {
	case StepItems:
		if !c.Cart.HasSelectedTickets() {
			return status.ErrNoTicketsSelected
		}
	case StepGuestInfo:
		g := c.Guest
		for _, field := range []string{g.FirstName, g.LastName, g.Email, g.PhoneNumber} {
			if strings.TrimSpace(field) == "" {
				return status.ErrGuestInfoIncomplete
			}
		}
	case StepPayment:
		if strings.TrimSpace(c.Payment.Method) == "" {
			return status.ErrPaymentRequired
		}
		if c.Payment.needsBank() && strings.TrimSpace(c.Payment.Bank) == "" {
			return status.ErrBankRequired
		}
	}
	return nil
}

// revalidate runs every active step's guard in flow order and returns the
// first step that no longer passes. The cart or membership may have changed
// since the step was left.
func (c *Checkout) revalidate(isMember bool) (Step, error) {
	for _, step := range c.ActiveSteps(isMember) {
		if step == StepReview {
			break
		}
		if err := c.guardStep(step, isMember); err != nil {
			return step, err
		}
	}
	return StepReview, nil
}

// Continue moves to the next active step once the current step's guard
// passes. On review it does nothing; orders are placed with Complete.
func (c *Checkout) Continue(isMember bool) error {
	if c.Step == StepReview {
		return nil
	}
	if err := c.guard(isMember); err != nil {
		return err
	}

	t, ok := Lookup(c.Step, isMember, c.Cart.Free())
	if !ok {
		c.Step = StepItems
		return nil
	}
	if t.Next != "" {
		c.Step = t.Next
	}
	return nil
}

// Back moves to the previous active step. On items it does nothing.
func (c *Checkout) Back(isMember bool) {
	t, ok := Lookup(c.Step, isMember, c.Cart.Free())
	if !ok {
		c.Step = StepItems
		return
	}
	if t.Prev != "" {
		c.Step = t.Prev
	}
}

func (c *Checkout) orderLines() []models.OrderLine {
	var lines []models.OrderLine
	for _, it := range c.Cart.SelectedItems() {
		line := models.OrderLine{TicketGroupID: it.TicketGroupID, Date: it.Date}
		for _, t := range it.Tickets {
			if t.Quantity > 0 {
				line.Tickets = append(line.Tickets, models.OrderTicket{TicketID: t.ID, Quantity: t.Quantity})
			}
		}
		if len(line.Tickets) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}

// Complete places the order from review. A zero total uses the free order
// call; anything else the paid call with the payment choice. The call is
// made once. Every earlier step is checked again first; a step that no
// longer passes becomes the current step and nothing is placed. On success
// the purchased items leave the cart and the flow restarts at items; on a
// failed call the error is kept and the step stays review.
func (c *Checkout) Complete(ctx context.Context, isMember bool, placer OrderPlacer) (*Completion, error) {
	if c.Step != StepReview {
		return nil, status.ErrNotOnReview
	}
	if !c.TermsAccepted {
		return nil, status.ErrTermsNotAccepted
	}
	if !c.Cart.HasSelectedTickets() {
		return nil, status.ErrNoTicketsSelected
	}
	if step, err := c.revalidate(isMember); err != nil {
		c.Step = step
		c.LastError = err.Error()
		return nil, err
	}

	var guest *models.Guest
	if !isMember {
		g := c.Guest
		guest = &g
	}

	total := c.Cart.Total()
	done := &Completion{Amount: total}

	var (
		placement *models.OrderPlacement
		err       error
	)
	if total.IsZero() {
		done.Mode = ModeFree
		placement, err = placer.PlaceFreeOrder(ctx, &models.FreeOrderRequest{
			Lines: c.orderLines(),
			Guest: guest,
		})
	} else {
		done.Mode = ModePaid
		done.Method = c.Payment.Method
		placement, err = placer.PlaceOrder(ctx, &models.PaidOrderRequest{
			Lines:         c.orderLines(),
			Guest:         guest,
			PaymentMethod: c.Payment.Method,
			BankCode:      c.Payment.Bank,
			PaymentMode:   c.Payment.Mode,
			Amount:        total,
		})
	}
	if err != nil {
		c.LastError = err.Error()
		return nil, fmt.Errorf("place %s order: %w", done.Mode, err)
	}

	done.Placement = *placement
	c.Cart.removePurchased()
	c.Step = StepItems
	c.TermsAccepted = false
	c.Payment = Payment{}
	c.LastError = ""
	return done, nil
}

// View is the checkout as the frontend renders it.
type View struct {
	*Checkout
	Steps    []Step `json:"steps"`
	Next     Step   `json:"next,omitempty"`
	Prev     Step   `json:"prev,omitempty"`
	Subtotal string `json:"subtotal"`
	Discount string `json:"discountAmount"`
	Total    string `json:"totalAmount"`
	Free     bool   `json:"free"`
}

func (c *Checkout) View(isMember bool) View {
	free := c.Cart.Free()
	t, _ := Lookup(c.Step, isMember, free)
	return View{
		Checkout: c,
		Steps:    ActiveSteps(isMember, free),
		Next:     t.Next,
		Prev:     t.Prev,
		Subtotal: c.Cart.Subtotal().StringFixed(2),
		Discount: c.Cart.Discount.StringFixed(2),
		Total:    c.Cart.Total().StringFixed(2),
		Free:     free,
	}
}
