package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"ticket-storefront/internal/backend"
	"ticket-storefront/internal/checkout"
	"ticket-storefront/internal/receipts"
	"ticket-storefront/internal/session"
	"ticket-storefront/models"
)

type CheckoutHandler struct {
	visitors
	checkout *checkout.Service
	client   *backend.Client
	receipts receipts.Store
}

func NewCheckoutHandler(svc *checkout.Service, client *backend.Client, sessions *session.Registry, receiptStore receipts.Store) *CheckoutHandler {
	return &CheckoutHandler{
		visitors: visitors{sessions: sessions},
		checkout: svc,
		client:   client,
		receipts: receiptStore,
	}
}

// update applies fn to the caller's checkout and answers with the new view.
func (h *CheckoutHandler) update(e *core.RequestEvent, fn func(c *checkout.Checkout, isMember bool) error) error {
	sess := h.session(e)
	isMember := sess.IsMember()

	c, err := h.checkout.Update(e.Request.Context(), sess.Visitor(), func(c *checkout.Checkout) error {
		return fn(c, isMember)
	})
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, c.View(isMember))
}

func (h *CheckoutHandler) View(e *core.RequestEvent) error {
	sess := h.session(e)

	c, err := h.checkout.Get(e.Request.Context(), sess.Visitor())
	if err != nil {
		return apis.NewInternalServerError("Failed to load checkout", err)
	}
	return e.JSON(http.StatusOK, c.View(sess.IsMember()))
}

func (h *CheckoutHandler) AddItem(e *core.RequestEvent) error {
	var item checkout.Item
	if err := e.BindBody(&item); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if strings.TrimSpace(item.ID) == "" || item.TicketGroupID <= 0 || item.Date == "" || len(item.Tickets) == 0 {
		return apis.NewBadRequestError("id, ticketGroupId, date and tickets are required", nil)
	}

	return h.update(e, func(c *checkout.Checkout, _ bool) error {
		return c.Cart.AddItem(item)
	})
}

func (h *CheckoutHandler) SetQuantity(e *core.RequestEvent) error {
	ticketID, err := strconv.ParseInt(e.Request.PathValue("ticketId"), 10, 64)
	if err != nil {
		return apis.NewBadRequestError("Invalid ticketId", nil)
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	itemID := e.Request.PathValue("itemId")
	return h.update(e, func(c *checkout.Checkout, _ bool) error {
		return c.Cart.SetQuantity(itemID, ticketID, req.Quantity)
	})
}

func (h *CheckoutHandler) RemoveItem(e *core.RequestEvent) error {
	itemID := e.Request.PathValue("itemId")
	return h.update(e, func(c *checkout.Checkout, _ bool) error {
		return c.Cart.RemoveItem(itemID)
	})
}

func (h *CheckoutHandler) SelectItem(e *core.RequestEvent) error {
	var req struct {
		Selected bool `json:"selected"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	itemID := e.Request.PathValue("itemId")
	return h.update(e, func(c *checkout.Checkout, _ bool) error {
		if itemID == "all" {
			c.Cart.SelectAll(req.Selected)
			return nil
		}
		return c.Cart.Select(itemID, req.Selected)
	})
}

func (h *CheckoutHandler) SetGuest(e *core.RequestEvent) error {
	var guest models.Guest
	if err := e.BindBody(&guest); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	return h.update(e, func(c *checkout.Checkout, _ bool) error {
		c.Guest = guest
		return nil
	})
}

func (h *CheckoutHandler) SetPayment(e *core.RequestEvent) error {
	var payment checkout.Payment
	if err := e.BindBody(&payment); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	return h.update(e, func(c *checkout.Checkout, _ bool) error {
		c.Payment = payment
		return nil
	})
}

func (h *CheckoutHandler) AcceptTerms(e *core.RequestEvent) error {
	var req struct {
		Accepted bool `json:"accepted"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	return h.update(e, func(c *checkout.Checkout, _ bool) error {
		c.TermsAccepted = req.Accepted
		return nil
	})
}

// SetDiscount - display estimate only; the backend prices the order
func (h *CheckoutHandler) SetDiscount(e *core.RequestEvent) error {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	return h.update(e, func(c *checkout.Checkout, _ bool) error {
		return c.Cart.SetDiscount(req.Amount)
	})
}

func (h *CheckoutHandler) Continue(e *core.RequestEvent) error {
	return h.update(e, func(c *checkout.Checkout, isMember bool) error {
		return c.Continue(isMember)
	})
}

func (h *CheckoutHandler) Back(e *core.RequestEvent) error {
	return h.update(e, func(c *checkout.Checkout, isMember bool) error {
		c.Back(isMember)
		return nil
	})
}

// Complete - place the order and return where the browser goes next
func (h *CheckoutHandler) Complete(e *core.RequestEvent) error {
	sess := h.session(e)
	ctx := e.Request.Context()
	isMember := sess.IsMember()

	done, c, err := h.checkout.Complete(ctx, sess.Visitor(), isMember, h.client.For(sess))
	if err != nil {
		return respondError(e, err)
	}

	receipt := receipts.Receipt{
		Visitor:       sess.Visitor(),
		OrderID:       done.Placement.OrderID,
		OrderNo:       done.Placement.OrderNo,
		Mode:          done.Mode,
		Amount:        done.Amount.StringFixed(2),
		PaymentMethod: done.Method,
		RedirectURL:   done.Redirect,
		PaymentStatus: initialPaymentStatus(done.Mode),
	}
	if err := h.receipts.Record(ctx, receipt); err != nil {
		slog.Error("record receipt", "order_id", receipt.OrderID, "error", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"redirect":  done.Redirect,
		"placement": done.Placement,
		"mode":      done.Mode,
		"amount":    done.Amount.StringFixed(2),
		"checkout":  c.View(isMember),
	})
}

func initialPaymentStatus(mode string) string {
	if mode == checkout.ModeFree {
		return "NOT_REQUIRED"
	}
	return "PENDING"
}
