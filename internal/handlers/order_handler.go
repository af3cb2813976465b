package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-storefront/internal/backend"
	"ticket-storefront/internal/receipts"
	"ticket-storefront/internal/session"
	"ticket-storefront/internal/status"
	"ticket-storefront/models"
)

type OrderHandler struct {
	visitors
	client   *backend.Client
	receipts receipts.Store
}

func NewOrderHandler(client *backend.Client, sessions *session.Registry, receiptStore receipts.Store) *OrderHandler {
	return &OrderHandler{
		visitors: visitors{sessions: sessions},
		client:   client,
		receipts: receiptStore,
	}
}

// ListOrders - the member's order history
func (h *OrderHandler) ListOrders(e *core.RequestEvent) error {
	orders, err := h.client.For(h.session(e)).Orders(e.Request.Context())
	if err != nil {
		return respondError(e, err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return e.JSON(http.StatusOK, map[string]any{"items": orders})
}

const receiptListLimit = 50

// ListReceipts - orders this visitor placed here, newest first. Works for
// guests, who have no backend order history.
func (h *OrderHandler) ListReceipts(e *core.RequestEvent) error {
	list, err := h.receipts.ByVisitor(e.Request.Context(), h.session(e).Visitor(), receiptListLimit)
	if err != nil {
		return apis.NewInternalServerError("Failed to load receipts", err)
	}
	if list == nil {
		list = []receipts.Receipt{}
	}
	return e.JSON(http.StatusOK, map[string]any{"items": list})
}

func (h *OrderHandler) GetOrder(e *core.RequestEvent) error {
	id, err := pathID(e, "id")
	if err != nil {
		return err
	}

	order, err := h.client.For(h.session(e)).Order(e.Request.Context(), id)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, order)
}

// Confirmation - the local receipt of an order placed by this visitor,
// with the backend order when it can be read
func (h *OrderHandler) Confirmation(e *core.RequestEvent) error {
	id, err := pathID(e, "id")
	if err != nil {
		return err
	}

	sess := h.session(e)
	ctx := e.Request.Context()

	receipt, err := h.receipts.ByOrderID(ctx, id)
	if err != nil {
		return respondError(e, err)
	}
	if receipt.Visitor != sess.Visitor() {
		return apis.NewNotFoundError("Order not found", nil)
	}

	resp := map[string]any{"receipt": receipt}
	order, err := h.client.For(sess).Order(ctx, id)
	switch {
	case err == nil:
		resp["order"] = order
	case errors.Is(err, status.ErrUnauthorized), errors.Is(err, status.ErrSessionExpired):
		// guests cannot read backend orders
	default:
		resp["orderError"] = err.Error()
	}
	return e.JSON(http.StatusOK, resp)
}

// Inquiry - non-member lookup by order number and email
func (h *OrderHandler) Inquiry(e *core.RequestEvent) error {
	q := e.Request.URL.Query()
	orderNo := strings.TrimSpace(q.Get("orderNo"))
	email := strings.TrimSpace(q.Get("email"))
	if orderNo == "" || email == "" {
		return apis.NewBadRequestError("orderNo and email are required", nil)
	}

	order, err := h.client.For(nil).NonMemberInquiry(e.Request.Context(), orderNo, email)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, order)
}
