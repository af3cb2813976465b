package handlers

import (
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-storefront/internal/backend"
	"ticket-storefront/internal/payment"
	"ticket-storefront/internal/session"
	"ticket-storefront/models"
)

type PaymentHandler struct {
	visitors
	client   *backend.Client
	receipts payment.StatusUpdater
}

func NewPaymentHandler(client *backend.Client, sessions *session.Registry, receipts payment.StatusUpdater) *PaymentHandler {
	return &PaymentHandler{
		visitors: visitors{sessions: sessions},
		client:   client,
		receipts: receipts,
	}
}

// ListBanks - banks offered for a payment method
func (h *PaymentHandler) ListBanks(e *core.RequestEvent) error {
	method := strings.TrimSpace(e.Request.URL.Query().Get("method"))
	if method == "" {
		return apis.NewBadRequestError("method is required", nil)
	}

	banks, err := h.client.For(h.session(e)).BankList(e.Request.Context(), method)
	if err != nil {
		return respondError(e, err)
	}
	if banks == nil {
		banks = []models.Bank{}
	}
	return e.JSON(http.StatusOK, map[string]any{"items": banks})
}

// SimulatePayment - apply a payment notification without the gateway (development only)
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	var req models.PaymentNotification
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.OrderID == 0 || req.Status == "" {
		return apis.NewBadRequestError("orderTicketGroupId and status are required", nil)
	}

	if err := h.receipts.UpdatePaymentStatus(e.Request.Context(), req.OrderID, strings.ToUpper(req.Status)); err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Payment status updated"})
}
