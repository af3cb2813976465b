package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-storefront/internal/backend"
	"ticket-storefront/internal/session"
	"ticket-storefront/internal/status"
)

const (
	VisitorCookie = "sf_visitor"
	VisitorHeader = "X-Visitor-Id"

	visitorCookieAge = 365 * 24 * time.Hour
)

// visitors resolves the caller to a live session.
type visitors struct {
	sessions *session.Registry
}

// visitorID reads the visitor id from the header or cookie. A caller with
// neither gets a new id, returned in both.
func visitorID(e *core.RequestEvent) string {
	if id, err := uuid.Parse(e.Request.Header.Get(VisitorHeader)); err == nil {
		return id.String()
	}
	if c, err := e.Request.Cookie(VisitorCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}

	id := uuid.NewString()
	http.SetCookie(e.Response, &http.Cookie{
		Name:     VisitorCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(visitorCookieAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	e.Response.Header().Set(VisitorHeader, id)
	return id
}

func (v visitors) session(e *core.RequestEvent) *session.Session {
	return v.sessions.Get(e.Request.Context(), visitorID(e))
}

func pathID(e *core.RequestEvent, name string) (int64, error) {
	id, err := strconv.ParseInt(e.Request.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apis.NewBadRequestError("Invalid "+name, nil)
	}
	return id, nil
}

type errorBody struct {
	Status   int    `json:"status"`
	Message  string `json:"message"`
	RespCode int    `json:"respCode,omitempty"`
	Relogin  bool   `json:"relogin,omitempty"`
}

var validationErrors = []error{
	status.ErrNoTicketsSelected,
	status.ErrGuestInfoIncomplete,
	status.ErrPaymentRequired,
	status.ErrBankRequired,
	status.ErrTermsNotAccepted,
	status.ErrNotOnReview,
	status.ErrInvalidQuantity,
	status.ErrInvalidDiscount,
	status.ErrInvalidPrice,
}

func isValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// respondError maps a failure to the storefront's error answer. Checkout
// guard failures are validation errors; an expired session tells the
// frontend to send the visitor to login.
func respondError(e *core.RequestEvent, err error) error {
	var apiErr *backend.APIError

	switch {
	case isValidation(err):
		return apis.NewBadRequestError(err.Error(), nil)

	case errors.Is(err, status.ErrItemNotFound), errors.Is(err, status.ErrReceiptNotFound):
		return apis.NewNotFoundError(err.Error(), nil)

	case errors.Is(err, status.ErrSessionExpired),
		errors.Is(err, status.ErrNoRefreshToken),
		errors.Is(err, status.ErrUnauthorized):
		return e.JSON(http.StatusUnauthorized, errorBody{
			Status:  http.StatusUnauthorized,
			Message: "Your session has ended. Please log in again.",
			Relogin: true,
		})

	case errors.As(err, &apiErr):
		return e.JSON(http.StatusUnprocessableEntity, errorBody{
			Status:   http.StatusUnprocessableEntity,
			Message:  apiErr.Desc,
			RespCode: apiErr.Code,
		})

	case errors.Is(err, status.ErrCircuitOpen):
		return e.JSON(http.StatusServiceUnavailable, errorBody{
			Status:  http.StatusServiceUnavailable,
			Message: "Ticketing service is temporarily unavailable.",
		})

	case errors.Is(err, context.DeadlineExceeded):
		return e.JSON(http.StatusGatewayTimeout, errorBody{
			Status:  http.StatusGatewayTimeout,
			Message: "Ticketing service did not answer in time.",
		})

	default:
		slog.Error("backend request failed", "path", e.Request.URL.Path, "error", err)
		return e.JSON(http.StatusBadGateway, errorBody{
			Status:  http.StatusBadGateway,
			Message: "Ticketing service request failed.",
		})
	}
}
