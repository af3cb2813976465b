package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-storefront/internal/backend"
	"ticket-storefront/internal/session"
	"ticket-storefront/models"
)

type AuthHandler struct {
	visitors
	client *backend.Client
}

func NewAuthHandler(client *backend.Client, sessions *session.Registry) *AuthHandler {
	return &AuthHandler{
		visitors: visitors{sessions: sessions},
		client:   client,
	}
}

// Login - exchange credentials for a session
func (h *AuthHandler) Login(e *core.RequestEvent) error {
	var req models.LoginRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return apis.NewBadRequestError("Email and password are required", nil)
	}

	sess := h.session(e)
	ctx := e.Request.Context()

	result, err := h.client.Login(ctx, req)
	if err != nil {
		return respondError(e, err)
	}

	if err := sess.Login(ctx, result.User, result.AccessToken, result.RefreshToken); err != nil {
		slog.Warn("persist login tokens", "visitor", sess.Visitor(), "error", err)
	}
	return e.JSON(http.StatusOK, sess.Snapshot())
}

// Register - create a customer account
func (h *AuthHandler) Register(e *core.RequestEvent) error {
	var req models.RegisterRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" ||
		strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return apis.NewBadRequestError("Email, password, first and last name are required", nil)
	}

	if err := h.client.CreateCustomer(e.Request.Context(), req); err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusCreated, map[string]any{"message": "Account created"})
}

func (h *AuthHandler) ResetPassword(e *core.RequestEvent) error {
	var req models.ResetPasswordRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if strings.TrimSpace(req.Email) == "" {
		return apis.NewBadRequestError("Email is required", nil)
	}

	if err := h.client.ResetPassword(e.Request.Context(), req); err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Password reset instructions sent"})
}

func (h *AuthHandler) Logout(e *core.RequestEvent) error {
	sess := h.session(e)
	if err := sess.Logout(e.Request.Context()); err != nil {
		slog.Warn("clear stored tokens", "visitor", sess.Visitor(), "error", err)
	}
	return e.JSON(http.StatusOK, sess.Snapshot())
}

// Session - current authentication state
func (h *AuthHandler) Session(e *core.RequestEvent) error {
	return e.JSON(http.StatusOK, h.session(e).Snapshot())
}

func (h *AuthHandler) GetPreferences(e *core.RequestEvent) error {
	prefs, err := h.session(e).Preferences(e.Request.Context())
	if err != nil {
		return apis.NewInternalServerError("Failed to read preferences", err)
	}
	return e.JSON(http.StatusOK, prefs)
}

func (h *AuthHandler) PutPreferences(e *core.RequestEvent) error {
	var req session.Preferences
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	sess := h.session(e)
	ctx := e.Request.Context()
	if err := sess.SetPreferences(ctx, req); err != nil {
		return apis.NewInternalServerError("Failed to save preferences", err)
	}

	prefs, err := sess.Preferences(ctx)
	if err != nil {
		return apis.NewInternalServerError("Failed to read preferences", err)
	}
	return e.JSON(http.StatusOK, prefs)
}
