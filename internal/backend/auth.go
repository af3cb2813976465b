package backend

import (
	"context"
	"net/http"

	"ticket-storefront/models"
)

// Login exchanges credentials for a user and a token pair.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	r, err := newRequest(http.MethodPost, "/auth/login", nil, req)
	if err != nil {
		return nil, err
	}

	var result models.LoginResult
	if err := c.call(ctx, r, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) CreateCustomer(ctx context.Context, req models.RegisterRequest) error {
	r, err := newRequest(http.MethodPost, "/auth/customer/create", nil, req)
	if err != nil {
		return err
	}
	return c.call(ctx, r, "", nil)
}

func (c *Client) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	r, err := newRequest(http.MethodPost, "/auth/customer/reset-password", nil, req)
	if err != nil {
		return err
	}
	return c.call(ctx, r, "", nil)
}

// RefreshToken sends the refresh token as the bearer credential with no
// body. It never goes through the 401 interceptor.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	r, err := newRequest(http.MethodPost, "/auth/refresh-token", nil, nil)
	if err != nil {
		return nil, err
	}

	var pair models.TokenPair
	if err := c.call(ctx, r, refreshToken, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}
