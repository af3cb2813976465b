package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-storefront/internal/status"
	"ticket-storefront/models"
	"ticket-storefront/utils"
)

func ok(c echo.Context, result any) error {
	return c.JSON(http.StatusOK, map[string]any{"respCode": CodeSuccess, "respDesc": "success", "result": result})
}

// fakeBackend accepts only the bearer in validToken.
type fakeBackend struct {
	mu         sync.Mutex
	validToken string
	refreshes  atomic.Int32
	calls      atomic.Int32
}

func (f *fakeBackend) token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validToken
}

func (f *fakeBackend) authorized(c echo.Context) bool {
	return c.Request().Header.Get("Authorization") == "Bearer "+f.token()
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()

	f := &fakeBackend{validToken: "at-2"}
	e := echo.New()

	e.POST("/auth/login", func(c echo.Context) error {
		var req models.LoginRequest
		if err := c.Bind(&req); err != nil {
			return err
		}
		if req.Password != "secret" {
			return c.JSON(http.StatusOK, map[string]any{"respCode": 4010, "respDesc": "invalid credentials"})
		}
		return ok(c, map[string]any{
			"user":         map[string]any{"id": 1, "email": req.Email, "isMember": true},
			"accessToken":  f.token(),
			"refreshToken": "rt-1",
		})
	})

	e.POST("/auth/refresh-token", func(c echo.Context) error {
		f.refreshes.Add(1)
		if c.Request().Header.Get("Authorization") != "Bearer rt-1" {
			return c.JSON(http.StatusOK, map[string]any{"respCode": 4011, "respDesc": "refresh token expired"})
		}
		return ok(c, map[string]any{"accessToken": f.token(), "refreshToken": "rt-2"})
	})

	e.GET("/api/ticketGroups", func(c echo.Context) error {
		f.calls.Add(1)
		return ok(c, []map[string]any{
			{"ticketGroupId": 3, "groupName": "Aquarium", "imageUrl": "/img/3.png", "fromPrice": 12.5, "isActive": true},
		})
	})

	e.GET("/api/ticketGroups/ticketVariants", func(c echo.Context) error {
		return ok(c, []map[string]any{
			{"ticketId": 9, "ticketType": "Adult", "unitPrice": 25.10, "available": 4, "date": c.QueryParam("date")},
		})
	})

	e.GET("/api/orderTicketGroups", func(c echo.Context) error {
		f.calls.Add(1)
		if !f.authorized(c) {
			return c.NoContent(http.StatusUnauthorized)
		}
		return ok(c, []map[string]any{{"orderTicketGroupId": 55, "orderNo": "ORD-55", "totalAmount": 30}})
	})

	e.GET("/api/orderNonMemberInquiry", func(c echo.Context) error {
		if c.QueryParam("email") == "" {
			return c.JSON(http.StatusOK, map[string]any{"respCode": 4004, "respDesc": "order not found"})
		}
		return ok(c, map[string]any{"orderTicketGroupId": 56, "orderNo": c.QueryParam("orderNo")})
	})

	e.POST("/payment/bankList", func(c echo.Context) error {
		return c.String(http.StatusBadGateway, "upstream unavailable")
	})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return f, srv
}

// staticTokens returns fresh on every refresh and counts calls.
type staticTokens struct {
	mu        sync.Mutex
	current   string
	fresh     string
	err       error
	refreshes int
}

func (s *staticTokens) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *staticTokens) Refresh(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	if s.err != nil {
		return "", s.err
	}
	s.current = s.fresh
	return s.current, nil
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresAbsoluteURL(t *testing.T) {
	_, err := NewClient("backend.local/api")
	assert.Error(t, err)

	c, err := NewClient("https://backend.local/api/")
	require.NoError(t, err)
	assert.Equal(t, "https://backend.local/api", c.baseURL)
}

func TestClient_Login(t *testing.T) {
	_, srv := newFakeBackend(t)
	c := newTestClient(t, srv)

	result, err := c.Login(context.Background(), models.LoginRequest{Email: "amir@example.com", Password: "secret"})
	require.NoError(t, err)

	assert.Equal(t, "amir@example.com", result.User.Email)
	assert.Equal(t, "at-2", result.AccessToken)
	assert.Equal(t, "rt-1", result.RefreshToken)
}

func TestClient_LoginRejected(t *testing.T) {
	_, srv := newFakeBackend(t)
	c := newTestClient(t, srv)

	_, err := c.Login(context.Background(), models.LoginRequest{Email: "amir@example.com", Password: "wrong"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 4010, apiErr.Code)
	assert.Equal(t, "invalid credentials", apiErr.Desc)
	assert.Equal(t, "POST /auth/login", apiErr.Endpoint)
}

func TestClient_RefreshToken(t *testing.T) {
	_, srv := newFakeBackend(t)
	c := newTestClient(t, srv)

	pair, err := c.RefreshToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "at-2", pair.AccessToken)
	assert.Equal(t, "rt-2", pair.RefreshToken)

	_, err = c.RefreshToken(context.Background(), "rt-old")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 4011, apiErr.Code)
}

func TestAPI_AnonymousCatalog(t *testing.T) {
	_, srv := newFakeBackend(t)
	api := newTestClient(t, srv).For(nil)

	groups, err := api.TicketGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Aquarium", groups[0].Name)
	assert.True(t, groups[0].FromPrice.Equal(decimal.RequireFromString("12.5")))

	date := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	variants, err := api.TicketVariants(context.Background(), 3, date)
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, "2026-10-20", variants[0].Date)
}

func TestAPI_RefreshesOnceThenRetries(t *testing.T) {
	f, srv := newFakeBackend(t)
	tokens := &staticTokens{current: "at-1", fresh: "at-2"}
	api := newTestClient(t, srv).For(tokens)

	orders, err := api.Orders(context.Background())
	require.NoError(t, err)

	require.Len(t, orders, 1)
	assert.Equal(t, "ORD-55", orders[0].OrderNo)
	assert.Equal(t, 1, tokens.refreshes)
	assert.Equal(t, int32(2), f.calls.Load(), "original request plus one retry")
}

func TestAPI_SecondUnauthorizedIsReturned(t *testing.T) {
	f, srv := newFakeBackend(t)
	tokens := &staticTokens{current: "at-1", fresh: "at-still-bad"}
	api := newTestClient(t, srv).For(tokens)

	_, err := api.Orders(context.Background())

	assert.ErrorIs(t, err, status.ErrUnauthorized)
	assert.Equal(t, 1, tokens.refreshes, "retried requests must not refresh again")
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestAPI_RefreshFailurePropagates(t *testing.T) {
	_, srv := newFakeBackend(t)
	tokens := &staticTokens{current: "at-1", err: status.ErrSessionExpired}
	api := newTestClient(t, srv).For(tokens)

	_, err := api.Orders(context.Background())

	assert.ErrorIs(t, err, status.ErrSessionExpired)
}

func TestAPI_AnonymousUnauthorizedSkipsRefresh(t *testing.T) {
	_, srv := newFakeBackend(t)
	tokens := &staticTokens{fresh: "at-2"}
	api := newTestClient(t, srv).For(tokens)

	_, err := api.Orders(context.Background())

	assert.ErrorIs(t, err, status.ErrUnauthorized)
	assert.Zero(t, tokens.refreshes)
}

func TestAPI_ConcurrentUnauthorizedShareRefresh(t *testing.T) {
	f, srv := newFakeBackend(t)
	c := newTestClient(t, srv)

	// Minimal single-flight source: only the first caller with the stale
	// token reaches the backend.
	var (
		mu      sync.Mutex
		current = "at-1"
	)
	tokens := tokenFuncs{
		access: func() string {
			mu.Lock()
			defer mu.Unlock()
			return current
		},
		refresh: func(ctx context.Context, stale string) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if current != stale {
				return current, nil
			}
			pair, err := c.RefreshToken(ctx, "rt-1")
			if err != nil {
				return "", err
			}
			current = pair.AccessToken
			return current, nil
		},
	}
	api := c.For(tokens)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = api.Orders(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.refreshes.Load())
}

type tokenFuncs struct {
	access  func() string
	refresh func(ctx context.Context, stale string) (string, error)
}

func (t tokenFuncs) AccessToken() string { return t.access() }
func (t tokenFuncs) Refresh(ctx context.Context, stale string) (string, error) {
	return t.refresh(ctx, stale)
}

func TestAPI_HTTPErrorPassesThrough(t *testing.T) {
	_, srv := newFakeBackend(t)
	tokens := &staticTokens{current: "at-2"}
	api := newTestClient(t, srv).For(tokens)

	_, err := api.BankList(context.Background(), "fpx")

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.Status)
	assert.Contains(t, httpErr.Body, "upstream unavailable")
	assert.Zero(t, tokens.refreshes)
}

func TestAPI_NonMemberInquiry(t *testing.T) {
	_, srv := newFakeBackend(t)
	api := newTestClient(t, srv).For(nil)

	order, err := api.NonMemberInquiry(context.Background(), "ORD-56", "guest@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(56), order.ID)

	_, err = api.NonMemberInquiry(context.Background(), "ORD-56", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 4004, apiErr.Code)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	_, srv := newFakeBackend(t)
	cb := utils.NewCircuitBreaker("backend-test", WithBackendFailures(), utils.WithTripThreshold(2, 0.5))
	api := newTestClient(t, srv, WithBreaker(cb)).For(nil)
	ctx := context.Background()

	_, err := api.BankList(ctx, "fpx")
	require.Error(t, err)
	_, err = api.BankList(ctx, "fpx")
	require.Error(t, err)

	_, err = api.TicketGroups(ctx)
	assert.ErrorIs(t, err, status.ErrCircuitOpen)
}

func TestClient_BreakerIgnoresApplicationErrors(t *testing.T) {
	_, srv := newFakeBackend(t)
	cb := utils.NewCircuitBreaker("backend-test", WithBackendFailures(), utils.WithTripThreshold(2, 0.5))
	c := newTestClient(t, srv, WithBreaker(cb))

	for i := 0; i < 5; i++ {
		_, err := c.Login(context.Background(), models.LoginRequest{Email: "a@b.c", Password: "wrong"})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
	}

	assert.Equal(t, utils.StateClosed, cb.State())
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		wantErr error
		check   func(t *testing.T, err error)
	}{
		{name: "success", code: 200, body: `{"respCode":2000,"result":{"orderNo":"A1"}}`},
		{name: "null result", code: 200, body: `{"respCode":2000,"result":null}`},
		{name: "unauthorized", code: 401, body: ``, wantErr: status.ErrUnauthorized},
		{
			name: "application error", code: 200, body: `{"respCode":5001,"respDesc":"sold out"}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, 5001, apiErr.Code)
			},
		},
		{
			name: "http error", code: 404, body: `not found`,
			check: func(t *testing.T, err error) {
				var httpErr *HTTPError
				require.ErrorAs(t, err, &httpErr)
				assert.Equal(t, 404, httpErr.Status)
			},
		},
		{
			name: "bad json", code: 200, body: `<html>`,
			check: func(t *testing.T, err error) { assert.Contains(t, err.Error(), "decode envelope") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out models.OrderPlacement
			err := decode("GET /x", tt.code, []byte(tt.body), &out)

			switch {
			case tt.check != nil:
				tt.check(t, err)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}
