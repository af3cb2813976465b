package status

import "errors"

var (
	// session
	ErrNoRefreshToken = errors.New("session: no refresh token")
	ErrRefreshFailed  = errors.New("session: token refresh failed")
	ErrSessionExpired = errors.New("session: expired, login required")

	// backend
	ErrUnauthorized = errors.New("backend: unauthorized")
	ErrTransport    = errors.New("backend: transport failure")
	ErrCircuitOpen  = errors.New("backend: circuit breaker is open")

	// checkout
	ErrNoTicketsSelected   = errors.New("checkout: select at least one ticket")
	ErrGuestInfoIncomplete = errors.New("checkout: guest details are incomplete")
	ErrPaymentRequired     = errors.New("checkout: select a payment method")
	ErrBankRequired        = errors.New("checkout: select a bank for online banking")
	ErrTermsNotAccepted    = errors.New("checkout: terms must be accepted")
	ErrNotOnReview         = errors.New("checkout: order can only be placed from review")
	ErrInvalidQuantity     = errors.New("checkout: quantity must not be negative")
	ErrInvalidDiscount     = errors.New("checkout: discount must not be negative")
	ErrInvalidPrice        = errors.New("checkout: price must not be negative")
	ErrItemNotFound        = errors.New("checkout: cart item not found")

	// catalog
	ErrLoadCeiling = errors.New("catalog: load ceiling reached")

	// receipts
	ErrReceiptNotFound = errors.New("receipt: not found")
)
