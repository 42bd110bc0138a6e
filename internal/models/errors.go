package models

import "errors"

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrWalletExists        = errors.New("wallet already exists for this currency")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidCurrency     = errors.New("currency code is required")
	ErrPairNotTradeable    = errors.New("pair not tradeable")
	ErrUpstreamUnavailable = errors.New("service unavailable, please retry later")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)

// OrderConflictError reports an attempt to settle an order that is no
// longer PENDING. The terminal status is kept for the client message.
type OrderConflictError struct {
	Status string
}

func (e *OrderConflictError) Error() string {
	return "order is already " + e.Status
}

// IsConflict reports whether err is an order-state conflict.
func IsConflict(err error) bool {
	var conflict *OrderConflictError
	return errors.As(err, &conflict)
}
