package domain

const (
	DirectionDebit  = "DEBIT"
	DirectionCredit = "CREDIT"

	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"

	OrderStatusPending   = "PENDING"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusFailed    = "FAILED"
	// OrderStatusCancelled has no producing transition; the value is kept
	// for data-model compatibility with existing rows.
	OrderStatusCancelled = "CANCELLED"
)

// ValidSide reports whether s is a recognised order side.
func ValidSide(s string) bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// ValidDirection reports whether d is a recognised movement direction.
func ValidDirection(d string) bool {
	return d == DirectionDebit || d == DirectionCredit
}

// TerminalStatus reports whether an order status permits no further mutation.
func TerminalStatus(status string) bool {
	switch status {
	case OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}
