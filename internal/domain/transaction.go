package domain

import (
	"time"
)

// TransactionType enumerates the payment transaction kinds recorded per order.
type TransactionType string

const (
	// TransactionTypeInit records the creation of a payment intent with the PSP.
	TransactionTypeInit TransactionType = "INIT"
	// TransactionTypeAuthorize records a successful authorization hold.
	TransactionTypeAuthorize TransactionType = "AUTHORIZE"
	// TransactionTypeCapture records the settlement of an authorized amount.
	TransactionTypeCapture TransactionType = "CAPTURE"
	// TransactionTypeRefund records the return of a captured amount.
	TransactionTypeRefund TransactionType = "REFUND"
)

// Transaction is an immutable payment event appended to an order's history.
type Transaction struct {
	ID           string
	OrderID      string
	StoreCode    string
	Type         TransactionType
	Amount       int64
	Currency     string
	PaymentType  PaymentMethodType
	Details      map[string]string
	TransactedAt time.Time
}

// NextTransactionType returns the single legal successor for the most recent
// transaction type. A nil last transaction means the order has no payment
// history yet, so INIT is next. REFUND is terminal.
func NextTransactionType(last *Transaction) (TransactionType, bool) {
	if last == nil {
		return TransactionTypeInit, true
	}
	switch last.Type {
	case TransactionTypeInit:
		return TransactionTypeAuthorize, true
	case TransactionTypeAuthorize:
		return TransactionTypeCapture, true
	case TransactionTypeCapture:
		return TransactionTypeRefund, true
	default:
		return "", false
	}
}

// CanFollow reports whether candidate is the legal successor of the most
// recent transaction.
func CanFollow(candidate TransactionType, last *Transaction) bool {
	next, ok := NextTransactionType(last)
	return ok && next == candidate
}

// ValidTransactionType reports whether the value is one of the known kinds.
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TransactionTypeInit, TransactionTypeAuthorize, TransactionTypeCapture, TransactionTypeRefund:
		return true
	default:
		return false
	}
}
