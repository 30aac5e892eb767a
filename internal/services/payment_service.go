package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shopcore/api/internal/domain"
	"github.com/shopcore/api/internal/payments"
	"github.com/shopcore/api/internal/repositories"
)

var (
	errPaymentCartsRequired        = errors.New("payment service: cart repository is required")
	errPaymentOrdersRequired       = errors.New("payment service: order repository is required")
	errPaymentTransactionsRequired = errors.New("payment service: transaction repository is required")
	errPaymentGatewayRequired      = errors.New("payment service: gateway is required")
	errPaymentClockRequired        = errors.New("payment service: clock is required")
)

// ErrPaymentInvalidInput indicates the caller supplied invalid payment input.
var ErrPaymentInvalidInput = errors.New("payment service: invalid input")

// ErrPaymentNotFound indicates the referenced cart or order does not exist.
var ErrPaymentNotFound = errors.New("payment service: not found")

// ErrPaymentInvalidState indicates the requested transition is not the legal
// successor of the order's most recent transaction.
var ErrPaymentInvalidState = errors.New("payment service: invalid transaction state")

// ErrPaymentGatewayFailure indicates the PSP rejected or failed the operation.
// No transaction record is written when the gateway fails.
var ErrPaymentGatewayFailure = errors.New("payment service: gateway failure")

// ErrPaymentUnavailable indicates missing dependencies or backend issues.
var ErrPaymentUnavailable = errors.New("payment service: unavailable")

// Gateway is the slice of the payments manager the service depends on.
type Gateway interface {
	InitTransaction(ctx context.Context, paymentCtx payments.PaymentContext, req payments.InitRequest) (payments.TransactionDetails, error)
	Authorize(ctx context.Context, paymentCtx payments.PaymentContext, req payments.AuthorizeRequest) (payments.TransactionDetails, error)
	Capture(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CaptureRequest) (payments.TransactionDetails, error)
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.TransactionDetails, error)
}

// Transaction detail keys persisted alongside each transaction record.
const (
	txDetailProvider = "provider"
	txDetailIntentID = "intentId"
	txDetailStatus   = "status"
	txDetailCartCode = "cartCode"
	txDetailAmount   = "amount"
)

// PaymentServiceDeps wires the repositories and gateway for payment flows.
type PaymentServiceDeps struct {
	Carts        repositories.CartRepository
	Orders       repositories.OrderRepository
	Transactions repositories.TransactionRepository
	Gateway      Gateway
	Clock        func() time.Time
	Logger       func(context.Context, string, map[string]any)
	IDGenerator  func() string
}

type paymentService struct {
	carts        repositories.CartRepository
	orders       repositories.OrderRepository
	transactions repositories.TransactionRepository
	gateway      Gateway
	now          func() time.Time
	logger       func(context.Context, string, map[string]any)
	newID        func() string

	locks *keyedMutex
}

// NewPaymentService constructs a PaymentService enforcing dependency validation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Carts == nil {
		return nil, errPaymentCartsRequired
	}
	if deps.Orders == nil {
		return nil, errPaymentOrdersRequired
	}
	if deps.Transactions == nil {
		return nil, errPaymentTransactionsRequired
	}
	if deps.Gateway == nil {
		return nil, errPaymentGatewayRequired
	}
	if deps.Clock == nil {
		return nil, errPaymentClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &paymentService{
		carts:        deps.Carts,
		orders:       deps.Orders,
		transactions: deps.Transactions,
		gateway:      deps.Gateway,
		now:          func() time.Time { return deps.Clock().UTC() },
		logger:       logger,
		newID:        idGen,
		locks:        newKeyedMutex(),
	}, nil
}

// InitTransaction opens a payment intent for the cart and records the INIT
// transaction keyed by the cart code. Guest checkouts skip ownership checks;
// an authenticated customer must own the cart, with mismatches reported as
// not found.
func (s *paymentService) InitTransaction(ctx context.Context, cmd InitPaymentCommand) (Transaction, error) {
	if s == nil || s.transactions == nil {
		return Transaction{}, ErrPaymentUnavailable
	}

	code := strings.TrimSpace(cmd.CartCode)
	if code == "" {
		return Transaction{}, fmt.Errorf("%w: cart code is required", ErrPaymentInvalidInput)
	}
	if cmd.Payment.MethodType == "" {
		return Transaction{}, fmt.Errorf("%w: payment method type is required", ErrPaymentInvalidInput)
	}
	if strings.TrimSpace(cmd.Payment.Token) == "" {
		return Transaction{}, fmt.Errorf("%w: payment token is required", ErrPaymentInvalidInput)
	}

	storeCode := strings.ToUpper(strings.TrimSpace(cmd.StoreCode))
	cart, err := s.carts.FindByCode(ctx, storeCode, code)
	if err != nil {
		return Transaction{}, s.translateRepoError(err)
	}
	if cmd.CustomerID != nil {
		principal := strings.TrimSpace(*cmd.CustomerID)
		if principal != "" && (cart.CustomerID == nil || *cart.CustomerID != principal) {
			return Transaction{}, ErrPaymentNotFound
		}
	}

	amount := cmd.Payment.Amount
	if amount <= 0 {
		amount = cart.Totals.Total
	}
	if amount <= 0 {
		return Transaction{}, fmt.Errorf("%w: cart has nothing to pay", ErrPaymentInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Payment.Currency))
	if currency == "" {
		currency = cart.Currency
	}

	unlock := s.locks.Lock(code)
	defer unlock()

	last, err := s.transactions.LastByOrder(ctx, storeCode, code)
	if err != nil {
		return Transaction{}, s.translateRepoError(err)
	}
	if !domain.CanFollow(domain.TransactionTypeInit, last) {
		return Transaction{}, fmt.Errorf("%w: cart %s already has a payment in progress", ErrPaymentInvalidState, code)
	}

	var customerID string
	if cart.CustomerID != nil {
		customerID = *cart.CustomerID
	}
	details, err := s.gateway.InitTransaction(ctx, payments.PaymentContext{Currency: currency}, payments.InitRequest{
		Amount:         amount,
		Currency:       currency,
		CustomerID:     customerID,
		Token:          strings.TrimSpace(cmd.Payment.Token),
		Descriptor:     strings.TrimSpace(cmd.Payment.Descriptor),
		Metadata:       map[string]string{"cartCode": code, "storeCode": storeCode},
		IdempotencyKey: "init-" + code,
	})
	if err != nil {
		s.logger(ctx, "payments.init_failed", map[string]any{
			"cartCode": code,
			"error":    err.Error(),
		})
		return Transaction{}, fmt.Errorf("%w: %s", ErrPaymentGatewayFailure, gatewayReason(err))
	}

	tx := domain.Transaction{
		ID:          s.newID(),
		OrderID:     code,
		StoreCode:   storeCode,
		Type:        domain.TransactionTypeInit,
		Amount:      amount,
		Currency:    currency,
		PaymentType: cmd.Payment.MethodType,
		Details: map[string]string{
			txDetailProvider: details.Provider,
			txDetailIntentID: details.IntentID,
			txDetailStatus:   string(details.Status),
			txDetailCartCode: code,
		},
		TransactedAt: s.now(),
	}
	return s.append(ctx, tx)
}

// Authorize confirms the intent recorded by INIT and appends the AUTHORIZE transaction.
func (s *paymentService) Authorize(ctx context.Context, cmd OrderPaymentCommand) (Transaction, error) {
	return s.transition(ctx, cmd, domain.TransactionTypeAuthorize)
}

// Capture settles the authorized amount and appends the CAPTURE transaction.
func (s *paymentService) Capture(ctx context.Context, cmd OrderPaymentCommand) (Transaction, error) {
	return s.transition(ctx, cmd, domain.TransactionTypeCapture)
}

// Refund returns the captured amount and appends the terminal REFUND transaction.
func (s *paymentService) Refund(ctx context.Context, cmd OrderPaymentCommand) (Transaction, error) {
	return s.transition(ctx, cmd, domain.TransactionTypeRefund)
}

func (s *paymentService) transition(ctx context.Context, cmd OrderPaymentCommand, kind domain.TransactionType) (Transaction, error) {
	if s == nil || s.transactions == nil {
		return Transaction{}, ErrPaymentUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Transaction{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	if cmd.Amount != nil && *cmd.Amount <= 0 {
		return Transaction{}, fmt.Errorf("%w: amount must be greater than zero", ErrPaymentInvalidInput)
	}

	storeCode := strings.ToUpper(strings.TrimSpace(cmd.StoreCode))
	order, err := s.orders.FindByID(ctx, storeCode, orderID)
	if err != nil {
		return Transaction{}, s.translateRepoError(err)
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	last, err := s.transactions.LastByOrder(ctx, storeCode, orderID)
	if err != nil {
		return Transaction{}, s.translateRepoError(err)
	}
	if !domain.CanFollow(kind, last) {
		lastType := domain.TransactionType("NONE")
		if last != nil {
			lastType = last.Type
		}
		return Transaction{}, fmt.Errorf("%w: %s cannot follow %s", ErrPaymentInvalidState, kind, lastType)
	}

	intentID := last.Details[txDetailIntentID]
	if intentID == "" {
		return Transaction{}, fmt.Errorf("%w: order %s has no payment intent on record", ErrPaymentInvalidState, orderID)
	}

	// Default to the amount carried by the previous transaction; an explicit
	// amount (partial capture or refund) wins and is what the gateway is sent.
	amount := order.Total
	if last.Amount > 0 {
		amount = last.Amount
	}
	if cmd.Amount != nil {
		amount = *cmd.Amount
	}
	paymentCtx := payments.PaymentContext{
		PreferredProvider: last.Details[txDetailProvider],
		Currency:          order.Currency,
	}
	idemKey := strings.ToLower(string(kind)) + "-" + orderID

	var details payments.TransactionDetails
	switch kind {
	case domain.TransactionTypeAuthorize:
		details, err = s.gateway.Authorize(ctx, paymentCtx, payments.AuthorizeRequest{
			IntentID:       intentID,
			IdempotencyKey: idemKey,
		})
	case domain.TransactionTypeCapture:
		details, err = s.gateway.Capture(ctx, paymentCtx, payments.CaptureRequest{
			IntentID:       intentID,
			Amount:         cmd.Amount,
			IdempotencyKey: idemKey,
		})
	case domain.TransactionTypeRefund:
		details, err = s.gateway.Refund(ctx, paymentCtx, payments.RefundRequest{
			IntentID:       intentID,
			Amount:         cmd.Amount,
			IdempotencyKey: idemKey,
		})
	default:
		return Transaction{}, fmt.Errorf("%w: unsupported transition %s", ErrPaymentInvalidState, kind)
	}
	if err != nil {
		s.logger(ctx, "payments.transition_failed", map[string]any{
			"orderId": orderID,
			"type":    string(kind),
			"error":   err.Error(),
		})
		return Transaction{}, fmt.Errorf("%w: %s", ErrPaymentGatewayFailure, gatewayReason(err))
	}

	tx := domain.Transaction{
		ID:          s.newID(),
		OrderID:     orderID,
		StoreCode:   storeCode,
		Type:        kind,
		Amount:      amount,
		Currency:    order.Currency,
		PaymentType: last.PaymentType,
		Details: map[string]string{
			txDetailProvider: details.Provider,
			txDetailIntentID: details.IntentID,
			txDetailStatus:   string(details.Status),
			txDetailAmount:   strconv.FormatInt(amount, 10),
		},
		TransactedAt: s.now(),
	}
	return s.append(ctx, tx)
}

func (s *paymentService) append(ctx context.Context, tx domain.Transaction) (Transaction, error) {
	saved, err := s.transactions.Append(ctx, tx)
	if err != nil {
		return Transaction{}, s.translateRepoError(err)
	}
	s.logger(ctx, "payments.transaction_recorded", map[string]any{
		"transactionId": saved.ID,
		"orderId":       saved.OrderID,
		"type":          string(saved.Type),
		"amount":        saved.Amount,
	})
	return saved, nil
}

func (s *paymentService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrPaymentNotFound
		case repoErr.IsConflict():
			return ErrPaymentUnavailable
		case repoErr.IsUnavailable():
			return ErrPaymentUnavailable
		}
	}
	return ErrPaymentUnavailable
}

// gatewayReason trims provider error text to a single line for wrapping.
func gatewayReason(err error) string {
	msg := strings.TrimSpace(err.Error())
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	return msg
}
