package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/shopcore/api/internal/domain"
	"github.com/shopcore/api/internal/repositories"
)

var (
	errTransactionQueryOrdersRequired       = errors.New("transaction query service: order repository is required")
	errTransactionQueryTransactionsRequired = errors.New("transaction query service: transaction repository is required")
	errTransactionQueryClockRequired        = errors.New("transaction query service: clock is required")
)

const defaultCapturableWindow = 24 * time.Hour

// TransactionQueryServiceDeps wires the read-side dependencies for payment history queries.
type TransactionQueryServiceDeps struct {
	Orders           repositories.OrderRepository
	Transactions     repositories.TransactionRepository
	Clock            func() time.Time
	CapturableWindow time.Duration
	Logger           func(context.Context, string, map[string]any)
}

type transactionQueryService struct {
	orders       repositories.OrderRepository
	transactions repositories.TransactionRepository
	now          func() time.Time
	window       time.Duration
	logger       func(context.Context, string, map[string]any)
}

// NewTransactionQueryService constructs the read-only payment history service.
func NewTransactionQueryService(deps TransactionQueryServiceDeps) (TransactionQueryService, error) {
	if deps.Orders == nil {
		return nil, errTransactionQueryOrdersRequired
	}
	if deps.Transactions == nil {
		return nil, errTransactionQueryTransactionsRequired
	}
	if deps.Clock == nil {
		return nil, errTransactionQueryClockRequired
	}

	window := deps.CapturableWindow
	if window <= 0 {
		window = defaultCapturableWindow
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &transactionQueryService{
		orders:       deps.Orders,
		transactions: deps.Transactions,
		now:          func() time.Time { return deps.Clock().UTC() },
		window:       window,
		logger:       logger,
	}, nil
}

// NextTransactionType reports the single legal successor for the order's most
// recent transaction. An order with no history is pending INIT; a refunded
// order has no successor.
func (s *transactionQueryService) NextTransactionType(ctx context.Context, storeCode, orderID string) (TransactionType, error) {
	if s == nil || s.transactions == nil {
		return "", ErrPaymentUnavailable
	}

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	storeCode = strings.ToUpper(strings.TrimSpace(storeCode))

	if _, err := s.orders.FindByID(ctx, storeCode, orderID); err != nil {
		return "", s.translateRepoError(err)
	}

	last, err := s.transactions.LastByOrder(ctx, storeCode, orderID)
	if err != nil {
		return "", s.translateRepoError(err)
	}

	next, ok := domain.NextTransactionType(last)
	if !ok {
		return "", fmt.Errorf("%w: order %s payment history is complete", ErrPaymentInvalidState, orderID)
	}
	return next, nil
}

// ListTransactions returns the order's payment history in transaction order.
func (s *transactionQueryService) ListTransactions(ctx context.Context, storeCode, orderID string) ([]Transaction, error) {
	if s == nil || s.transactions == nil {
		return nil, ErrPaymentUnavailable
	}

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	storeCode = strings.ToUpper(strings.TrimSpace(storeCode))

	if _, err := s.orders.FindByID(ctx, storeCode, orderID); err != nil {
		return nil, s.translateRepoError(err)
	}

	txs, err := s.transactions.ListByOrder(ctx, storeCode, orderID)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return txs, nil
}

// ListCapturable returns orders whose most recent transaction is an AUTHORIZE
// inside the [start, end) window. Bounds default to the configured window
// ending now. Authorizations superseded by a later transaction are skipped.
func (s *transactionQueryService) ListCapturable(ctx context.Context, query CapturableQuery) ([]CapturableOrder, error) {
	if s == nil || s.transactions == nil {
		return nil, ErrPaymentUnavailable
	}

	storeCode := strings.ToUpper(strings.TrimSpace(query.StoreCode))

	end := s.now()
	if query.End != nil {
		end = query.End.UTC()
	}
	start := end.Add(-s.window)
	if query.Start != nil {
		start = query.Start.UTC()
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start date must be before end date", ErrPaymentInvalidInput)
	}

	auths, err := s.transactions.ListAuthorizedBetween(ctx, storeCode, start, end)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	if len(auths) == 0 {
		return []CapturableOrder{}, nil
	}

	pending := make([]domain.Transaction, 0, len(auths))
	orderIDs := make([]string, 0, len(auths))
	for _, auth := range auths {
		last, err := s.transactions.LastByOrder(ctx, storeCode, auth.OrderID)
		if err != nil {
			return nil, s.translateRepoError(err)
		}
		if last == nil || last.ID != auth.ID {
			continue
		}
		pending = append(pending, auth)
		orderIDs = append(orderIDs, auth.OrderID)
	}
	if len(pending) == 0 {
		return []CapturableOrder{}, nil
	}

	orders, err := s.orders.FindByIDs(ctx, storeCode, orderIDs)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	headers := make(map[string]domain.Order, len(orders))
	for _, order := range orders {
		headers[order.ID] = order
	}

	out := make([]CapturableOrder, 0, len(pending))
	for _, auth := range pending {
		order, ok := headers[auth.OrderID]
		if !ok {
			s.logger(ctx, "payments.capturable_orphan", map[string]any{
				"orderId":       auth.OrderID,
				"transactionId": auth.ID,
			})
			continue
		}
		out = append(out, CapturableOrder{Order: order, Authorization: auth})
	}
	return out, nil
}

func (s *transactionQueryService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrPaymentNotFound
		case repoErr.IsConflict(), repoErr.IsUnavailable():
			return ErrPaymentUnavailable
		}
	}
	return ErrPaymentUnavailable
}
