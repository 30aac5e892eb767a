package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/shopcore/api/internal/domain"
	pfirestore "github.com/shopcore/api/internal/platform/firestore"
	"github.com/shopcore/api/internal/repositories"
)

const (
	transactionCollection = "payment_transactions"
)

// TransactionRepository appends immutable payment transactions to Firestore.
type TransactionRepository struct {
	base     *pfirestore.BaseRepository[transactionDocument]
	provider *pfirestore.Provider
}

// NewTransactionRepository constructs a Firestore-backed transaction repository.
func NewTransactionRepository(provider *pfirestore.Provider) (*TransactionRepository, error) {
	if provider == nil {
		return nil, errors.New("transaction repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[transactionDocument](provider, transactionCollection)
	return &TransactionRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Append persists a new transaction document keyed by its ULID. Documents are
// never updated after this write.
func (r *TransactionRepository) Append(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if r == nil || r.base == nil {
		return domain.Transaction{}, errors.New("transaction repository not initialised")
	}
	id := strings.TrimSpace(tx.ID)
	if id == "" {
		return domain.Transaction{}, errors.New("transaction repository: transaction id is required")
	}
	if strings.TrimSpace(tx.OrderID) == "" {
		return domain.Transaction{}, errors.New("transaction repository: order id is required")
	}

	doc := transactionDocument{
		OrderID:      strings.TrimSpace(tx.OrderID),
		StoreCode:    strings.TrimSpace(tx.StoreCode),
		Type:         string(tx.Type),
		Amount:       tx.Amount,
		Currency:     strings.ToUpper(strings.TrimSpace(tx.Currency)),
		PaymentType:  string(tx.PaymentType),
		Details:      cloneStringMap(tx.Details),
		TransactedAt: tx.TransactedAt.UTC(),
	}

	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return domain.Transaction{}, err
	}

	return decodeTransaction(id, doc), nil
}

// ListByOrder returns the full transaction history for an order, oldest first.
func (r *TransactionRepository) ListByOrder(ctx context.Context, storeCode, orderID string) ([]domain.Transaction, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("transaction repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("transaction repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("storeCode", "==", strings.TrimSpace(storeCode)).
			Where("orderId", "==", orderID).
			OrderBy("transactedAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Transaction, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeTransaction(doc.ID, doc.Data))
	}
	return out, nil
}

// LastByOrder returns the most recent transaction for an order, or nil when
// the order has no payment history yet.
func (r *TransactionRepository) LastByOrder(ctx context.Context, storeCode, orderID string) (*domain.Transaction, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("transaction repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("transaction repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("storeCode", "==", strings.TrimSpace(storeCode)).
			Where("orderId", "==", orderID).
			OrderBy("transactedAt", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	tx := decodeTransaction(docs[0].ID, docs[0].Data)
	return &tx, nil
}

// ListAuthorizedBetween returns AUTHORIZE transactions whose timestamp falls
// in [start, end), scoped to the store. Callers decide whether the
// authorization is still the most recent event for its order.
func (r *TransactionRepository) ListAuthorizedBetween(ctx context.Context, storeCode string, start, end time.Time) ([]domain.Transaction, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("transaction repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("storeCode", "==", strings.TrimSpace(storeCode)).
			Where("type", "==", string(domain.TransactionTypeAuthorize)).
			Where("transactedAt", ">=", start.UTC()).
			Where("transactedAt", "<", end.UTC()).
			OrderBy("transactedAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Transaction, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeTransaction(doc.ID, doc.Data))
	}
	return out, nil
}

func decodeTransaction(id string, doc transactionDocument) domain.Transaction {
	return domain.Transaction{
		ID:           id,
		OrderID:      doc.OrderID,
		StoreCode:    doc.StoreCode,
		Type:         domain.TransactionType(doc.Type),
		Amount:       doc.Amount,
		Currency:     doc.Currency,
		PaymentType:  domain.PaymentMethodType(doc.PaymentType),
		Details:      cloneStringMap(doc.Details),
		TransactedAt: doc.TransactedAt,
	}
}

type transactionDocument struct {
	OrderID      string            `firestore:"orderId"`
	StoreCode    string            `firestore:"storeCode"`
	Type         string            `firestore:"type"`
	Amount       int64             `firestore:"amount"`
	Currency     string            `firestore:"currency"`
	PaymentType  string            `firestore:"paymentType,omitempty"`
	Details      map[string]string `firestore:"details,omitempty"`
	TransactedAt time.Time         `firestore:"transactedAt"`
}

var _ repositories.TransactionRepository = (*TransactionRepository)(nil)
