package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopcore/api/internal/domain"
	"github.com/shopcore/api/internal/platform/auth"
	"github.com/shopcore/api/internal/services"
)

func newAuthRouter(handler *CustomerHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/auth", handler.Routes)
	return router
}

func newPrivateRouter(handler *AdminPaymentHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/private", handler.Routes)
	return router
}

func TestCustomerHandlersGetCustomerCart(t *testing.T) {
	service := &stubCartService{
		getCustomerFunc: func(ctx context.Context, query services.CustomerCartQuery) (services.Cart, error) {
			if query.CustomerID != "cust-1" {
				t.Fatalf("unexpected customer id %q", query.CustomerID)
			}
			if query.CartCode != "CART-1" {
				t.Fatalf("unexpected cart code %q", query.CartCode)
			}
			return services.Cart{Code: "CART-1", StoreCode: "DEFAULT", Currency: "USD"}, nil
		},
	}

	handler := NewCustomerHandlers(nil, service, nil)
	router := newAuthRouter(handler)

	req := withTestStore(httptest.NewRequest(http.MethodGet, "/auth/customer/cart?cart=CART-1", nil))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cust-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCustomerHandlersGetCustomerCartUnauthenticated(t *testing.T) {
	handler := NewCustomerHandlers(nil, &stubCartService{}, nil)

	req := withTestStore(httptest.NewRequest(http.MethodGet, "/auth/customer/cart", nil))
	rr := httptest.NewRecorder()
	handler.getCustomerCart(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCustomerHandlersInitPaymentCarriesIdentity(t *testing.T) {
	payments := &stubPaymentService{
		initFunc: func(ctx context.Context, cmd services.InitPaymentCommand) (services.Transaction, error) {
			if cmd.CustomerID == nil || *cmd.CustomerID != "cust-1" {
				t.Fatalf("expected customer id on command, got %+v", cmd.CustomerID)
			}
			return services.Transaction{ID: "tx-1", OrderID: cmd.CartCode, Type: domain.TransactionTypeInit, Amount: 1000, Currency: "USD"}, nil
		},
	}

	handler := NewCustomerHandlers(nil, &stubCartService{}, payments)
	router := newAuthRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/auth/cart/CART-1/payment/init", strings.NewReader(`{"token":"pm_123"}`))
	req = withTestStore(req)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cust-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp transactionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Transaction.Type != "INIT" {
		t.Fatalf("expected INIT transaction, got %q", resp.Transaction.Type)
	}
}

func TestCartHandlersInitPaymentGatewayFailure(t *testing.T) {
	payments := &stubPaymentService{
		initFunc: func(ctx context.Context, cmd services.InitPaymentCommand) (services.Transaction, error) {
			return services.Transaction{}, services.ErrPaymentGatewayFailure
		},
	}

	router := newCartRouter(NewCartHandlers(&stubCartService{}, payments))

	req := httptest.NewRequest(http.MethodPost, "/cart/CART-1/payment/init", strings.NewReader(`{"token":"pm_123"}`))
	req = withTestStore(req)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "payment_gateway_failure") {
		t.Fatalf("expected payment_gateway_failure code, got %s", rr.Body.String())
	}
}

func TestAdminPaymentHandlersAuthorize(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	payments := &stubPaymentService{
		authorizeFunc: func(ctx context.Context, cmd services.OrderPaymentCommand) (services.Transaction, error) {
			if cmd.OrderID != "order-1" {
				t.Fatalf("unexpected order id %q", cmd.OrderID)
			}
			return services.Transaction{ID: "tx-2", OrderID: "order-1", Type: domain.TransactionTypeAuthorize, Amount: 3000, Currency: "USD", TransactedAt: now}, nil
		},
	}

	router := newPrivateRouter(NewAdminPaymentHandlers(nil, payments, &stubTransactionQueryService{}))

	req := withTestStore(httptest.NewRequest(http.MethodPost, "/private/orders/order-1/authorize", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp transactionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Transaction.Type != "AUTHORIZE" {
		t.Fatalf("expected AUTHORIZE, got %q", resp.Transaction.Type)
	}
}

func TestAdminPaymentHandlersCaptureInvalidState(t *testing.T) {
	payments := &stubPaymentService{
		captureFunc: func(ctx context.Context, cmd services.OrderPaymentCommand) (services.Transaction, error) {
			return services.Transaction{}, services.ErrPaymentInvalidState
		},
	}

	router := newPrivateRouter(NewAdminPaymentHandlers(nil, payments, &stubTransactionQueryService{}))

	req := withTestStore(httptest.NewRequest(http.MethodPost, "/private/orders/order-1/capture", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid_transaction_state") {
		t.Fatalf("expected invalid_transaction_state code, got %s", rr.Body.String())
	}
}

func TestAdminPaymentHandlersRefundPartialAmount(t *testing.T) {
	payments := &stubPaymentService{
		refundFunc: func(ctx context.Context, cmd services.OrderPaymentCommand) (services.Transaction, error) {
			if cmd.Amount == nil || *cmd.Amount != 500 {
				t.Fatalf("expected amount override 500, got %+v", cmd.Amount)
			}
			return services.Transaction{ID: "tx-4", OrderID: "order-1", Type: domain.TransactionTypeRefund, Amount: 500, Currency: "USD"}, nil
		},
	}

	router := newPrivateRouter(NewAdminPaymentHandlers(nil, payments, &stubTransactionQueryService{}))

	req := httptest.NewRequest(http.MethodPost, "/private/orders/order-1/refund", strings.NewReader(`{"amount":500}`))
	req = withTestStore(req)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminPaymentHandlersNextTransaction(t *testing.T) {
	queries := &stubTransactionQueryService{
		nextFunc: func(ctx context.Context, storeCode, orderID string) (services.TransactionType, error) {
			return domain.TransactionTypeCapture, nil
		},
	}

	router := newPrivateRouter(NewAdminPaymentHandlers(nil, &stubPaymentService{}, queries))

	req := withTestStore(httptest.NewRequest(http.MethodGet, "/private/orders/order-1/payment/nextTransaction", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp nextTransactionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TransactionType != "CAPTURE" {
		t.Fatalf("expected CAPTURE, got %q", resp.TransactionType)
	}
}

func TestAdminPaymentHandlersListTransactions(t *testing.T) {
	queries := &stubTransactionQueryService{
		listFunc: func(ctx context.Context, storeCode, orderID string) ([]services.Transaction, error) {
			return []services.Transaction{
				{ID: "tx-1", OrderID: orderID, Type: domain.TransactionTypeInit},
				{ID: "tx-2", OrderID: orderID, Type: domain.TransactionTypeAuthorize},
			}, nil
		},
	}

	router := newPrivateRouter(NewAdminPaymentHandlers(nil, &stubPaymentService{}, queries))

	req := withTestStore(httptest.NewRequest(http.MethodGet, "/private/orders/order-1/payment/transactions", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp transactionListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(resp.Transactions))
	}
}

func TestAdminPaymentHandlersListCapturable(t *testing.T) {
	queries := &stubTransactionQueryService{
		capturableFunc: func(ctx context.Context, query services.CapturableQuery) ([]services.CapturableOrder, error) {
			if query.Start == nil || query.End == nil {
				t.Fatalf("expected explicit window, got %+v", query)
			}
			return []services.CapturableOrder{
				{
					Order:         services.Order{ID: "order-1", Currency: "USD", Total: 3000},
					Authorization: services.Transaction{ID: "tx-2", OrderID: "order-1", Type: domain.TransactionTypeAuthorize},
				},
			}, nil
		},
	}

	router := newPrivateRouter(NewAdminPaymentHandlers(nil, &stubPaymentService{}, queries))

	req := withTestStore(httptest.NewRequest(http.MethodGet, "/private/orders/payment/capturable?startDate=2025-06-01&endDate=2025-06-02", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp capturableListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].Order.ID != "order-1" {
		t.Fatalf("unexpected payload: %+v", resp.Orders)
	}
}

func TestAdminPaymentHandlersListCapturableInvalidDate(t *testing.T) {
	router := newPrivateRouter(NewAdminPaymentHandlers(nil, &stubPaymentService{}, &stubTransactionQueryService{}))

	req := withTestStore(httptest.NewRequest(http.MethodGet, "/private/orders/payment/capturable?startDate=not-a-date", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

type stubPaymentService struct {
	initFunc      func(ctx context.Context, cmd services.InitPaymentCommand) (services.Transaction, error)
	authorizeFunc func(ctx context.Context, cmd services.OrderPaymentCommand) (services.Transaction, error)
	captureFunc   func(ctx context.Context, cmd services.OrderPaymentCommand) (services.Transaction, error)
	refundFunc    func(ctx context.Context, cmd services.OrderPaymentCommand) (services.Transaction, error)
}

func (s *stubPaymentService) InitTransaction(ctx context.Context, cmd services.InitPaymentCommand) (services.Transaction, error) {
	if s.initFunc != nil {
		return s.initFunc(ctx, cmd)
	}
	return services.Transaction{}, errors.New("not implemented")
}

func (s *stubPaymentService) Authorize(ctx context.Context, cmd services.OrderPaymentCommand) (services.Transaction, error) {
	if s.authorizeFunc != nil {
		return s.authorizeFunc(ctx, cmd)
	}
	return services.Transaction{}, errors.New("not implemented")
}

func (s *stubPaymentService) Capture(ctx context.Context, cmd services.OrderPaymentCommand) (services.Transaction, error) {
	if s.captureFunc != nil {
		return s.captureFunc(ctx, cmd)
	}
	return services.Transaction{}, errors.New("not implemented")
}

func (s *stubPaymentService) Refund(ctx context.Context, cmd services.OrderPaymentCommand) (services.Transaction, error) {
	if s.refundFunc != nil {
		return s.refundFunc(ctx, cmd)
	}
	return services.Transaction{}, errors.New("not implemented")
}

var _ services.PaymentService = (*stubPaymentService)(nil)

type stubTransactionQueryService struct {
	nextFunc       func(ctx context.Context, storeCode, orderID string) (services.TransactionType, error)
	listFunc       func(ctx context.Context, storeCode, orderID string) ([]services.Transaction, error)
	capturableFunc func(ctx context.Context, query services.CapturableQuery) ([]services.CapturableOrder, error)
}

func (s *stubTransactionQueryService) NextTransactionType(ctx context.Context, storeCode, orderID string) (services.TransactionType, error) {
	if s.nextFunc != nil {
		return s.nextFunc(ctx, storeCode, orderID)
	}
	return "", errors.New("not implemented")
}

func (s *stubTransactionQueryService) ListTransactions(ctx context.Context, storeCode, orderID string) ([]services.Transaction, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, storeCode, orderID)
	}
	return nil, errors.New("not implemented")
}

func (s *stubTransactionQueryService) ListCapturable(ctx context.Context, query services.CapturableQuery) ([]services.CapturableOrder, error) {
	if s.capturableFunc != nil {
		return s.capturableFunc(ctx, query)
	}
	return nil, errors.New("not implemented")
}

var _ services.TransactionQueryService = (*stubTransactionQueryService)(nil)
