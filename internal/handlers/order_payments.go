package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopcore/api/internal/domain"
	"github.com/shopcore/api/internal/platform/auth"
	"github.com/shopcore/api/internal/platform/httpx"
	"github.com/shopcore/api/internal/platform/storefront"
	"github.com/shopcore/api/internal/services"
)

const maxPaymentBodySize = 8 * 1024

// CustomerHandlers exposes the authenticated customer surface: resolving the
// customer's cart and opening payments on carts the customer owns.
type CustomerHandlers struct {
	authn    *auth.Authenticator
	carts    services.CartService
	payments services.PaymentService

	paymentInitMW []func(http.Handler) http.Handler
}

// CustomerOption customises CustomerHandlers construction.
type CustomerOption func(*CustomerHandlers)

// WithCustomerPaymentInitMiddleware wraps the authenticated payment init endpoint.
func WithCustomerPaymentInitMiddleware(mw ...func(http.Handler) http.Handler) CustomerOption {
	return func(h *CustomerHandlers) {
		h.paymentInitMW = append(h.paymentInitMW, mw...)
	}
}

// NewCustomerHandlers constructs handlers enforcing Firebase authentication
// before invoking cart and payment services.
func NewCustomerHandlers(authn *auth.Authenticator, carts services.CartService, payments services.PaymentService, opts ...CustomerOption) *CustomerHandlers {
	h := &CustomerHandlers{
		authn:    authn,
		carts:    carts,
		payments: payments,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /auth endpoints onto the provided router.
func (h *CustomerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/customer/cart", h.getCustomerCart)
	r.With(h.paymentInitMW...).Post("/cart/{code}/payment/init", h.initPayment)
}

func (h *CustomerHandlers) getCustomerCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	store, _ := storefront.StoreFromContext(ctx)
	cart, err := h.carts.GetForCustomer(ctx, services.CustomerCartQuery{
		StoreCode:  store.Code,
		CustomerID: identity.UID,
		CartCode:   r.URL.Query().Get("cart"),
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CustomerHandlers) initPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	req, err := readPaymentRequest(ctx, w, r)
	if err != nil {
		return
	}

	customerID := strings.TrimSpace(identity.UID)
	store, _ := storefront.StoreFromContext(ctx)
	tx, err := h.payments.InitTransaction(ctx, services.InitPaymentCommand{
		CartCode:   chi.URLParam(r, "code"),
		StoreCode:  store.Code,
		CustomerID: &customerID,
		Payment:    req.toPayment(),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, transactionResponse{Transaction: buildTransactionPayload(tx)})
}

// AdminPaymentHandlers exposes the admin order payment surface under /private.
type AdminPaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
	queries  services.TransactionQueryService
}

// NewAdminPaymentHandlers constructs handlers requiring the admin role.
func NewAdminPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, queries services.TransactionQueryService) *AdminPaymentHandlers {
	return &AdminPaymentHandlers{
		authn:    authn,
		payments: payments,
		queries:  queries,
	}
}

// Routes wires the /private endpoints onto the provided router.
func (h *AdminPaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Route("/orders", func(orders chi.Router) {
		orders.Get("/payment/capturable", h.listCapturable)
		orders.Route("/{orderID}", func(order chi.Router) {
			order.Post("/authorize", h.authorize)
			order.Post("/capture", h.capture)
			order.Post("/refund", h.refund)
			order.Get("/payment/nextTransaction", h.nextTransaction)
			order.Get("/payment/transactions", h.listTransactions)
		})
	})
}

func (h *AdminPaymentHandlers) authorize(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, cmd services.OrderPaymentCommand) (services.Transaction, error) {
		return h.payments.Authorize(ctx, cmd)
	})
}

func (h *AdminPaymentHandlers) capture(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, cmd services.OrderPaymentCommand) (services.Transaction, error) {
		return h.payments.Capture(ctx, cmd)
	})
}

func (h *AdminPaymentHandlers) refund(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, cmd services.OrderPaymentCommand) (services.Transaction, error) {
		return h.payments.Refund(ctx, cmd)
	})
}

func (h *AdminPaymentHandlers) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, services.OrderPaymentCommand) (services.Transaction, error)) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cmd := services.OrderPaymentCommand{
		OrderID: chi.URLParam(r, "orderID"),
	}
	store, _ := storefront.StoreFromContext(ctx)
	cmd.StoreCode = store.Code

	// The body is optional: admins may override the amount for partial
	// captures and refunds.
	if r.Body != nil && r.ContentLength != 0 {
		body, err := readLimitedBody(r, maxPaymentBodySize)
		if err != nil && !errors.Is(err, errEmptyBody) {
			writeBodyError(ctx, w, err)
			return
		}
		if len(body) > 0 {
			var req orderPaymentRequest
			if err := json.Unmarshal(body, &req); err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
				return
			}
			cmd.Amount = req.Amount
		}
	}

	tx, err := op(ctx, cmd)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, transactionResponse{Transaction: buildTransactionPayload(tx)})
}

func (h *AdminPaymentHandlers) nextTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	store, _ := storefront.StoreFromContext(ctx)
	next, err := h.queries.NextTransactionType(ctx, store.Code, chi.URLParam(r, "orderID"))
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, nextTransactionResponse{TransactionType: string(next)})
}

func (h *AdminPaymentHandlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	store, _ := storefront.StoreFromContext(ctx)
	txs, err := h.queries.ListTransactions(ctx, store.Code, chi.URLParam(r, "orderID"))
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	payload := make([]transactionPayload, 0, len(txs))
	for _, tx := range txs {
		payload = append(payload, buildTransactionPayload(tx))
	}
	writeJSONResponse(w, http.StatusOK, transactionListResponse{Transactions: payload})
}

func (h *AdminPaymentHandlers) listCapturable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := services.CapturableQuery{}
	store, _ := storefront.StoreFromContext(ctx)
	query.StoreCode = store.Code

	if raw := strings.TrimSpace(r.URL.Query().Get("startDate")); raw != "" {
		parsed, err := parseDateParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "startDate must be a valid date", http.StatusBadRequest))
			return
		}
		query.Start = &parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("endDate")); raw != "" {
		parsed, err := parseDateParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "endDate must be a valid date", http.StatusBadRequest))
			return
		}
		query.End = &parsed
	}

	orders, err := h.queries.ListCapturable(ctx, query)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	payload := make([]capturableOrderPayload, 0, len(orders))
	for _, entry := range orders {
		payload = append(payload, capturableOrderPayload{
			Order:         buildOrderPayload(entry.Order),
			Authorization: buildTransactionPayload(entry.Authorization),
		})
	}
	writeJSONResponse(w, http.StatusOK, capturableListResponse{Orders: payload})
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order or cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transaction_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentGatewayFailure):
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_failure", "payment provider rejected the request", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}

func readPaymentRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) (paymentRequest, error) {
	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return paymentRequest{}, err
	}

	var req paymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return paymentRequest{}, err
	}
	if strings.TrimSpace(req.Token) == "" {
		err := errors.New("token is required")
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return paymentRequest{}, err
	}
	if strings.TrimSpace(req.MethodType) == "" {
		req.MethodType = string(domain.PaymentMethodCreditCard)
	}
	return req, nil
}

type paymentRequest struct {
	MethodType string `json:"method_type"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency,omitempty"`
	Token      string `json:"token"`
	Descriptor string `json:"descriptor,omitempty"`
}

func (r paymentRequest) toPayment() services.Payment {
	return services.Payment{
		MethodType: domain.PaymentMethodType(strings.ToLower(strings.TrimSpace(r.MethodType))),
		Amount:     r.Amount,
		Currency:   strings.ToUpper(strings.TrimSpace(r.Currency)),
		Token:      strings.TrimSpace(r.Token),
		Descriptor: strings.TrimSpace(r.Descriptor),
	}
}

type orderPaymentRequest struct {
	Amount *int64 `json:"amount,omitempty"`
}

type transactionResponse struct {
	Transaction transactionPayload `json:"transaction"`
}

type transactionListResponse struct {
	Transactions []transactionPayload `json:"transactions"`
}

type nextTransactionResponse struct {
	TransactionType string `json:"transaction_type"`
}

type capturableListResponse struct {
	Orders []capturableOrderPayload `json:"orders"`
}

type capturableOrderPayload struct {
	Order         orderPayload       `json:"order"`
	Authorization transactionPayload `json:"authorization"`
}

type transactionPayload struct {
	ID           string            `json:"id"`
	OrderID      string            `json:"order_id"`
	Type         string            `json:"type"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	PaymentType  string            `json:"payment_type,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	TransactedAt string            `json:"transacted_at,omitempty"`
}

type orderPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number,omitempty"`
	CustomerID  string `json:"customer_id,omitempty"`
	Currency    string `json:"currency"`
	Total       int64  `json:"total"`
	Status      string `json:"status,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

func buildTransactionPayload(tx services.Transaction) transactionPayload {
	payload := transactionPayload{
		ID:          strings.TrimSpace(tx.ID),
		OrderID:     strings.TrimSpace(tx.OrderID),
		Type:        string(tx.Type),
		Amount:      tx.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(tx.Currency)),
		PaymentType: string(tx.PaymentType),
		Details:     cloneStringMap(tx.Details),
	}
	if !tx.TransactedAt.IsZero() {
		payload.TransactedAt = formatTime(tx.TransactedAt)
	}
	return payload
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Total:       order.Total,
		Status:      string(order.Status),
	}
	if order.CustomerID != nil {
		payload.CustomerID = strings.TrimSpace(*order.CustomerID)
	}
	if !order.CreatedAt.IsZero() {
		payload.CreatedAt = formatTime(order.CreatedAt)
	}
	return payload
}
