package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopcore/api/internal/platform/httpx"
	"github.com/shopcore/api/internal/platform/storefront"
	"github.com/shopcore/api/internal/services"
)

// CartHandlers exposes the guest cart endpoints keyed by opaque cart codes.
type CartHandlers struct {
	carts    services.CartService
	payments services.PaymentService

	paymentInitMW []func(http.Handler) http.Handler
}

const maxCartBodySize = 16 * 1024

// CartOption customises CartHandlers construction.
type CartOption func(*CartHandlers)

// WithPaymentInitMiddleware wraps the payment init endpoint, typically with
// the idempotency-key middleware.
func WithPaymentInitMiddleware(mw ...func(http.Handler) http.Handler) CartOption {
	return func(h *CartHandlers) {
		h.paymentInitMW = append(h.paymentInitMW, mw...)
	}
}

// NewCartHandlers constructs handlers for the guest cart surface.
func NewCartHandlers(carts services.CartService, payments services.PaymentService, opts ...CartOption) *CartHandlers {
	h := &CartHandlers{
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

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createCart)
	r.Route("/{code}", func(cart chi.Router) {
		cart.Get("/", h.getCart)
		cart.Put("/", h.modifyCart)
		cart.Post("/multi", h.modifyCartMulti)
		cart.Post("/promo/{promo}", h.applyPromotion)
		cart.Delete("/product/{sku}", h.removeItem)
		cart.With(h.paymentInitMW...).Post("/payment/init", h.initPayment)
	})
}

func (h *CartHandlers) createCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	req, err := h.readCartItemRequest(w, r)
	if err != nil {
		return
	}

	store, _ := storefront.StoreFromContext(ctx)
	cart, err := h.carts.AddToCart(ctx, services.AddToCartCommand{
		StoreCode: store.Code,
		Currency:  req.Currency,
		CartCode:  req.CartCode,
		Item: services.CartItemInput{
			SKU:        req.SKU,
			Quantity:   req.Quantity,
			Attributes: req.Attributes,
		},
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if strings.TrimSpace(req.CartCode) != "" {
		status = http.StatusOK
	}
	writeJSONResponse(w, status, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	store, _ := storefront.StoreFromContext(ctx)
	cart, err := h.carts.GetByCode(ctx, store.Code, chi.URLParam(r, "code"))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) modifyCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	req, err := h.readCartItemRequest(w, r)
	if err != nil {
		return
	}

	store, _ := storefront.StoreFromContext(ctx)
	cart, err := h.carts.ModifyCart(ctx, services.ModifyCartCommand{
		CartCode:  chi.URLParam(r, "code"),
		StoreCode: store.Code,
		Item: services.CartItemInput{
			SKU:        req.SKU,
			Quantity:   req.Quantity,
			Attributes: req.Attributes,
		},
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) modifyCartMulti(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req cartMultiRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	if len(req.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "items must not be empty", http.StatusBadRequest))
		return
	}

	items := make([]services.CartItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.CartItemInput{
			SKU:        item.SKU,
			Quantity:   item.Quantity,
			Attributes: item.Attributes,
		})
	}

	store, _ := storefront.StoreFromContext(ctx)
	cart, err := h.carts.ModifyCartMulti(ctx, services.ModifyCartMultiCommand{
		CartCode:  chi.URLParam(r, "code"),
		StoreCode: store.Code,
		Items:     items,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) applyPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	store, _ := storefront.StoreFromContext(ctx)
	cart, err := h.carts.ApplyPromotion(ctx, services.ApplyPromotionCommand{
		CartCode:  chi.URLParam(r, "code"),
		StoreCode: store.Code,
		PromoCode: chi.URLParam(r, "promo"),
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	returnCart := parseBoolParam(r.URL.Query().Get("body"))

	store, _ := storefront.StoreFromContext(ctx)
	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		CartCode:   chi.URLParam(r, "code"),
		StoreCode:  store.Code,
		SKU:        chi.URLParam(r, "sku"),
		ReturnCart: returnCart,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	if !returnCart {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) initPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	req, err := readPaymentRequest(ctx, w, r)
	if err != nil {
		return
	}

	store, _ := storefront.StoreFromContext(ctx)
	tx, err := h.payments.InitTransaction(ctx, services.InitPaymentCommand{
		CartCode:  chi.URLParam(r, "code"),
		StoreCode: store.Code,
		Payment:   req.toPayment(),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, transactionResponse{Transaction: buildTransactionPayload(tx)})
}

func (h *CartHandlers) readCartItemRequest(w http.ResponseWriter, r *http.Request) (cartItemRequest, error) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return cartItemRequest{}, err
	}

	var req cartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return cartItemRequest{}, err
	}
	if strings.TrimSpace(req.SKU) == "" {
		err := errors.New("sku is required")
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return cartItemRequest{}, err
	}
	return req, nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPromotionRejected):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_rejected", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart request", http.StatusInternalServerError))
	}
}

type cartItemRequest struct {
	SKU        string            `json:"sku"`
	Quantity   int               `json:"quantity"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Currency   string            `json:"currency,omitempty"`
	CartCode   string            `json:"cart_code,omitempty"`
}

type cartMultiRequest struct {
	Items []cartItemRequest `json:"items"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	Code       string                `json:"code"`
	CustomerID string                `json:"customer_id,omitempty"`
	StoreCode  string                `json:"store_code"`
	Currency   string                `json:"currency"`
	ItemsCount int                   `json:"items_count"`
	Items      []cartItemPayload     `json:"items"`
	Promotion  *cartPromotionPayload `json:"promotion,omitempty"`
	Totals     cartTotalsPayload     `json:"totals"`
	CreatedAt  string                `json:"created_at,omitempty"`
	UpdatedAt  string                `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	SKU        string            `json:"sku"`
	ProductID  string            `json:"product_id"`
	Name       string            `json:"name,omitempty"`
	Quantity   int               `json:"quantity"`
	UnitPrice  int64             `json:"unit_price"`
	Attributes map[string]string `json:"attributes,omitempty"`
	AddedAt    string            `json:"added_at,omitempty"`
	UpdatedAt  string            `json:"updated_at,omitempty"`
}

type cartPromotionPayload struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"`
	Applied        bool   `json:"applied"`
	AppliedAt      string `json:"applied_at,omitempty"`
}

type cartTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
	Quantity int   `json:"quantity"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		Code:       strings.TrimSpace(cart.Code),
		StoreCode:  strings.TrimSpace(cart.StoreCode),
		Currency:   strings.ToUpper(strings.TrimSpace(cart.Currency)),
		ItemsCount: len(cart.Items),
		Items:      buildCartItems(cart.Items),
		Totals: cartTotalsPayload{
			Subtotal: cart.Totals.Subtotal,
			Discount: cart.Totals.Discount,
			Total:    cart.Totals.Total,
			Quantity: cart.Totals.Quantity,
		},
	}
	if cart.CustomerID != nil {
		payload.CustomerID = strings.TrimSpace(*cart.CustomerID)
	}
	if cart.Promotion != nil {
		payload.Promotion = &cartPromotionPayload{
			Code:           strings.TrimSpace(cart.Promotion.Code),
			DiscountAmount: cart.Promotion.DiscountAmount,
			Applied:        cart.Promotion.Applied,
			AppliedAt:      formatTime(cart.Promotion.AppliedAt),
		}
	}
	if !cart.CreatedAt.IsZero() {
		payload.CreatedAt = formatTime(cart.CreatedAt)
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(cart.UpdatedAt)
	}
	return payload
}

func buildCartItems(items []services.CartItem) []cartItemPayload {
	if len(items) == 0 {
		return []cartItemPayload{}
	}
	payload := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		entry := cartItemPayload{
			SKU:        strings.TrimSpace(item.SKU),
			ProductID:  strings.TrimSpace(item.ProductID),
			Name:       strings.TrimSpace(item.Name),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Attributes: cloneStringMap(item.Attributes),
		}
		if !item.AddedAt.IsZero() {
			entry.AddedAt = formatTime(item.AddedAt)
		}
		if item.UpdatedAt != nil && !item.UpdatedAt.IsZero() {
			entry.UpdatedAt = formatTime(*item.UpdatedAt)
		}
		payload = append(payload, entry)
	}
	return payload
}
