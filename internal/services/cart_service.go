package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	domain "github.com/shopcore/api/internal/domain"
	"github.com/shopcore/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const (
	maxCartItemQuantity  = 999
	maxAttributeKeyLen   = 64
	maxAttributeValueLen = 255
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart or SKU does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrPromotionRejected indicates the promotion code was evaluated and declined.
var ErrPromotionRejected = errors.New("cart service: promotion rejected")

// CartServiceDeps wires the repository and collaborator dependencies for cart operations.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Catalog         repositories.CatalogRepository
	Promotions      PromotionValidator
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
}

type cartService struct {
	repo       repositories.CartRepository
	catalog    repositories.CatalogRepository
	promotions PromotionValidator
	newCode    func() string
	now        func() time.Time
	currency   string
	logger     func(context.Context, string, map[string]any)
	sanitizer  *bluemonday.Policy

	locks *keyedMutex
	reads singleflight.Group
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	defaultCurrency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	codeGen := deps.IDGenerator
	if codeGen == nil {
		codeGen = func() string { return ulid.Make().String() }
	}

	service := &cartService{
		repo:       deps.Repository,
		catalog:    deps.Catalog,
		promotions: deps.Promotions,
		newCode:    codeGen,
		now:        func() time.Time { return deps.Clock().UTC() },
		currency:   defaultCurrency,
		logger:     logger,
		sanitizer:  bluemonday.StrictPolicy(),
		locks:      newKeyedMutex(),
	}
	return service, nil
}

// AddToCart creates a cart with a generated code when none is supplied and
// upserts the requested item.
func (s *cartService) AddToCart(ctx context.Context, cmd AddToCartCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	storeCode := strings.ToUpper(strings.TrimSpace(cmd.StoreCode))
	if storeCode == "" {
		return Cart{}, fmt.Errorf("%w: store code is required", ErrCartInvalidInput)
	}
	if err := validateItemInput(cmd.Item, false); err != nil {
		return Cart{}, err
	}

	if code := strings.TrimSpace(cmd.CartCode); code != "" {
		return s.ModifyCart(ctx, ModifyCartCommand{
			CartCode:   code,
			StoreCode:  storeCode,
			CustomerID: cmd.CustomerID,
			Item:       cmd.Item,
		})
	}

	product, err := s.resolveProduct(ctx, storeCode, cmd.Item.SKU)
	if err != nil {
		return Cart{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}

	now := s.now()
	cart := domain.Cart{
		Code:      strings.TrimSpace(s.newCode()),
		StoreCode: storeCode,
		Currency:  currency,
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cart.Code == "" {
		return Cart{}, ErrCartUnavailable
	}
	if cmd.CustomerID != nil {
		customerID := strings.TrimSpace(*cmd.CustomerID)
		if customerID != "" {
			cart.CustomerID = &customerID
		}
	}

	cart.Items = upsertItem(cart.Items, cmd.Item, product, s.sanitizeAttributes(cmd.Item.Attributes), now)
	cart.Totals = domain.ComputeCartTotals(cart.Items, cart.Promotion)

	saved, err := s.repo.Insert(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.created", map[string]any{
		"cartCode": saved.Code,
		"store":    storeCode,
		"sku":      cmd.Item.SKU,
	})
	return s.normaliseCart(saved), nil
}

// ModifyCart upserts a single SKU line. Quantity zero removes the line and is
// a no-op when the SKU is absent.
func (s *cartService) ModifyCart(ctx context.Context, cmd ModifyCartCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	code := strings.TrimSpace(cmd.CartCode)
	if code == "" {
		return Cart{}, fmt.Errorf("%w: cart code is required", ErrCartInvalidInput)
	}
	if err := validateItemInput(cmd.Item, true); err != nil {
		return Cart{}, err
	}

	unlock := s.locks.Lock(code)
	defer unlock()

	cart, err := s.loadOwnedCart(ctx, cmd.StoreCode, code, cmd.CustomerID)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	items := cloneCartItems(cart.Items)

	if cmd.Item.Quantity == 0 {
		idx := indexOfSKU(items, cmd.Item.SKU)
		if idx < 0 {
			// Removing an absent SKU leaves the cart untouched.
			return s.normaliseCart(cart), nil
		}
		items = append(items[:idx], items[idx+1:]...)
	} else {
		product, err := s.resolveProduct(ctx, cart.StoreCode, cmd.Item.SKU)
		if err != nil {
			return Cart{}, err
		}
		items = upsertItem(items, cmd.Item, product, s.sanitizeAttributes(cmd.Item.Attributes), now)
	}

	return s.saveItems(ctx, cart, items, now)
}

// ModifyCartMulti applies the batch atomically: every line is validated before
// any mutation, and one save persists the whole result.
func (s *cartService) ModifyCartMulti(ctx context.Context, cmd ModifyCartMultiCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	code := strings.TrimSpace(cmd.CartCode)
	if code == "" {
		return Cart{}, fmt.Errorf("%w: cart code is required", ErrCartInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Cart{}, fmt.Errorf("%w: at least one item is required", ErrCartInvalidInput)
	}

	unlock := s.locks.Lock(code)
	defer unlock()

	cart, err := s.loadOwnedCart(ctx, cmd.StoreCode, code, cmd.CustomerID)
	if err != nil {
		return Cart{}, err
	}

	var problems []string
	products := make(map[string]domain.Product, len(cmd.Items))
	for _, input := range cmd.Items {
		if err := validateItemInput(input, true); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if input.Quantity == 0 {
			continue
		}
		sku := strings.TrimSpace(input.SKU)
		if _, ok := products[sku]; ok {
			continue
		}
		product, err := s.resolveProduct(ctx, cart.StoreCode, sku)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		products[sku] = product
	}
	if len(problems) > 0 {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartInvalidInput, strings.Join(problems, "; "))
	}

	now := s.now()
	items := cloneCartItems(cart.Items)
	for _, input := range cmd.Items {
		sku := strings.TrimSpace(input.SKU)
		if input.Quantity == 0 {
			if idx := indexOfSKU(items, sku); idx >= 0 {
				items = append(items[:idx], items[idx+1:]...)
			}
			continue
		}
		items = upsertItem(items, input, products[sku], s.sanitizeAttributes(input.Attributes), now)
	}

	return s.saveItems(ctx, cart, items, now)
}

// ApplyPromotion evaluates the code and applies it to the cart. Re-applying
// the code already on the cart returns the cart unchanged.
func (s *cartService) ApplyPromotion(ctx context.Context, cmd ApplyPromotionCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	code := strings.TrimSpace(cmd.CartCode)
	if code == "" {
		return Cart{}, fmt.Errorf("%w: cart code is required", ErrCartInvalidInput)
	}
	promoCode := strings.ToUpper(strings.TrimSpace(cmd.PromoCode))
	if promoCode == "" {
		return Cart{}, fmt.Errorf("%w: promotion code is required", ErrCartInvalidInput)
	}
	if s.promotions == nil {
		return Cart{}, ErrCartUnavailable
	}

	unlock := s.locks.Lock(code)
	defer unlock()

	cart, err := s.loadOwnedCart(ctx, cmd.StoreCode, code, cmd.CustomerID)
	if err != nil {
		return Cart{}, err
	}

	if cart.Promotion != nil && cart.Promotion.Applied && strings.EqualFold(cart.Promotion.Code, promoCode) {
		return s.normaliseCart(cart), nil
	}

	subtotal := domain.ComputeCartTotals(cart.Items, nil).Subtotal
	result, err := s.promotions.Validate(ctx, ValidatePromotionCommand{
		StoreCode: cart.StoreCode,
		Code:      promoCode,
		Subtotal:  subtotal,
		Currency:  cart.Currency,
	})
	if err != nil {
		s.logger(ctx, "cart.promotion_validation_failed", map[string]any{
			"cartCode": code,
			"promo":    promoCode,
			"error":    err.Error(),
		})
		return Cart{}, ErrCartUnavailable
	}
	if !result.Eligible {
		reason := strings.TrimSpace(result.Reason)
		if reason == "" {
			reason = "not eligible"
		}
		return Cart{}, fmt.Errorf("%w: %s", ErrPromotionRejected, reason)
	}

	now := s.now()
	cart.Promotion = &domain.CartPromotion{
		Code:           promoCode,
		DiscountAmount: result.DiscountAmount,
		Applied:        true,
		AppliedAt:      now,
	}

	return s.saveItems(ctx, cart, cloneCartItems(cart.Items), now)
}

// RemoveItem deletes a SKU line. Removing an absent SKU succeeds without a write.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	code := strings.TrimSpace(cmd.CartCode)
	if code == "" {
		return Cart{}, fmt.Errorf("%w: cart code is required", ErrCartInvalidInput)
	}
	sku := strings.TrimSpace(cmd.SKU)
	if sku == "" {
		return Cart{}, fmt.Errorf("%w: sku is required", ErrCartInvalidInput)
	}

	unlock := s.locks.Lock(code)
	defer unlock()

	cart, err := s.loadOwnedCart(ctx, cmd.StoreCode, code, cmd.CustomerID)
	if err != nil {
		return Cart{}, err
	}

	items := cloneCartItems(cart.Items)
	idx := indexOfSKU(items, sku)
	if idx < 0 {
		return s.normaliseCart(cart), nil
	}
	items = append(items[:idx], items[idx+1:]...)

	return s.saveItems(ctx, cart, items, s.now())
}

// GetByCode loads a cart, collapsing concurrent reads for the same code.
func (s *cartService) GetByCode(ctx context.Context, storeCode, code string) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return Cart{}, fmt.Errorf("%w: cart code is required", ErrCartInvalidInput)
	}
	storeCode = strings.ToUpper(strings.TrimSpace(storeCode))

	key := storeCode + "|" + code
	value, err, _ := s.reads.Do(key, func() (any, error) {
		cart, err := s.repo.FindByCode(ctx, storeCode, code)
		if err != nil {
			return nil, s.translateRepoError(err)
		}
		return cart, nil
	})
	if err != nil {
		return Cart{}, err
	}

	cart, ok := value.(domain.Cart)
	if !ok {
		return Cart{}, ErrCartUnavailable
	}
	return s.normaliseCart(cloneCart(cart)), nil
}

// GetForCustomer resolves the customer's cart. When a code is supplied the
// cart must belong to the customer; mismatches surface as not found so cart
// codes cannot be probed.
func (s *cartService) GetForCustomer(ctx context.Context, query CustomerCartQuery) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	customerID := strings.TrimSpace(query.CustomerID)
	if customerID == "" {
		return Cart{}, fmt.Errorf("%w: customer id is required", ErrCartInvalidInput)
	}
	storeCode := strings.ToUpper(strings.TrimSpace(query.StoreCode))

	if code := strings.TrimSpace(query.CartCode); code != "" {
		cart, err := s.GetByCode(ctx, storeCode, code)
		if err != nil {
			return Cart{}, err
		}
		if cart.CustomerID == nil || *cart.CustomerID != customerID {
			return Cart{}, ErrCartNotFound
		}
		return cart, nil
	}

	cart, err := s.repo.FindByCustomer(ctx, storeCode, customerID)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return s.normaliseCart(cart), nil
}

func (s *cartService) loadOwnedCart(ctx context.Context, storeCode, code string, customerID *string) (domain.Cart, error) {
	cart, err := s.repo.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(storeCode)), code)
	if err != nil {
		return domain.Cart{}, s.translateRepoError(err)
	}
	if customerID != nil {
		principal := strings.TrimSpace(*customerID)
		if principal != "" && cart.CustomerID != nil && *cart.CustomerID != principal {
			return domain.Cart{}, ErrCartNotFound
		}
	}
	return cart, nil
}

func (s *cartService) saveItems(ctx context.Context, cart domain.Cart, items []domain.CartItem, now time.Time) (Cart, error) {
	expected := cart.UpdatedAt.UTC()
	cart.Items = items
	cart.UpdatedAt = now
	cart.Totals = domain.ComputeCartTotals(cart.Items, cart.Promotion)

	var precondition *time.Time
	if !expected.IsZero() {
		precondition = &expected
	}

	saved, err := s.repo.Update(ctx, cart, precondition)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return s.normaliseCart(saved), nil
}

func (s *cartService) resolveProduct(ctx context.Context, storeCode, sku string) (domain.Product, error) {
	if s.catalog == nil {
		return domain.Product{}, ErrCartUnavailable
	}
	product, err := s.catalog.FindBySKU(ctx, storeCode, strings.TrimSpace(sku))
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Product{}, fmt.Errorf("%w: sku %q is not purchasable in store", ErrCartNotFound, strings.TrimSpace(sku))
		}
		return domain.Product{}, s.translateRepoError(err)
	}
	if !product.Available {
		return domain.Product{}, fmt.Errorf("%w: sku %q is not purchasable in store", ErrCartNotFound, strings.TrimSpace(sku))
	}
	return product, nil
}

func (s *cartService) normaliseCart(cart domain.Cart) domain.Cart {
	cart.Code = strings.TrimSpace(cart.Code)
	cart.StoreCode = strings.ToUpper(strings.TrimSpace(cart.StoreCode))
	cart.Currency = strings.ToUpper(strings.TrimSpace(cart.Currency))
	if cart.Currency == "" {
		cart.Currency = s.currency
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	cart.Totals = domain.ComputeCartTotals(cart.Items, cart.Promotion)
	return cart
}

func (s *cartService) sanitizeAttributes(attributes map[string]string) map[string]string {
	if len(attributes) == 0 {
		return nil
	}
	out := make(map[string]string, len(attributes))
	for key, value := range attributes {
		key = strings.TrimSpace(s.sanitizer.Sanitize(key))
		value = strings.TrimSpace(s.sanitizer.Sanitize(value))
		if key == "" || len(key) > maxAttributeKeyLen || len(value) > maxAttributeValueLen {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
		return ErrCartUnavailable
	}
	return ErrCartUnavailable
}

func validateItemInput(input CartItemInput, allowZero bool) error {
	if strings.TrimSpace(input.SKU) == "" {
		return fmt.Errorf("%w: sku is required", ErrCartInvalidInput)
	}
	if input.Quantity < 0 {
		return fmt.Errorf("%w: quantity for sku %q must not be negative", ErrCartInvalidInput, strings.TrimSpace(input.SKU))
	}
	if !allowZero && input.Quantity == 0 {
		return fmt.Errorf("%w: quantity for sku %q must be greater than zero", ErrCartInvalidInput, strings.TrimSpace(input.SKU))
	}
	if input.Quantity > maxCartItemQuantity {
		return fmt.Errorf("%w: quantity for sku %q exceeds the maximum of %d", ErrCartInvalidInput, strings.TrimSpace(input.SKU), maxCartItemQuantity)
	}
	return nil
}

// upsertItem applies last-write-wins semantics: an existing SKU line takes the
// submitted quantity and attributes wholesale.
func upsertItem(items []domain.CartItem, input CartItemInput, product domain.Product, attributes map[string]string, now time.Time) []domain.CartItem {
	sku := strings.TrimSpace(input.SKU)
	idx := indexOfSKU(items, sku)
	if idx >= 0 {
		items[idx].Quantity = input.Quantity
		items[idx].UnitPrice = product.Price
		items[idx].Attributes = attributes
		ts := now
		items[idx].UpdatedAt = &ts
		return items
	}
	return append(items, domain.CartItem{
		SKU:        sku,
		ProductID:  product.ID,
		Name:       product.Name,
		Quantity:   input.Quantity,
		UnitPrice:  product.Price,
		Attributes: attributes,
		AddedAt:    now,
	})
}

func indexOfSKU(items []domain.CartItem, sku string) int {
	target := strings.TrimSpace(sku)
	if target == "" {
		return -1
	}
	for i, item := range items {
		if strings.EqualFold(strings.TrimSpace(item.SKU), target) {
			return i
		}
	}
	return -1
}

func cloneCart(cart domain.Cart) domain.Cart {
	dup := cart
	dup.Items = cloneCartItems(cart.Items)
	if cart.CustomerID != nil {
		id := *cart.CustomerID
		dup.CustomerID = &id
	}
	if cart.Promotion != nil {
		promo := *cart.Promotion
		dup.Promotion = &promo
	}
	return dup
}

func cloneCartItems(items []domain.CartItem) []domain.CartItem {
	if len(items) == 0 {
		return []domain.CartItem{}
	}
	dup := make([]domain.CartItem, len(items))
	copy(dup, items)
	for i := range dup {
		dup[i].Attributes = cloneStringMap(dup[i].Attributes)
		if dup[i].UpdatedAt != nil {
			ts := dup[i].UpdatedAt.UTC()
			dup[i].UpdatedAt = &ts
		}
	}
	return dup
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
