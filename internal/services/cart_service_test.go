package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/shopcore/api/internal/domain"
)

func strPtr(v string) *string {
	return &v
}

func testProduct(sku string, price int64) domain.Product {
	return domain.Product{
		ID:        "prod-" + sku,
		SKU:       sku,
		StoreCode: "DEFAULT",
		Name:      "Product " + sku,
		Price:     price,
		Available: true,
	}
}

func TestCartServiceAddToCartCreatesCartWithGeneratedCode(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	var inserted domain.Cart

	repo := &stubCartRepository{
		insertFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			inserted = cart
			return cart, nil
		},
	}
	catalog := &stubCatalogRepository{
		findFunc: func(ctx context.Context, storeCode, sku string) (domain.Product, error) {
			if storeCode != "DEFAULT" {
				t.Fatalf("unexpected store code %q", storeCode)
			}
			return testProduct(sku, 1500), nil
		},
	}

	service := newTestCartService(t, repo, catalog, nil, now)

	cart, err := service.AddToCart(context.Background(), AddToCartCommand{
		StoreCode:  "default",
		CustomerID: strPtr("cust-1"),
		Item:       CartItemInput{SKU: "SKU-1", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cart.Code == "" {
		t.Fatalf("expected generated cart code")
	}
	if inserted.Code != cart.Code {
		t.Fatalf("expected inserted cart code %q, got %q", cart.Code, inserted.Code)
	}
	if cart.CustomerID == nil || *cart.CustomerID != "cust-1" {
		t.Fatalf("expected cart owned by cust-1")
	}
	if cart.Currency != "USD" {
		t.Fatalf("expected default currency USD, got %q", cart.Currency)
	}
	if len(cart.Items) != 1 || cart.Items[0].SKU != "SKU-1" || cart.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", cart.Items)
	}
	if cart.Items[0].UnitPrice != 1500 {
		t.Fatalf("expected price snapshot 1500, got %d", cart.Items[0].UnitPrice)
	}
	if cart.Totals.Total != 3000 {
		t.Fatalf("expected total 3000, got %d", cart.Totals.Total)
	}
}

func TestCartServiceAddToCartUnknownSKU(t *testing.T) {
	repo := &stubCartRepository{}
	catalog := &stubCatalogRepository{
		findFunc: func(ctx context.Context, storeCode, sku string) (domain.Product, error) {
			return domain.Product{}, &repositoryErrorStub{notFound: true}
		},
	}

	service := newTestCartService(t, repo, catalog, nil, time.Now())

	_, err := service.AddToCart(context.Background(), AddToCartCommand{
		StoreCode: "DEFAULT",
		Item:      CartItemInput{SKU: "GHOST", Quantity: 1},
	})
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}

func TestCartServiceModifyCartLastWriteWins(t *testing.T) {
	now := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	existing := domain.Cart{
		Code:      "CART-1",
		StoreCode: "DEFAULT",
		Currency:  "USD",
		Items: []domain.CartItem{
			{SKU: "SKU-1", Quantity: 5, UnitPrice: 1000, AddedAt: now.Add(-time.Hour)},
		},
		UpdatedAt: now.Add(-time.Hour),
	}

	var updated domain.Cart
	var expectedPrecondition *time.Time
	repo := &stubCartRepository{
		findByCodeFunc: func(ctx context.Context, storeCode, code string) (domain.Cart, error) {
			return existing, nil
		},
		updateFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			updated = cart
			expectedPrecondition = expected
			return cart, nil
		},
	}
	catalog := &stubCatalogRepository{
		findFunc: func(ctx context.Context, storeCode, sku string) (domain.Product, error) {
			return testProduct(sku, 1200), nil
		},
	}

	service := newTestCartService(t, repo, catalog, nil, now)

	cart, err := service.ModifyCart(context.Background(), ModifyCartCommand{
		CartCode:  "CART-1",
		StoreCode: "DEFAULT",
		Item:      CartItemInput{SKU: "SKU-1", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(updated.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(updated.Items))
	}
	if updated.Items[0].Quantity != 3 {
		t.Fatalf("expected quantity replaced with 3, got %d", updated.Items[0].Quantity)
	}
	if updated.Items[0].UnitPrice != 1200 {
		t.Fatalf("expected refreshed unit price 1200, got %d", updated.Items[0].UnitPrice)
	}
	if expectedPrecondition == nil || !expectedPrecondition.Equal(existing.UpdatedAt) {
		t.Fatalf("expected optimistic precondition on previous UpdatedAt")
	}
	if cart.Totals.Quantity != 3 {
		t.Fatalf("expected totals quantity 3, got %d", cart.Totals.Quantity)
	}
}

func TestCartServiceModifyCartQuantityZeroRemoves(t *testing.T) {
	now := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	existing := domain.Cart{
		Code:      "CART-1",
		StoreCode: "DEFAULT",
		Currency:  "USD",
		Items: []domain.CartItem{
			{SKU: "SKU-1", Quantity: 2, UnitPrice: 1000},
			{SKU: "SKU-2", Quantity: 1, UnitPrice: 500},
		},
		UpdatedAt: now.Add(-time.Minute),
	}

	var updated domain.Cart
	repo := &stubCartRepository{
		findByCodeFunc: func(ctx context.Context, storeCode, code string) (domain.Cart, error) {
			return existing, nil
		},
		updateFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			updated = cart
			return cart, nil
		},
	}

	service := newTestCartService(t, repo, &stubCatalogRepository{}, nil, now)

	cart, err := service.ModifyCart(context.Background(), ModifyCartCommand{
		CartCode: "CART-1",
		Item:     CartItemInput{SKU: "SKU-1", Quantity: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(updated.Items) != 1 || updated.Items[0].SKU != "SKU-2" {
		t.Fatalf("expected only SKU-2 to remain, got %+v", updated.Items)
	}
	if cart.Totals.Total != 500 {
		t.Fatalf("expected total 500, got %d", cart.Totals.Total)
	}
}

func TestCartServiceModifyCartRemoveAbsentSKUIsNoOp(t *testing.T) {
	existing := domain.Cart{
		Code:      "CART-1",
		StoreCode: "DEFAULT",
		Currency:  "USD",
		Items:     []domain.CartItem{{SKU: "SKU-2", Quantity: 1, UnitPrice: 500}},
		UpdatedAt: time.Now().UTC(),
	}

	updateCalled := false
	repo := &stubCartRepository{
		findByCodeFunc: func(ctx context.Context, storeCode, code string) (domain.Cart, error) {
			return existing, nil
		},
		updateFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			updateCalled = true
			return cart, nil
		},
	}

	service := newTestCartService(t, repo, &stubCatalogRepository{}, nil, time.Now())

	cart, err := service.ModifyCart(context.Background(), ModifyCartCommand{
		CartCode: "CART-1",
		Item:     CartItemInput{SKU: "GHOST", Quantity: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updateCalled {
		t.Fatalf("expected no write for absent SKU removal")
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected cart unchanged, got %+v", cart.Items)
	}
}

func TestCartServiceModifyCartMultiRejectsWholeBatch(t *testing.T) {
	existing := domain.Cart{
		Code:      "CART-1",
		StoreCode: "DEFAULT",
		Currency:  "USD",
		Items:     []domain.CartItem{{SKU: "SKU-1", Quantity: 1, UnitPrice: 1000}},
		UpdatedAt: time.Now().UTC(),
	}

	updateCalled := false
	repo := &stubCartRepository{
		findByCodeFunc: func(ctx context.Context, storeCode, code string) (domain.Cart, error) {
			return existing, nil
		},
		updateFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			updateCalled = true
			return cart, nil
		},
	}
	catalog := &stubCatalogRepository{
		findFunc: func(ctx context.Context, storeCode, sku string) (domain.Product, error) {
			if sku == "GHOST" {
				return domain.Product{}, &repositoryErrorStub{notFound: true}
			}
			return testProduct(sku, 800), nil
		},
	}

	service := newTestCartService(t, repo, catalog, nil, time.Now())

	_, err := service.ModifyCartMulti(context.Background(), ModifyCartMultiCommand{
		CartCode: "CART-1",
		Items: []CartItemInput{
			{SKU: "SKU-2", Quantity: 2},
			{SKU: "GHOST", Quantity: 1},
			{SKU: "SKU-3", Quantity: -4},
		},
	})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
	if !strings.Contains(err.Error(), "GHOST") || !strings.Contains(err.Error(), "SKU-3") {
		t.Fatalf("expected aggregated error naming every failure, got %v", err)
	}
	if updateCalled {
		t.Fatalf("expected no write when any line is invalid")
	}
}

func TestCartServiceModifyCartMultiAppliesBatchInOneWrite(t *testing.T) {
	now := time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC)
	existing := domain.Cart{
		Code:      "CART-1",
		StoreCode: "DEFAULT",
		Currency:  "USD",
		Items: []domain.CartItem{
			{SKU: "SKU-1", Quantity: 1, UnitPrice: 1000},
			{SKU: "SKU-2", Quantity: 2, UnitPrice: 500},
		},
		UpdatedAt: now.Add(-time.Minute),
	}

	updateCount := 0
	var updated domain.Cart
	repo := &stubCartRepository{
		findByCodeFunc: func(ctx context.Context, storeCode, code string) (domain.Cart, error) {
			return existing, nil
		},
		updateFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			updateCount++
			updated = cart
			return cart, nil
		},
	}
	catalog := &stubCatalogRepository{
		findFunc: func(ctx context.Context, storeCode, sku string) (domain.Product, error) {
			return testProduct(sku, 700), nil
		},
	}

	service := newTestCartService(t, repo, catalog, nil, now)

	_, err := service.ModifyCartMulti(context.Background(), ModifyCartMultiCommand{
		CartCode: "CART-1",
		Items: []CartItemInput{
			{SKU: "SKU-1", Quantity: 4},
			{SKU: "SKU-2", Quantity: 0},
			{SKU: "SKU-3", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updateCount != 1 {
		t.Fatalf("expected a single write, got %d", updateCount)
	}
	if len(updated.Items) != 2 {
		t.Fatalf("expected 2 items after batch, got %+v", updated.Items)
	}
	for _, item := range updated.Items {
		switch item.SKU {
		case "SKU-1":
			if item.Quantity != 4 {
				t.Fatalf("expected SKU-1 quantity 4, got %d", item.Quantity)
			}
		case "SKU-3":
			if item.Quantity != 1 {
				t.Fatalf("expected SKU-3 quantity 1, got %d", item.Quantity)
			}
		default:
			t.Fatalf("unexpected SKU %q in batch result", item.SKU)
		}
	}
}

func TestCartServiceApplyPromotionIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	existing := domain.Cart{
		Code:      "CART-1",
		StoreCode: "DEFAULT",
		Currency:  "USD",
		Items:     []domain.CartItem{{SKU: "SKU-1", Quantity: 2, UnitPrice: 1000}},
		Promotion: &domain.CartPromotion{Code: "SAVE10", DiscountAmount: 200, Applied: true, AppliedAt: now.Add(-time.Hour)},
		UpdatedAt: now.Add(-time.Hour),
	}

	updateCalled := false
	repo := &stubCartRepository{
		findByCodeFunc: func(ctx context.Context, storeCode, code string) (domain.Cart, error) {
			return existing, nil
		},
		updateFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			updateCalled = true
			return cart, nil
		},
	}
	validator := &stubPromotionValidator{
		validateFunc: func(ctx context.Context, cmd ValidatePromotionCommand) (domain.PromotionValidationResult, error) {
			t.Fatalf("validator must not run for an already applied code")
			return domain.PromotionValidationResult{}, nil
		},
	}

	service := newTestCartService(t, repo, &stubCatalogRepository{}, validator, now)

	cart, err := service.ApplyPromotion(context.Background(), ApplyPromotionCommand{
		CartCode:  "CART-1",
		PromoCode: "save10",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updateCalled {
		t.Fatalf("expected no write when re-applying the same code")
	}
	if cart.Promotion == nil || cart.Promotion.Code != "SAVE10" {
		t.Fatalf("expected promotion retained, got %+v", cart.Promotion)
	}
}

func TestCartServiceApplyPromotionRejectionLeavesCartUntouched(t *testing.T) {
	existing := domain.Cart{
		Code:      "CART-1",
		StoreCode: "DEFAULT",
		Currency:  "USD",
		Items:     []domain.CartItem{{SKU: "SKU-1", Quantity: 1, UnitPrice: 1000}},
		UpdatedAt: time.Now().UTC(),
	}

	updateCalled := false
	repo := &stubCartRepository{
		findByCodeFunc: func(ctx context.Context, storeCode, code string) (domain.Cart, error) {
			return existing, nil
		},
		updateFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			updateCalled = true
			return cart, nil
		},
	}
	validator := &stubPromotionValidator{
		validateFunc: func(ctx context.Context, cmd ValidatePromotionCommand) (domain.PromotionValidationResult, error) {
			return domain.PromotionValidationResult{Code: cmd.Code, Eligible: false, Reason: "promotion has expired"}, nil
		},
	}

	service := newTestCartService(t, repo, &stubCatalogRepository{}, validator, time.Now())

	_, err := service.ApplyPromotion(context.Background(), ApplyPromotionCommand{
		CartCode:  "CART-1",
		PromoCode: "EXPIRED",
	})
	if !errors.Is(err, ErrPromotionRejected) {
		t.Fatalf("expected ErrPromotionRejected, got %v", err)
	}
	if errors.Is(err, ErrCartNotFound) {
		t.Fatalf("rejection must not look like a missing cart")
	}
	if updateCalled {
		t.Fatalf("expected no write after rejection")
	}
}

func TestCartServiceApplyPromotionAppliesDiscount(t *testing.T) {
	now := time.Date(2025, 3, 13, 15, 0, 0, 0, time.UTC)
	existing := domain.Cart{
		Code:      "CART-1",
		StoreCode: "DEFAULT",
		Currency:  "USD",
		Items:     []domain.CartItem{{SKU: "SKU-1", Quantity: 2, UnitPrice: 1000}},
		UpdatedAt: now.Add(-time.Minute),
	}

	var updated domain.Cart
	repo := &stubCartRepository{
		findByCodeFunc: func(ctx context.Context, storeCode, code string) (domain.Cart, error) {
			return existing, nil
		},
		updateFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			updated = cart
			return cart, nil
		},
	}
	validator := &stubPromotionValidator{
		validateFunc: func(ctx context.Context, cmd ValidatePromotionCommand) (domain.PromotionValidationResult, error) {
			if cmd.Subtotal != 2000 {
				t.Fatalf("expected subtotal 2000, got %d", cmd.Subtotal)
			}
			return domain.PromotionValidationResult{Code: cmd.Code, Eligible: true, DiscountAmount: 300}, nil
		},
	}

	service := newTestCartService(t, repo, &stubCatalogRepository{}, validator, now)

	cart, err := service.ApplyPromotion(context.Background(), ApplyPromotionCommand{
		CartCode:  "CART-1",
		PromoCode: " save15 ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.Promotion == nil || updated.Promotion.Code != "SAVE15" || !updated.Promotion.Applied {
		t.Fatalf("expected applied promotion persisted, got %+v", updated.Promotion)
	}
	if cart.Totals.Discount != 300 {
		t.Fatalf("expected discount 300, got %d", cart.Totals.Discount)
	}
	if cart.Totals.Total != 1700 {
		t.Fatalf("expected total 1700, got %d", cart.Totals.Total)
	}
}

func TestCartServiceOwnershipMismatchMaskedAsNotFound(t *testing.T) {
	existing := domain.Cart{
		Code:       "CART-1",
		StoreCode:  "DEFAULT",
		Currency:   "USD",
		CustomerID: strPtr("cust-owner"),
		Items:      []domain.CartItem{{SKU: "SKU-1", Quantity: 1, UnitPrice: 1000}},
		UpdatedAt:  time.Now().UTC(),
	}

	repo := &stubCartRepository{
		findByCodeFunc: func(ctx context.Context, storeCode, code string) (domain.Cart, error) {
			return existing, nil
		},
	}
	catalog := &stubCatalogRepository{
		findFunc: func(ctx context.Context, storeCode, sku string) (domain.Product, error) {
			return testProduct(sku, 1000), nil
		},
	}

	service := newTestCartService(t, repo, catalog, nil, time.Now())

	_, err := service.ModifyCart(context.Background(), ModifyCartCommand{
		CartCode:   "CART-1",
		CustomerID: strPtr("cust-other"),
		Item:       CartItemInput{SKU: "SKU-1", Quantity: 2},
	})
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ownership mismatch masked as not found, got %v", err)
	}
}

func TestCartServiceRemoveItemAbsentSKUSucceedsWithoutWrite(t *testing.T) {
	existing := domain.Cart{
		Code:      "CART-1",
		StoreCode: "DEFAULT",
		Currency:  "USD",
		Items:     []domain.CartItem{{SKU: "SKU-1", Quantity: 1, UnitPrice: 1000}},
		UpdatedAt: time.Now().UTC(),
	}

	updateCalled := false
	repo := &stubCartRepository{
		findByCodeFunc: func(ctx context.Context, storeCode, code string) (domain.Cart, error) {
			return existing, nil
		},
		updateFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			updateCalled = true
			return cart, nil
		},
	}

	service := newTestCartService(t, repo, &stubCatalogRepository{}, nil, time.Now())

	cart, err := service.RemoveItem(context.Background(), RemoveCartItemCommand{
		CartCode: "CART-1",
		SKU:      "GHOST",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updateCalled {
		t.Fatalf("expected no write for absent SKU")
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected cart unchanged")
	}
}

func TestCartServiceUpdateConflictSurfacesAsConflict(t *testing.T) {
	existing := domain.Cart{
		Code:      "CART-1",
		StoreCode: "DEFAULT",
		Currency:  "USD",
		Items:     []domain.CartItem{{SKU: "SKU-1", Quantity: 1, UnitPrice: 1000}},
		UpdatedAt: time.Now().UTC(),
	}

	repo := &stubCartRepository{
		findByCodeFunc: func(ctx context.Context, storeCode, code string) (domain.Cart, error) {
			return existing, nil
		},
		updateFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			return domain.Cart{}, &repositoryErrorStub{conflict: true}
		},
	}

	service := newTestCartService(t, repo, &stubCatalogRepository{}, nil, time.Now())

	_, err := service.RemoveItem(context.Background(), RemoveCartItemCommand{
		CartCode: "CART-1",
		SKU:      "SKU-1",
	})
	if !errors.Is(err, ErrCartConflict) {
		t.Fatalf("expected ErrCartConflict, got %v", err)
	}
}

func TestCartServiceGetForCustomerMasksForeignCart(t *testing.T) {
	existing := domain.Cart{
		Code:       "CART-1",
		StoreCode:  "DEFAULT",
		Currency:   "USD",
		CustomerID: strPtr("cust-owner"),
		UpdatedAt:  time.Now().UTC(),
	}

	repo := &stubCartRepository{
		findByCodeFunc: func(ctx context.Context, storeCode, code string) (domain.Cart, error) {
			return existing, nil
		},
	}

	service := newTestCartService(t, repo, &stubCatalogRepository{}, nil, time.Now())

	_, err := service.GetForCustomer(context.Background(), CustomerCartQuery{
		StoreCode:  "DEFAULT",
		CustomerID: "cust-other",
		CartCode:   "CART-1",
	})
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}

func TestCartServiceGetForCustomerFallsBackToLatestCart(t *testing.T) {
	repo := &stubCartRepository{
		findByCustomerFunc: func(ctx context.Context, storeCode, customerID string) (domain.Cart, error) {
			if customerID != "cust-1" {
				t.Fatalf("unexpected customer id %q", customerID)
			}
			return domain.Cart{Code: "CART-9", StoreCode: storeCode, Currency: "USD", CustomerID: strPtr(customerID)}, nil
		},
	}

	service := newTestCartService(t, repo, &stubCatalogRepository{}, nil, time.Now())

	cart, err := service.GetForCustomer(context.Background(), CustomerCartQuery{
		StoreCode:  "DEFAULT",
		CustomerID: "cust-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.Code != "CART-9" {
		t.Fatalf("expected CART-9, got %q", cart.Code)
	}
}

func TestCartServiceSanitizesAttributeMarkup(t *testing.T) {
	var inserted domain.Cart
	repo := &stubCartRepository{
		insertFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			inserted = cart
			return cart, nil
		},
	}
	catalog := &stubCatalogRepository{
		findFunc: func(ctx context.Context, storeCode, sku string) (domain.Product, error) {
			return testProduct(sku, 100), nil
		},
	}

	service := newTestCartService(t, repo, catalog, nil, time.Now())

	_, err := service.AddToCart(context.Background(), AddToCartCommand{
		StoreCode: "DEFAULT",
		Item: CartItemInput{
			SKU:      "SKU-1",
			Quantity: 1,
			Attributes: map[string]string{
				"engraving": "<script>alert(1)</script>hello",
				"size":      "M",
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	attrs := inserted.Items[0].Attributes
	if attrs["engraving"] != "hello" {
		t.Fatalf("expected markup stripped, got %q", attrs["engraving"])
	}
	if attrs["size"] != "M" {
		t.Fatalf("expected plain value retained, got %q", attrs["size"])
	}
}

func newTestCartService(t *testing.T, repo *stubCartRepository, catalog *stubCatalogRepository, validator PromotionValidator, now time.Time) CartService {
	t.Helper()
	service, err := NewCartService(CartServiceDeps{
		Repository:      repo,
		Catalog:         catalog,
		Promotions:      validator,
		Clock:           func() time.Time { return now },
		DefaultCurrency: "USD",
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}
	return service
}

type stubCartRepository struct {
	insertFunc         func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	updateFunc         func(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error)
	findByCodeFunc     func(ctx context.Context, storeCode, code string) (domain.Cart, error)
	findByCustomerFunc func(ctx context.Context, storeCode, customerID string) (domain.Cart, error)
}

func (s *stubCartRepository) Insert(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, cart)
	}
	return cart, nil
}

func (s *stubCartRepository) Update(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cart, expectedUpdate)
	}
	return cart, nil
}

func (s *stubCartRepository) FindByCode(ctx context.Context, storeCode, code string) (domain.Cart, error) {
	if s.findByCodeFunc != nil {
		return s.findByCodeFunc(ctx, storeCode, code)
	}
	return domain.Cart{}, &repositoryErrorStub{notFound: true}
}

func (s *stubCartRepository) FindByCustomer(ctx context.Context, storeCode, customerID string) (domain.Cart, error) {
	if s.findByCustomerFunc != nil {
		return s.findByCustomerFunc(ctx, storeCode, customerID)
	}
	return domain.Cart{}, &repositoryErrorStub{notFound: true}
}

type stubCatalogRepository struct {
	findFunc func(ctx context.Context, storeCode, sku string) (domain.Product, error)
}

func (s *stubCatalogRepository) FindBySKU(ctx context.Context, storeCode, sku string) (domain.Product, error) {
	if s.findFunc != nil {
		return s.findFunc(ctx, storeCode, sku)
	}
	return domain.Product{}, &repositoryErrorStub{notFound: true}
}

type stubPromotionValidator struct {
	validateFunc func(ctx context.Context, cmd ValidatePromotionCommand) (domain.PromotionValidationResult, error)
}

func (s *stubPromotionValidator) Validate(ctx context.Context, cmd ValidatePromotionCommand) (domain.PromotionValidationResult, error) {
	if s.validateFunc != nil {
		return s.validateFunc(ctx, cmd)
	}
	return domain.PromotionValidationResult{}, errors.New("not implemented")
}

type repositoryErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repositoryErrorStub) Error() string {
	return "repository error"
}

func (e *repositoryErrorStub) IsNotFound() bool {
	return e.notFound
}

func (e *repositoryErrorStub) IsConflict() bool {
	return e.conflict
}

func (e *repositoryErrorStub) IsUnavailable() bool {
	return e.unavailable
}
