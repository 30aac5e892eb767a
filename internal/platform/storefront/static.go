package storefront

import (
	"context"
	"errors"
	"strings"

	domain "github.com/shopcore/api/internal/domain"
)

// ErrStoreNotFound is returned by StaticLookup when no store matches the code.
var ErrStoreNotFound = errors.New("storefront: store not found")

// StaticLookup serves store definitions from a fixed in-memory set. Used in
// tests and in deployments that run a single hard-wired store.
type StaticLookup map[string]domain.Store

// NewStaticLookup indexes the provided stores by upper-cased code.
func NewStaticLookup(stores ...domain.Store) StaticLookup {
	out := make(StaticLookup, len(stores))
	for _, store := range stores {
		code := strings.ToUpper(strings.TrimSpace(store.Code))
		if code == "" {
			continue
		}
		store.Code = code
		out[code] = store
	}
	return out
}

// FindByCode implements StoreLookup.
func (l StaticLookup) FindByCode(_ context.Context, code string) (domain.Store, error) {
	store, ok := l[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return domain.Store{}, ErrStoreNotFound
	}
	return store, nil
}
