package storefront

import (
	"context"

	domain "github.com/shopcore/api/internal/domain"
)

type contextKey string

const (
	storeContextKey    contextKey = "github.com/shopcore/api/internal/platform/storefront/store"
	languageContextKey contextKey = "github.com/shopcore/api/internal/platform/storefront/language"
)

// WithStore stores the resolved store on the request context.
func WithStore(ctx context.Context, store domain.Store) context.Context {
	return context.WithValue(ctx, storeContextKey, store)
}

// StoreFromContext retrieves the store previously resolved by the middleware.
func StoreFromContext(ctx context.Context) (domain.Store, bool) {
	store, ok := ctx.Value(storeContextKey).(domain.Store)
	return store, ok
}

// WithLanguage stores the resolved language on the request context.
func WithLanguage(ctx context.Context, lang domain.Language) context.Context {
	return context.WithValue(ctx, languageContextKey, lang)
}

// LanguageFromContext retrieves the language previously resolved by the middleware.
func LanguageFromContext(ctx context.Context) (domain.Language, bool) {
	lang, ok := ctx.Value(languageContextKey).(domain.Language)
	return lang, ok
}
