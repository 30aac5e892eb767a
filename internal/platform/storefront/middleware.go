package storefront

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	domain "github.com/shopcore/api/internal/domain"
	"github.com/shopcore/api/internal/platform/httpx"
)

const (
	storeQueryParam    = "store"
	languageQueryParam = "lang"
)

// StoreLookup resolves a store definition by its code.
type StoreLookup interface {
	FindByCode(ctx context.Context, code string) (domain.Store, error)
}

// Resolver resolves the store and language for each request before the
// domain handlers run.
type Resolver struct {
	stores          StoreLookup
	defaultStore    string
	defaultLanguage string
}

// NewResolver constructs a storefront Resolver. The default store code is
// used whenever the request does not carry an explicit ?store= parameter.
func NewResolver(stores StoreLookup, defaultStore, defaultLanguage string) (*Resolver, error) {
	if stores == nil {
		return nil, errors.New("storefront resolver requires store lookup")
	}
	defaultStore = strings.ToUpper(strings.TrimSpace(defaultStore))
	if defaultStore == "" {
		return nil, errors.New("storefront resolver requires default store code")
	}
	defaultLanguage = strings.TrimSpace(defaultLanguage)
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	return &Resolver{
		stores:          stores,
		defaultStore:    defaultStore,
		defaultLanguage: defaultLanguage,
	}, nil
}

// Middleware resolves ?store= and ?lang= into context values. Unknown stores
// yield 404 and malformed language tags yield 400 before any handler runs.
func (r *Resolver) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()

			storeCode := strings.ToUpper(strings.TrimSpace(req.URL.Query().Get(storeQueryParam)))
			if storeCode == "" {
				storeCode = r.defaultStore
			}

			store, err := r.stores.FindByCode(ctx, storeCode)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("store_not_found", "store does not exist", http.StatusNotFound))
				return
			}

			langTag := strings.TrimSpace(req.URL.Query().Get(languageQueryParam))
			if langTag == "" {
				langTag = store.DefaultLanguage
			}
			if langTag == "" {
				langTag = r.defaultLanguage
			}

			tag, err := language.Parse(langTag)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_language", "language tag is not valid", http.StatusBadRequest))
				return
			}

			ctx = WithStore(ctx, store)
			ctx = WithLanguage(ctx, domain.Language{Tag: tag.String()})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}
