package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	domain "github.com/shopcore/api/internal/domain"
	"github.com/shopcore/api/internal/handlers"
	"github.com/shopcore/api/internal/payments"
	"github.com/shopcore/api/internal/platform/auth"
	"github.com/shopcore/api/internal/platform/config"
	pfirestore "github.com/shopcore/api/internal/platform/firestore"
	"github.com/shopcore/api/internal/platform/idempotency"
	"github.com/shopcore/api/internal/platform/observability"
	"github.com/shopcore/api/internal/platform/storefront"
	firestoreRepo "github.com/shopcore/api/internal/repositories/firestore"
	"github.com/shopcore/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load(ctx)
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	cartRepo, err := firestoreRepo.NewCartRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise cart repository", zap.Error(err))
	}
	catalogRepo, err := firestoreRepo.NewCatalogRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise catalog repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	promotionRepo, err := firestoreRepo.NewPromotionRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise promotion repository", zap.Error(err))
	}
	transactionRepo, err := firestoreRepo.NewTransactionRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise transaction repository", zap.Error(err))
	}
	storeRepo, err := firestoreRepo.NewStoreRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise store repository", zap.Error(err))
	}

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) == "" {
		logger.Fatal("stripe api key is required for payment processing")
	}
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: eventLogger(logger.Named("stripe")),
		Clock:  time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
	}
	paymentManager, err := payments.NewManager(map[string]payments.Provider{
		"stripe": stripeProvider,
	}, payments.WithDefaultProvider("stripe"))
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	var promotionValidator services.PromotionValidator
	if cfg.Features.EnablePromotions {
		promotionValidator, err = services.NewPromotionService(services.PromotionServiceDeps{
			Repository: promotionRepo,
			Clock:      time.Now,
			Logger:     eventLogger(logger.Named("promotions")),
		})
		if err != nil {
			logger.Fatal("failed to initialise promotion service", zap.Error(err))
		}
	} else {
		logger.Info("promotions disabled by feature flag")
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Repository:      cartRepo,
		Catalog:         catalogRepo,
		Promotions:      promotionValidator,
		Clock:           time.Now,
		DefaultCurrency: cfg.Storefront.DefaultCurrency,
		Logger:          eventLogger(logger.Named("cart")),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Carts:        cartRepo,
		Orders:       orderRepo,
		Transactions: transactionRepo,
		Gateway:      paymentManager,
		Clock:        time.Now,
		Logger:       eventLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}

	queryService, err := services.NewTransactionQueryService(services.TransactionQueryServiceDeps{
		Orders:           orderRepo,
		Transactions:     transactionRepo,
		Clock:            time.Now,
		CapturableWindow: cfg.Storefront.CapturableWindow,
		Logger:           eventLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise transaction query service", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	storeLookup := newFallbackStoreLookup(storeRepo, domain.Store{
		Code:            cfg.Storefront.DefaultStoreCode,
		DefaultCurrency: cfg.Storefront.DefaultCurrency,
		DefaultLanguage: cfg.Storefront.DefaultLanguage,
	})
	storeResolver, err := storefront.NewResolver(storeLookup, cfg.Storefront.DefaultStoreCode, cfg.Storefront.DefaultLanguage)
	if err != nil {
		logger.Fatal("failed to initialise storefront resolver", zap.Error(err))
	}

	cartHandlers := handlers.NewCartHandlers(cartService, paymentService,
		handlers.WithPaymentInitMiddleware(idempotencyMiddleware))
	customerHandlers := handlers.NewCustomerHandlers(authenticator, cartService, paymentService,
		handlers.WithCustomerPaymentInitMiddleware(idempotencyMiddleware))
	adminHandlers := handlers.NewAdminPaymentHandlers(authenticator, paymentService, queryService)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthChecker(newFirestoreReadinessChecker(firestoreClient, buildInfo)),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithStorefrontMiddlewares(storeResolver.Middleware()),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithAuthRoutes(customerHandlers.Routes),
		handlers.WithPrivateRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("shopcore api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func eventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

// fallbackStoreLookup serves the configured default store when the stores
// collection has no matching document. Deployments that never seed store
// documents still resolve their single default store.
type fallbackStoreLookup struct {
	repo     storefront.StoreLookup
	fallback storefront.StaticLookup
}

func newFallbackStoreLookup(repo storefront.StoreLookup, defaultStore domain.Store) *fallbackStoreLookup {
	return &fallbackStoreLookup{
		repo:     repo,
		fallback: storefront.NewStaticLookup(defaultStore),
	}
}

func (l *fallbackStoreLookup) FindByCode(ctx context.Context, code string) (domain.Store, error) {
	store, err := l.repo.FindByCode(ctx, code)
	if err == nil {
		return store, nil
	}
	if fallback, fbErr := l.fallback.FindByCode(ctx, code); fbErr == nil {
		return fallback, nil
	}
	return domain.Store{}, err
}

type firestoreReadinessChecker struct {
	client *firestore.Client
	build  handlers.BuildInfo
}

func newFirestoreReadinessChecker(client *firestore.Client, build handlers.BuildInfo) *firestoreReadinessChecker {
	return &firestoreReadinessChecker{client: client, build: build}
}

func (c *firestoreReadinessChecker) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	if c == nil || c.client == nil {
		return domain.SystemHealthReport{}, errors.New("health: firestore client not configured")
	}

	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()

	started := time.Now().UTC()
	iter := c.client.Collections(checkCtx)
	_, err := iter.Next()
	latency := time.Since(started)

	check := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Latency:   latency,
		CheckedAt: started,
	}
	status := domain.HealthStatusOK
	if err != nil && !errors.Is(err, iterator.Done) {
		check.Status = domain.HealthStatusError
		check.Error = err.Error()
		status = domain.HealthStatusError
	}

	report := domain.SystemHealthReport{
		Status:      status,
		Checks:      map[string]domain.SystemHealthCheck{"firestore": check},
		Version:     c.build.Version,
		Environment: c.build.Environment,
		GeneratedAt: started,
	}
	if !c.build.StartedAt.IsZero() {
		report.Uptime = started.Sub(c.build.StartedAt)
	}
	return report, nil
}
