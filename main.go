package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"utility-billing/internal/audit"
	"utility-billing/internal/auth"
	billingapp "utility-billing/internal/billing/application"
	"utility-billing/internal/billing/infrastructure/lock"
	billingrepo "utility-billing/internal/billing/infrastructure/postgres"
	billinghttp "utility-billing/internal/billing/interfaces"
	circulationapp "utility-billing/internal/circulation/application"
	circulation "utility-billing/internal/circulation/domain"
	circulationrepo "utility-billing/internal/circulation/infrastructure/postgres"
	circulationhttp "utility-billing/internal/circulation/interfaces"
	"utility-billing/internal/config"
	"utility-billing/internal/eventing"
	"utility-billing/internal/notify"
	"utility-billing/internal/observability/metrics"
	portfoliorepo "utility-billing/internal/portfolio/infrastructure/postgres"
	readingsapp "utility-billing/internal/readings/application"
	readingrepo "utility-billing/internal/readings/infrastructure/postgres"
	readinghttp "utility-billing/internal/readings/interfaces"
	"utility-billing/internal/readings/validation"
	tariffrepo "utility-billing/internal/tariffs/infrastructure/postgres"
	"utility-billing/internal/tariffs/pricing"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)
	bus := eventing.NewInMemoryBus(logger)
	processed := eventing.NewMemoryProcessedStore()

	resolver := pricing.NewResolver(pricing.WithLocation(cfg.Location()))
	directory := portfoliorepo.NewDirectory(db)
	readingStore := readingrepo.NewReadingStore(db)
	catalog := tariffrepo.NewCatalog(db, resolver)
	invoiceRepo := billingrepo.NewInvoiceRepository(db)

	season, err := cfg.Season()
	if err != nil {
		logger.Fatalf("season error: %v", err)
	}
	method, err := circulation.ParseMethod(cfg.Circulation.Method)
	if err != nil {
		logger.Fatalf("circulation method error: %v", err)
	}
	allocator, err := circulationapp.NewAllocator(
		directory,
		circulationrepo.NewHeatData(db),
		circulationrepo.NewAllocationStore(db),
		circulationrepo.NewBaselineStore(db),
		catalog,
		resolver,
		circulationapp.WithSeason(season),
		circulationapp.WithConstants(cfg.Constants()),
		circulationapp.WithDefaultMethod(method),
		circulationapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("allocator error: %v", err)
	}

	locker, err := buildLocker(cfg, logger)
	if err != nil {
		logger.Fatalf("invoice lock error: %v", err)
	}
	orchestrator, err := billingapp.NewOrchestrator(readingStore, catalog, invoiceRepo, directory,
		billingapp.WithCirculation(allocator),
		billingapp.WithLocker(locker),
		billingapp.WithPublisher(bus),
		billingapp.WithResolver(resolver),
		billingapp.WithMaxPeriodMonths(cfg.Billing.MaxPeriodMonths),
		billingapp.WithDefaultCurrency(cfg.Billing.Currency),
		billingapp.WithOrchestratorLogger(logger),
	)
	if err != nil {
		logger.Fatalf("orchestrator error: %v", err)
	}
	invoiceService, err := billingapp.NewInvoiceService(invoiceRepo,
		billingapp.WithInvoicePublisher(bus),
		billingapp.WithInvoiceLogger(logger),
	)
	if err != nil {
		logger.Fatalf("invoice service error: %v", err)
	}

	validatorCfg, err := cfg.ValidatorConfig()
	if err != nil {
		logger.Fatalf("validator config error: %v", err)
	}
	batch, err := validation.NewBatchValidator(validation.NewValidator(validatorCfg), readingStore,
		validation.WithHistorySource(readingStore),
		validation.WithRolloverRejection(cfg.Validation.RejectRollover),
		validation.WithConcurrency(cfg.Validation.Concurrency),
	)
	if err != nil {
		logger.Fatalf("batch validator error: %v", err)
	}
	validationService, err := readingsapp.NewValidationService(readingStore, directory, batch,
		readingsapp.WithValidationPublisher(bus),
		readingsapp.WithValidationLogger(logger),
	)
	if err != nil {
		logger.Fatalf("validation service error: %v", err)
	}
	correctionService, err := readingsapp.NewCorrectionService(readingStore, auditRepo, bus, logger)
	if err != nil {
		logger.Fatalf("correction service error: %v", err)
	}

	if cfg.Notify.WebhookURL != "" {
		opts := []notify.WebhookOption{notify.WithRetryWindow(cfg.Notify.RetryWindow)}
		if cfg.Notify.Template != "" {
			tpl, err := notify.NewTemplate(cfg.Notify.Template)
			if err != nil {
				logger.Fatalf("notify template error: %v", err)
			}
			opts = append(opts, notify.WithTemplate(tpl))
		}
		webhook, err := notify.NewWebhookNotifier(cfg.Notify.WebhookURL, opts...)
		if err != nil {
			logger.Fatalf("notify webhook error: %v", err)
		}
		eventing.Subscribe(bus, eventing.EventTypeOf[readingsapp.ReadingFlagged](), "notify.flagged",
			notify.FlaggedReadingHandler(webhook, cfg.Notify.ReviewBaseURL), processed)
	}
	eventing.Subscribe(bus, eventing.EventTypeOf[readingsapp.ReadingRejected](), "readings.log", func(ctx context.Context, event any) error {
		if evt, ok := event.(readingsapp.ReadingRejected); ok {
			logger.Printf("reading rejected: id=%s meter=%s violations=%v", evt.ReadingID, evt.MeterID, evt.Violations)
		}
		return nil
	}, processed)

	invoiceHandler, err := billinghttp.NewInvoiceHandler(orchestrator, invoiceService, auditRepo, logger)
	if err != nil {
		logger.Fatalf("invoice handler error: %v", err)
	}
	readingHandler, err := readinghttp.NewReadingHandler(validationService, correctionService, readingStore, logger)
	if err != nil {
		logger.Fatalf("reading handler error: %v", err)
	}
	allocationHandler, err := circulationhttp.NewAllocationHandler(allocator, auditRepo, logger)
	if err != nil {
		logger.Fatalf("allocation handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/invoices/", invoiceHandler)
	mux.Handle("/api/v1/readings", readingHandler)
	mux.Handle("/api/v1/readings/", readingHandler)
	mux.Handle("/api/v1/circulation/", allocationHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(eventMetaMiddleware(mux)), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

// buildLocker returns the Redis lock when configured, otherwise an in-process one.
func buildLocker(cfg config.Config, logger *log.Logger) (billingapp.Locker, error) {
	if cfg.Redis.Addr == "" {
		logger.Printf("invoice lock: in-process")
		return billingapp.NewKeyedLocker(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	locker, err := lock.NewRedisLocker(client, lock.WithTTL(cfg.Redis.LockTTL), lock.WithWait(cfg.Redis.LockWait))
	if err != nil {
		return nil, err
	}
	logger.Printf("invoice lock: redis addr=%s", cfg.Redis.Addr)
	return locker, nil
}

// eventMetaMiddleware tags events published while serving a request with the
// caller and the request id.
func eventMetaMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if subject := auth.SubjectFromContext(ctx); subject != "" {
			ctx = eventing.WithActor(ctx, subject)
		}
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = eventing.WithCorrelationID(ctx, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
