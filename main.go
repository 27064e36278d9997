package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	appcart "github.com/iclalusta/e-commerce-microservice/internal/application/cart"
	appcartsync "github.com/iclalusta/e-commerce-microservice/internal/application/cartsync"
	appnotification "github.com/iclalusta/e-commerce-microservice/internal/application/notification"
	apporder "github.com/iclalusta/e-commerce-microservice/internal/application/order"
	apppayment "github.com/iclalusta/e-commerce-microservice/internal/application/payment"
	appproduct "github.com/iclalusta/e-commerce-microservice/internal/application/product"
	appstock "github.com/iclalusta/e-commerce-microservice/internal/application/stock"
	"github.com/iclalusta/e-commerce-microservice/internal/config"
	domcart "github.com/iclalusta/e-commerce-microservice/internal/domain/cart"
	domnotification "github.com/iclalusta/e-commerce-microservice/internal/domain/notification"
	domorder "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	pay "github.com/iclalusta/e-commerce-microservice/internal/domain/payment"
	domproduct "github.com/iclalusta/e-commerce-microservice/internal/domain/product"
	cartsyncworker "github.com/iclalusta/e-commerce-microservice/internal/infrastructure/cartsync/worker"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/collaborator"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/events"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/id"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/kafka"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/memory"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/mongo"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/mysql"
	notificationworker "github.com/iclalusta/e-commerce-microservice/internal/infrastructure/notification/worker"
	infraobs "github.com/iclalusta/e-commerce-microservice/internal/infrastructure/observability"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/observability/oteltrace"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/observability/prometrics"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/observability/zaplogger"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/outbox"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/postgres"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/redis"
	stockworker "github.com/iclalusta/e-commerce-microservice/internal/infrastructure/stock/worker"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	httppresentation "github.com/iclalusta/e-commerce-microservice/internal/presentation/http"
)

// eventBus is what both the in-memory and the Kafka bus provide.
type eventBus interface {
	domoutbox.Publisher
	domoutbox.Subscriber
	Start(ctx context.Context)
	Stop(ctx context.Context)
}

type stores struct {
	orders   domorder.Repository
	carts    domcart.Repository
	products domproduct.Repository
	notices  domnotification.Repository
	ledger   appstock.Ledger
	versions appcartsync.VersionGate
	closers  []func(context.Context) error
}

func main() {
	loader, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := loader.Config()

	// Money travels as JSON numbers on the wire.
	decimal.MarshalJSONWithoutQuotes = true

	baseLogger := zaplogger.New(
		zaplogger.WithLevel(cfg.Log.Level),
		zaplogger.WithFile(cfg.Log.File),
		zaplogger.WithFields(observability.F("service", cfg.Service.Name)),
	)
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(zaplogger.Zap(baseLogger))

	metrics := prometrics.New("", "")
	tel := infraobs.New(
		infraobs.WithLogger(baseLogger),
		infraobs.WithTracer(oteltrace.New(cfg.Service.Name)),
		infraobs.WithRegistry(metrics),
	)
	systemLogger := baseLogger.With(observability.F("component", "main"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, tel)
	if err != nil {
		systemLogger.Error("store_open_failed", observability.Err(err))
		os.Exit(1)
	}
	defer st.close(systemLogger)

	if cfg.Catalog.Seed {
		seedCatalog(ctx, st.products, systemLogger)
	}

	bus := newEventBus(cfg, tel)

	payments := apppayment.NewAuthorizePaymentUseCase(cfg.Payment.SuccessRate, tel,
		apppayment.WithRemembered(cfg.Payment.Remembered))
	cartReader, authorizer := newCollaborators(cfg, st.carts, payments, tel)

	uc := httppresentation.UseCases{
		CreateOrder: apporder.NewCreateOrderUseCase(st.orders, cartReader, authorizer, bus, id.NewUUIDGenerator(), tel,
			apporder.WithPublishTimeout(cfg.Bus.PublishTimeout)),
		GetOrder:    apporder.NewGetOrderUseCase(st.orders, tel),
		ListOrders:  apporder.NewListOrdersUseCase(st.orders, tel),
		UpdateOrder: apporder.NewUpdateOrderUseCase(st.orders, tel),
		GetCart:     appcart.NewGetCartUseCase(st.carts, tel),
		AddCartItem: appcart.NewAddItemUseCase(st.carts, st.products, tel,
			appcart.WithItemAddedPublisher(bus)),
		UpdateCartItem:    appcart.NewUpdateItemUseCase(st.carts, st.products, tel),
		RemoveCartItem:    appcart.NewRemoveItemUseCase(st.carts, tel),
		GetProduct:        appproduct.NewGetProductUseCase(st.products, tel),
		ListProducts:      appproduct.NewListProductsUseCase(st.products, tel),
		CreateProduct:     appproduct.NewCreateProductUseCase(st.products, id.NewUUIDGenerator(), tel),
		UpdateProduct:     appproduct.NewUpdateProductUseCase(st.products, bus, tel),
		DeleteProduct:     appproduct.NewDeleteProductUseCase(st.products, bus, tel),
		IncreaseStock:     appproduct.NewIncreaseStockUseCase(st.products, bus, tel),
		AuthorizePayment:  payments,
		ListNotifications: appnotification.NewListNotificationsUseCase(st.notices, tel),
	}

	reconcile := appstock.NewReconcileStockUseCase(st.products, st.ledger, bus, tel,
		appstock.WithRecheck(cfg.Stock.Recheck),
		appstock.WithPublishTimeout(cfg.Bus.PublishTimeout),
	)
	clearCart := appcartsync.NewClearCartUseCase(st.carts, tel)
	syncProduct := appcartsync.NewSyncProductUseCase(st.carts, st.versions, tel,
		appcartsync.WithParallelism(cfg.Cart.SyncParallelism))

	// Subscriptions must exist before the bus starts consuming.
	stockworker.New(bus, reconcile, tel).Start()
	cartsyncworker.New(bus, clearCart, syncProduct, tel).Start()
	notificationworker.New(bus, appnotification.NewNotifyOrderCreatedUseCase(st.notices, tel), tel).Start()
	bus.Start(ctx)

	loader.Watch(func(next config.Config) {
		if err := baseLogger.SetLevel(next.Log.Level); err != nil {
			systemLogger.Warn("log_level_rejected", observability.F("level", next.Log.Level))
		}
		payments.SetSuccessRate(next.Payment.SuccessRate)
		systemLogger.Info("config_reloaded",
			observability.F("log_level", next.Log.Level),
			observability.F("payment_success_rate", next.Payment.SuccessRate),
		)
	}, func(err error) {
		systemLogger.Warn("config_reload_failed", observability.Err(err))
	})

	handler := httppresentation.NewHandler(uc, tel,
		httppresentation.WithMetricsHandler(metrics.Handler()),
	)
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		systemLogger.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			systemLogger.Error("http_server_shutdown_error", observability.Err(err))
		} else {
			systemLogger.Info("http_server_stopped")
		}
		bus.Stop(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		systemLogger.Error("service_exit", observability.Err(err))
		st.close(systemLogger)
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

func newEventBus(cfg config.Config, tel observability.Observability) eventBus {
	policy := events.Policy{
		MaxAttempts:    cfg.Bus.MaxAttempts,
		InitialBackoff: cfg.Bus.InitialBackoff,
		MaxBackoff:     cfg.Bus.MaxBackoff,
		HandlerTimeout: cfg.Bus.HandlerTimeout,
	}
	codec := events.NewCodec()

	if cfg.Bus.Driver == "kafka" {
		kcfg := kafka.Config{
			Brokers:          cfg.Bus.Brokers,
			GroupID:          cfg.Bus.GroupID,
			DeadLetterSuffix: cfg.Bus.DeadLetterSuffix,
			WriteTimeout:     cfg.Bus.PublishTimeout,
		}
		writer := kafka.NewWriter(kcfg, tel)
		dispatcher := events.NewDispatcher(codec, policy, kafka.NewDeadLetterWriter(writer, cfg.Bus.DeadLetterSuffix), tel)
		return kafka.NewBus(kcfg, dispatcher, tel, kafka.WithWriter(writer))
	}

	dispatcher := events.NewDispatcher(codec, policy, memory.NewDeadLetterSink(), tel)
	return outbox.NewBus(dispatcher, tel,
		outbox.WithQueueSize(cfg.Bus.QueueSize),
		outbox.WithConcurrency(cfg.Bus.Concurrency),
	)
}

// newCollaborators calls the cart and payment services over HTTP when a base
// URL is configured, otherwise in-process.
func newCollaborators(
	cfg config.Config,
	carts domcart.Repository,
	payments *apppayment.AuthorizePaymentUseCase,
	tel observability.Observability,
) (apporder.CartReader, pay.Authorizer) {
	var reader apporder.CartReader = collaborator.NewLocalCarts(carts)
	if c := cfg.Collaborators.Cart; c.BaseURL != "" {
		reader = collaborator.NewCartClient(clientConfig(c), nil, tel)
	}
	var authorizer pay.Authorizer = payments
	if c := cfg.Collaborators.Payment; c.BaseURL != "" {
		authorizer = collaborator.NewPaymentClient(clientConfig(c), nil, tel)
	}
	return reader, authorizer
}

func clientConfig(c config.Collaborator) collaborator.Config {
	return collaborator.Config{
		BaseURL:         c.BaseURL,
		Timeout:         c.Timeout,
		MaxRetries:      c.MaxRetries,
		InitialBackoff:  c.InitialBackoff,
		MaxBackoff:      c.MaxBackoff,
		BreakerFailures: c.BreakerFailures,
		BreakerOpenFor:  c.BreakerOpenFor,
	}
}

func openStores(ctx context.Context, cfg config.Config, tel observability.Observability) (*stores, error) {
	st := &stores{
		orders:   memory.NewOrderRepository(),
		carts:    memory.NewCartRepository(),
		products: memory.NewProductRepository(),
		notices:  memory.NewNotificationRepository(),
		ledger:   memory.NewLedger(cfg.Store.LedgerTTL, memory.WithLease(cfg.Store.LedgerLease)),
		versions: memory.NewVersionGate(),
	}
	fail := func(err error) (*stores, error) {
		st.close(tel.Logger())
		return nil, err
	}

	if cfg.Store.Order == "postgres" || cfg.Store.Notification == "postgres" {
		db, err := postgres.Open(cfg.Store.PostgresDSN)
		if err != nil {
			return fail(err)
		}
		st.closers = append(st.closers, func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		usePostgres(st, cfg.Store, db)
	}

	if cfg.Store.Cart == "mongo" {
		client, err := mongo.Connect(ctx, cfg.Store.MongoURI)
		if err != nil {
			return fail(err)
		}
		st.closers = append(st.closers, client.Disconnect)
		repo, err := mongo.NewCartRepository(ctx, client.Database(cfg.Store.MongoDatabase))
		if err != nil {
			return fail(err)
		}
		st.carts = repo
	}

	if cfg.Store.Product == "mysql" {
		db, err := mysql.Open(ctx, cfg.Store.MySQLDSN)
		if err != nil {
			return fail(err)
		}
		st.products = mysql.NewProductRepository(db)
		st.closers = append(st.closers, func(context.Context) error { return db.Close() })
	}

	if cfg.Store.Ledger == "redis" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Store.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fail(fmt.Errorf("redis: ping %s: %w", cfg.Store.RedisAddr, err))
		}
		st.ledger = redis.NewLedger(client, cfg.Store.LedgerTTL, cfg.Store.LedgerLease)
		st.versions = redis.NewVersionGate(client, "cartsync")
		st.closers = append(st.closers, func(context.Context) error { return client.Close() })
	}
	return st, nil
}

func usePostgres(st *stores, cfg config.Store, db *gorm.DB) {
	if cfg.Order == "postgres" {
		st.orders = postgres.NewOrderRepository(db)
	}
	if cfg.Notification == "postgres" {
		st.notices = postgres.NewNotificationRepository(db)
	}
}

func (s *stores) close(log observability.Logger) {
	closers := s.closers
	s.closers = nil
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](context.Background()); err != nil {
			log.Warn("store_close_failed", observability.Err(err))
		}
	}
}

// seedCatalog inserts the demo products that are not stored yet.
func seedCatalog(ctx context.Context, repo domproduct.Repository, log observability.Logger) {
	demo := []struct {
		id, name, price string
		stock           int
	}{
		{"p-100", "Mechanical keyboard", "89.90", 25},
		{"p-200", "Wireless mouse", "24.50", 60},
		{"p-300", "USB-C hub", "39.00", 15},
		{"p-400", "27in monitor", "249.99", 5},
	}
	for _, d := range demo {
		if _, err := repo.Get(ctx, d.id); !errors.Is(err, domproduct.ErrNotFound) {
			continue
		}
		p, err := domproduct.New(d.id, d.name, decimal.RequireFromString(d.price), d.stock)
		if err == nil {
			err = repo.Save(ctx, p)
		}
		if err != nil && !errors.Is(err, domproduct.ErrConflict) {
			log.Warn("catalog_seed_failed", observability.F("product_id", d.id), observability.Err(err))
		}
	}
}
