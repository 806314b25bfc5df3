package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"society-ticketing/internal/config"
	"society-ticketing/internal/database"
	"society-ticketing/internal/handlers"
	"society-ticketing/internal/logging"
	"society-ticketing/internal/middleware"
	"society-ticketing/internal/repositories"
	"society-ticketing/internal/repositories/memory"
	"society-ticketing/internal/seed"
	"society-ticketing/internal/services"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// stores groups the persistence interfaces the services need, so the
// Postgres repositories and the in-memory store are interchangeable.
type stores struct {
	events    services.EventStore
	societies services.SocietyStore
	students  services.StudentStore
	carts     services.CartStore
	tickets   services.TicketCounter
	settle    services.SettlementStore
	orders    services.OrderReader
	close     func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logging.Init(cfg.Log.Level, cfg.Log.JSON)
	log := logrus.WithField("service", "society-ticketing")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("Server stopped with error")
	}
	log.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Entry) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		log.Info("Redis connection established")
	}

	var queue services.PayoutQueue
	if rdb != nil {
		queue = services.NewRedisPayoutQueue(rdb, cfg.Payout.QueueKey, cfg.Payout.DeadLetterKey)
	} else {
		log.Warn("REDIS_URL not set, payout retries are kept in memory")
		queue = services.NewMemoryPayoutQueue()
	}

	publisher, err := newPublisher(cfg, rdb, log)
	if err != nil {
		return err
	}
	defer publisher.Close()
	notifier := services.NewWatermillNotifier(publisher)

	var gateway services.PaymentGateway
	if cfg.Stripe.UseFake || cfg.Stripe.SecretKey == "" {
		if cfg.IsProduction() {
			return errors.New("STRIPE_SECRET_KEY is required in production")
		}
		log.Warn("Using the fake payment gateway, no money will move")
		gateway = services.NewFakeGateway(rand.New(rand.NewSource(time.Now().UnixNano())))
	} else {
		gateway = services.NewStripeGateway(cfg.Stripe.SecretKey)
	}

	clock := services.SystemClock{}
	ledger := services.NewInventoryLedger(st.tickets)
	discounts := services.NewDiscountResolver()
	distributor := services.NewPayoutDistributor(gateway, st.societies, queue, services.NewPayoutSplitter(), cfg.Payout.Currency, clock)
	worker := services.NewPayoutRetryWorker(queue, distributor, clock, cfg.Payout.MaxAttempts, cfg.Payout.RetryInterval, cfg.Payout.RetryBatch)

	engine := services.NewSettlementEngine(services.SettlementDeps{
		Carts:     st.carts,
		Students:  st.students,
		Store:     st.settle,
		Ledger:    ledger,
		Discounts: discounts,
		Splitter:  services.NewPayoutSplitter(),
		Payouts:   distributor,
		Gateway:   gateway,
		Notifier:  notifier,
		Clock:     clock,
		Random:    rand.New(rand.NewSource(time.Now().UnixNano())),
	})

	limiter := middleware.NewCheckoutRateLimiter(cfg.Server.CheckoutLimit, cfg.Server.CheckoutWindow)
	if cfg.Server.OperatorToken == "" {
		log.Warn("OPERATOR_TOKEN not set, payout endpoints will refuse every request")
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Cart:          handlers.NewCartHandler(services.NewCartService(st.carts, st.events, st.societies, st.students, ledger, discounts)),
		Checkout:      handlers.NewCheckoutHandler(engine, st.orders),
		Events:        handlers.NewEventHandler(st.events, ledger, services.NewEventService(st.events, st.carts, st.students, st.tickets, notifier, clock)),
		Payouts:       handlers.NewPayoutHandler(queue, worker, cfg.Payout.RetryBatch),
		RateLimiter:   limiter,
		CORS:          middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowedOrigins),
		OperatorToken: cfg.Server.OperatorToken,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "env": cfg.Server.Env}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return worker.Run(logging.ToContext(gctx, log.WithField("component", "payout_worker")))
	})
	g.Go(func() error {
		return services.NewMonitor(queue, 30*time.Second).Run(gctx)
	})
	g.Go(func() error {
		return limiter.Cleanup(gctx, cfg.Server.CheckoutWindow)
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*stores, error) {
	if !cfg.HasDatabase() {
		if cfg.IsProduction() {
			return nil, errors.New("DATABASE_URL is required in production")
		}
		log.Warn("No database configured, using the in-memory store")
		store := memory.NewStore()
		if cfg.Server.SeedDemo {
			if _, err := seed.Demo(ctx, store, time.Now()); err != nil {
				return nil, err
			}
		}
		return &stores{
			events: store, societies: store, students: store, carts: store,
			tickets: store, settle: store, orders: store,
			close: func() error { return nil },
		}, nil
	}

	db, err := database.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established")

	societies := repositories.NewSocietyRepository(db.DB)
	events := repositories.NewEventRepository(db.DB, societies)
	orders := repositories.NewOrderRepository(db.DB)
	return &stores{
		events:    events,
		societies: societies,
		students:  repositories.NewStudentRepository(db.DB),
		carts:     repositories.NewCartRepository(db.DB, events, societies),
		tickets:   repositories.NewTicketRepository(db.DB),
		settle:    orders,
		orders:    orders,
		close:     db.Close,
	}, nil
}

// newPublisher picks the notification transport. Redis streams survive a
// restart; the go channel is for development.
func newPublisher(cfg *config.Config, rdb *redis.Client, log *logrus.Entry) (message.Publisher, error) {
	wmLogger := logging.NewWatermill(log.WithField("component", "notifier"))

	if cfg.Notifications.Backend == "redis" {
		if rdb == nil {
			return nil, errors.New("NOTIFICATIONS_BACKEND=redis requires REDIS_URL")
		}
		pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: rdb}, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis stream publisher: %w", err)
		}
		return pub, nil
	}

	return gochannel.NewGoChannel(gochannel.Config{}, watermill.LoggerAdapter(wmLogger)), nil
}
