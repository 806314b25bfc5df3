package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"society-ticketing/internal/config"
	"society-ticketing/internal/database"
	"society-ticketing/internal/logging"
	"society-ticketing/internal/repositories"
	"society-ticketing/internal/services"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type options struct {
	max             int
	dryRun          bool
	recoverInFlight bool
}

// reconcile-payouts runs a single retry pass over the payout queue, for
// operators who do not want to wait for the server's worker.
func main() {
	var opts options
	flag.IntVar(&opts.max, "max", 100, "Maximum number of queued payouts to retry")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "List queued payouts without retrying them")
	flag.BoolVar(&opts.recoverInFlight, "recover", false, "Return in-flight payouts to the queue first (only while no server is running)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}
	logging.Init(cfg.Log.Level, cfg.Log.JSON)

	if err := run(context.Background(), cfg, opts); err != nil {
		logrus.WithError(err).Fatal("Payout reconciliation failed")
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	if cfg.Redis.URL == "" {
		return errors.New("REDIS_URL is required, the payout queue lives in redis")
	}
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	queue := services.NewRedisPayoutQueue(rdb, cfg.Payout.QueueKey, cfg.Payout.DeadLetterKey)

	if opts.recoverInFlight {
		n, err := queue.Recover(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d in-flight payout(s) returned to the queue\n", n)
	}

	if opts.dryRun {
		pending, err := queue.Peek(ctx, int64(opts.max))
		if err != nil {
			return err
		}
		for _, instr := range pending {
			fmt.Printf("%s\tseller=%d\t%d %s\tattempts=%d\t%s\n",
				instr.OrderNumber, instr.SellerID, instr.AmountMinor, instr.Currency, instr.Attempts, instr.LastError)
		}
		fmt.Printf("%d queued payout(s) shown\n", len(pending))
		return nil
	}

	if cfg.Stripe.SecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY is required to retry payouts")
	}

	db, err := database.NewConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	clock := services.SystemClock{}
	distributor := services.NewPayoutDistributor(
		services.NewStripeGateway(cfg.Stripe.SecretKey),
		repositories.NewSocietyRepository(db.DB),
		queue,
		services.NewPayoutSplitter(),
		cfg.Payout.Currency,
		clock,
	)
	worker := services.NewPayoutRetryWorker(queue, distributor, clock, cfg.Payout.MaxAttempts, cfg.Payout.RetryInterval, opts.max)

	result, err := worker.RunOnce(ctx, opts.max)
	if err != nil {
		return fmt.Errorf("retry pass failed: %w", err)
	}
	fmt.Printf("confirmed=%d requeued=%d dead_lettered=%d\n", result.Confirmed, result.Requeued, result.DeadLetter)
	return nil
}
