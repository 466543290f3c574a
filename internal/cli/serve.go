package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bidding-live/internal/auth"
	bidding "bidding-live/internal/biddingService"
	"bidding-live/internal/config"
	"bidding-live/internal/fanout"
	"bidding-live/internal/handoff"
	model "bidding-live/internal/models"
	"bidding-live/internal/repository"
	"bidding-live/internal/server"
	"bidding-live/internal/subscriptions"
	"bidding-live/internal/wsclient"
	"bidding-live/utils"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Seed bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		Long: `Start the HTTP and websocket server together with the expiry sweeper.

DATABASE_URL selects PostgreSQL (otherwise auctions live in memory), RABBITMQ_URL enables the
sale hand-off and REDIS_URL relays live events between instances.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.RootOptions)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, opts.Seed)
		},
	}

	cmd.Flags().BoolVar(&opts.Seed, "seed", false, "add demo auctions when running on the in-memory store")

	return cmd
}

// closers runs deferred shutdown steps in reverse order
type closers []func()

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func runServer(ctx context.Context, cfg config.Config, seed bool) error {
	var cleanup closers
	defer func() { cleanup.run() }()

	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return err
	}

	repo, err := openRepository(ctx, cfg, seed, &cleanup)
	if err != nil {
		return err
	}
	publisher, err := openHandoff(cfg, &cleanup)
	if err != nil {
		return err
	}

	dir := subscriptions.NewDirectory()
	local := fanout.New(dir)
	var notifier fanout.Notifier = local
	var relay *fanout.RedisRelay
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		cleanup = append(cleanup, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		utils.Info("Redis Connected", map[string]any{"channel": cfg.RelayChannel})
		relay = fanout.NewRedisRelay(rdb, cfg.RelayChannel, local)
		notifier = relay
	}

	service := bidding.NewBiddingService(repo, notifier, bidding.WithHandoff(publisher))
	router := server.SetupRouter(server.Deps{
		Service:   service,
		Directory: dir,
		Tokens:    signer,
		Stream: wsclient.Options{
			SendBuffer:   cfg.WSSendBuffer,
			PingInterval: cfg.WSPingInterval,
			WriteTimeout: cfg.WSWriteTimeout,
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.Info("Starting auction server", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		utils.Info("Shutting down server...", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return service.RunSweeper(gctx, cfg.SweepInterval)
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}

	return g.Wait()
}

func openRepository(ctx context.Context, cfg config.Config, seed bool, cleanup *closers) (repository.AuctionDB, error) {
	if cfg.DatabaseURL == "" {
		repo := repository.NewMemoryRepo()
		if seed {
			prepopulateAuctions(repo, time.Now().UTC())
		}
		utils.Warn("DATABASE_URL is not set, using the in-memory store", nil)
		return repo, nil
	}

	if err := repository.Migrate(ctx, cfg.DatabaseURL); err != nil {
		return nil, err
	}

	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	*cleanup = append(*cleanup, pool.Close)

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	utils.Info("Postgres Connected", nil)
	return repository.NewPostgresRepo(pool, cfg.DBLockTimeout), nil
}

func openHandoff(cfg config.Config, cleanup *closers) (handoff.Publisher, error) {
	if cfg.RabbitMQURL == "" {
		return handoff.LogPublisher{}, nil
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	*cleanup = append(*cleanup, func() { _ = conn.Close() })
	utils.Info("RabbitMQ Connected", map[string]any{"exchange": cfg.SaleExchange})

	publisher, err := handoff.NewRabbitMQPublisher(conn, cfg.SaleExchange)
	if err != nil {
		return nil, err
	}
	*cleanup = append(*cleanup, func() { _ = publisher.Close() })
	return publisher, nil
}

// prepopulateAuctions adds sample auctions to the in-memory repo
func prepopulateAuctions(repo *repository.MemoryRepo, now time.Time) {
	samples := []struct {
		id, title string
		price     int64
	}{
		{"auction1", "Vintage film camera", 100},
		{"auction2", "Mechanical keyboard", 200},
		{"auction3", "Signed first edition", 150},
	}

	for _, s := range samples {
		price := decimal.NewFromInt(s.price)
		repo.AddAuction(model.Auction{
			AuctionID:     s.id,
			SellerID:      "demo-seller",
			SellerName:    "Demo Seller",
			Title:         s.title,
			StartingPrice: price,
			CurrentPrice:  price,
			BidIncrement:  decimal.NewFromInt(10),
			Status:        model.StatusActive,
			EndTime:       now.Add(24 * time.Hour),
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
}
