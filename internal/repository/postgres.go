package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"bidding-live/internal/biddingerrors"
	model "bidding-live/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded goose migrations to the database at connStr
func Migrate(ctx context.Context, connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("open sql db for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// dbtx is satisfied by both the pool and a transaction
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepo implements AuctionDB on PostgreSQL. Writes that depend on the current auction
// row lock it with SELECT ... FOR UPDATE inside a transaction.
type PostgresRepo struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresRepo creates a repository on top of an existing pool.
// lockTimeout bounds how long a writer waits for an auction row lock (0 = no timeout).
func NewPostgresRepo(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresRepo {
	return &PostgresRepo{pool: pool, lockTimeout: lockTimeout}
}

const auctionColumns = `id, seller_id, seller_name, title, starting_price::text, current_price::text,
	bid_increment::text, status, end_time, winner_id, created_at, updated_at`

const bidColumns = `id, auction_id, buyer_id, buyer_name, amount::text, created_at`

func (r *PostgresRepo) beginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if r.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("set lock timeout: %w", err)
		}
	}
	return tx, nil
}

// CreateAuction inserts a new auction row
func (r *PostgresRepo) CreateAuction(ctx context.Context, a model.Auction) error {
	query := `
		INSERT INTO auctions (id, seller_id, seller_name, title, starting_price, current_price,
			bid_increment, status, end_time, winner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		a.AuctionID, a.SellerID, a.SellerName, a.Title,
		a.StartingPrice.String(), a.CurrentPrice.String(), a.BidIncrement.String(),
		string(a.Status), a.EndTime, a.WinnerID, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return biddingerrors.Storage("create auction "+a.AuctionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("create auction %s: %w", a.AuctionID, biddingerrors.ErrAuctionExists)
	}
	return nil
}

// GetAuction reads an auction without locking it
func (r *PostgresRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	return r.getAuction(ctx, r.pool, auctionID, false)
}

func (r *PostgresRepo) getAuction(ctx context.Context, db dbtx, auctionID string, forUpdate bool) (model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	a, err := scanAuction(db.QueryRow(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, biddingerrors.Storage("get auction "+auctionID, err)
	}
	return a, nil
}

// ExpiredAuctions lists active auctions past their deadline
func (r *PostgresRepo) ExpiredAuctions(ctx context.Context, now time.Time) ([]model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions
		WHERE status = 'active' AND end_time <= $1
		ORDER BY end_time`
	return r.queryAuctions(ctx, "list expired auctions", query, now)
}

// AuctionsBySeller lists the seller's auctions, newest first
func (r *PostgresRepo) AuctionsBySeller(ctx context.Context, sellerID string) ([]model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions
		WHERE seller_id = $1
		ORDER BY created_at DESC, id`
	return r.queryAuctions(ctx, "list auctions of seller "+sellerID, query, sellerID)
}

func (r *PostgresRepo) queryAuctions(ctx context.Context, op, query string, args ...any) ([]model.Auction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, biddingerrors.Storage(op, err)
	}
	defer rows.Close()

	var out []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, biddingerrors.Storage(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, biddingerrors.Storage(op, err)
	}
	return out, nil
}

// CommitBid inserts the bid and raises the price under the auction row lock
func (r *PostgresRepo) CommitBid(ctx context.Context, bid model.Bid, expectedPrice decimal.Decimal) error {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return biddingerrors.Storage("commit bid: begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := r.getAuction(ctx, tx, bid.AuctionID, true)
	if err != nil {
		return err
	}
	if auction.Status != model.StatusActive || !auction.CurrentPrice.Equal(expectedPrice) {
		return fmt.Errorf("commit bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrStaleAuction)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bids (id, auction_id, buyer_id, buyer_name, amount, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)`,
		bid.BidID, bid.AuctionID, bid.BuyerID, bid.BuyerName, bid.Amount.String(), bid.CreatedAt,
	)
	if err != nil {
		return biddingerrors.Storage("commit bid: insert bid", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE auctions SET current_price = $1::numeric, updated_at = $2 WHERE id = $3`,
		bid.Amount.String(), bid.CreatedAt, bid.AuctionID,
	)
	if err != nil {
		return biddingerrors.Storage("commit bid: update price", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return biddingerrors.Storage("commit bid: commit", err)
	}
	return nil
}

// GetBid returns a bid that belongs to the given auction
func (r *PostgresRepo) GetBid(ctx context.Context, auctionID, bidID string) (model.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1 AND auction_id = $2`
	b, err := scanBid(r.pool.QueryRow(ctx, query, bidID, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Bid{}, fmt.Errorf("get bid %s for auction %s: %w", bidID, auctionID, biddingerrors.ErrBidNotFound)
		}
		return model.Bid{}, biddingerrors.Storage("get bid "+bidID, err)
	}
	return b, nil
}

// HighestBid returns the top bid, the earliest one on equal amounts
func (r *PostgresRepo) HighestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = $1
		ORDER BY amount DESC, seq ASC LIMIT 1`
	b, err := scanBid(r.pool.QueryRow(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
		}
		return model.Bid{}, biddingerrors.Storage("get highest bid for auction "+auctionID, err)
	}
	return b, nil
}

// BidsFor returns the auction's bids, newest first
func (r *PostgresRepo) BidsFor(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if _, err := r.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return r.queryBids(ctx, `SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY seq DESC`, auctionID)
}

// BidsByBuyer returns the buyer's bids, newest first
func (r *PostgresRepo) BidsByBuyer(ctx context.Context, buyerID string) ([]model.Bid, error) {
	return r.queryBids(ctx, `SELECT `+bidColumns+` FROM bids WHERE buyer_id = $1 ORDER BY seq DESC`, buyerID)
}

func (r *PostgresRepo) queryBids(ctx context.Context, query, arg string) ([]model.Bid, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, biddingerrors.Storage("query bids", err)
	}
	defer rows.Close()

	bids := []model.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, biddingerrors.Storage("scan bid", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, biddingerrors.Storage("query bids", err)
	}
	return bids, nil
}

// UpdateStatus moves an auction between statuses if it is still in from
func (r *PostgresRepo) UpdateStatus(ctx context.Context, auctionID string, from, to model.AuctionStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE auctions SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		string(to), auctionID, string(from),
	)
	if err != nil {
		return biddingerrors.Storage("update status of auction "+auctionID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetAuction(ctx, auctionID); err != nil {
			return err
		}
		return fmt.Errorf("update status of auction %s: %w", auctionID, biddingerrors.ErrStaleAuction)
	}
	return nil
}

// CompleteSale closes the auction and stores the sale in one transaction
func (r *PostgresRepo) CompleteSale(ctx context.Context, sale model.Sale) error {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return biddingerrors.Storage("complete sale: begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := r.getAuction(ctx, tx, sale.AuctionID, true)
	if err != nil {
		return err
	}
	if auction.Status != model.StatusActive {
		return fmt.Errorf("complete sale for auction %s: %w", sale.AuctionID, biddingerrors.ErrStaleAuction)
	}

	_, err = tx.Exec(ctx, `
		UPDATE auctions SET status = 'completed', winner_id = $1, updated_at = $2 WHERE id = $3`,
		sale.BuyerID, sale.CreatedAt, sale.AuctionID,
	)
	if err != nil {
		return biddingerrors.Storage("complete sale: update auction", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sales (id, auction_id, bid_id, buyer_id, buyer_name, seller_id, seller_name,
			amount, platform_fee, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10)`,
		sale.SaleID, sale.AuctionID, sale.BidID, sale.BuyerID, sale.BuyerName, sale.SellerID,
		sale.SellerName, sale.Amount.String(), sale.PlatformFee.String(), sale.CreatedAt,
	)
	if err != nil {
		return biddingerrors.Storage("complete sale: insert sale", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return biddingerrors.Storage("complete sale: commit", err)
	}
	return nil
}

func scanAuction(row pgx.Row) (model.Auction, error) {
	var a model.Auction
	var starting, current, incr, status string
	err := row.Scan(
		&a.AuctionID, &a.SellerID, &a.SellerName, &a.Title,
		&starting, &current, &incr,
		&status, &a.EndTime, &a.WinnerID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return model.Auction{}, err
	}
	a.Status = model.AuctionStatus(status)
	if a.StartingPrice, err = decimal.NewFromString(starting); err != nil {
		return model.Auction{}, err
	}
	if a.CurrentPrice, err = decimal.NewFromString(current); err != nil {
		return model.Auction{}, err
	}
	if a.BidIncrement, err = decimal.NewFromString(incr); err != nil {
		return model.Auction{}, err
	}
	return a, nil
}

func scanBid(row pgx.Row) (model.Bid, error) {
	var b model.Bid
	var amount string
	if err := row.Scan(&b.BidID, &b.AuctionID, &b.BuyerID, &b.BuyerName, &amount, &b.CreatedAt); err != nil {
		return model.Bid{}, err
	}
	var err error
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return model.Bid{}, err
	}
	return b, nil
}
