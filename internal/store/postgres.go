package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres implements Store on a pgx pool. Counter updates are expressed as
// SQL increments so they stay atomic under concurrent requests.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const batchColumns = `id, code, week_number, year, status,
	submission_start, submission_end, review_start, review_end,
	auction_start, auction_end,
	total_submitted, total_approved, total_rejected, total_sold, total_revenue,
	created_at, updated_at`

func scanBatch(row pgx.Row) (*Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.Code, &b.WeekNumber, &b.Year, &b.Status,
		&b.SubmissionStart, &b.SubmissionEnd, &b.ReviewStart, &b.ReviewEnd,
		&b.AuctionStart, &b.AuctionEnd,
		&b.TotalSubmitted, &b.TotalApproved, &b.TotalRejected, &b.TotalSold, &b.TotalRevenue,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ---- Batches ----

func (p *Postgres) CreateBatch(ctx context.Context, b *Batch) error {
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	_, err := p.pool.Exec(ctx, `
		INSERT INTO batches (id, code, week_number, year, status,
			submission_start, submission_end, review_start, review_end,
			auction_start, auction_end,
			total_submitted, total_approved, total_rejected, total_sold, total_revenue,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		b.ID, b.Code, b.WeekNumber, b.Year, b.Status,
		b.SubmissionStart, b.SubmissionEnd, b.ReviewStart, b.ReviewEnd,
		b.AuctionStart, b.AuctionEnd,
		b.TotalSubmitted, b.TotalApproved, b.TotalRejected, b.TotalSold, b.TotalRevenue,
		b.CreatedAt, b.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) GetBatch(ctx context.Context, id string) (*Batch, error) {
	return scanBatch(p.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id = $1`, id))
}

func (p *Postgres) GetBatchByCode(ctx context.Context, code string) (*Batch, error) {
	return scanBatch(p.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE code = $1`, code))
}

func (p *Postgres) GetBatchByWeek(ctx context.Context, week, year int) (*Batch, error) {
	return scanBatch(p.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM batches
		 WHERE week_number = $1 AND year = $2
		 ORDER BY created_at DESC LIMIT 1`, week, year))
}

func (p *Postgres) ListBatches(ctx context.Context, limit, offset int) ([]Batch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateBatchStatus(ctx context.Context, id string, status BatchStatus) error {
	res, err := p.pool.Exec(ctx,
		`UPDATE batches SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AddBatchCounters(ctx context.Context, id string, d BatchCounterDelta) error {
	res, err := p.pool.Exec(ctx, `
		UPDATE batches SET
			total_submitted = total_submitted + $2,
			total_approved  = total_approved + $3,
			total_rejected  = total_rejected + $4,
			updated_at = NOW()
		WHERE id = $1`,
		id, d.Submitted, d.Approved, d.Rejected)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetBatchResults(ctx context.Context, id string, sold int, revenue decimal.Decimal) error {
	res, err := p.pool.Exec(ctx,
		`UPDATE batches SET total_sold = $2, total_revenue = $3, updated_at = NOW() WHERE id = $1`,
		id, sold, revenue)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- Items ----

const itemColumns = `id, batch_id, seller_id, reviewed_by, winner_id,
	title, description, category, image_urls,
	starting_price, reserve_price, current_bid, bid_increment,
	status, rejection_reason, admin_note, total_bids,
	submitted_at, reviewed_at, approved_at, auction_started_at, auction_ended_at,
	sold_at, withdrawn_at, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var (
		it                     Item
		reviewedBy, winnerID   *string
		rejectReason, note     *string
		reserve, current       *decimal.Decimal
	)
	err := row.Scan(&it.ID, &it.BatchID, &it.SellerID, &reviewedBy, &winnerID,
		&it.Title, &it.Description, &it.Category, &it.ImageURLs,
		&it.StartingPrice, &reserve, &current, &it.BidIncrement,
		&it.Status, &rejectReason, &note, &it.TotalBids,
		&it.SubmittedAt, &it.ReviewedAt, &it.ApprovedAt, &it.AuctionStarted, &it.AuctionEnded,
		&it.SoldAt, &it.WithdrawnAt, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if reviewedBy != nil {
		it.ReviewedBy = *reviewedBy
	}
	if winnerID != nil {
		it.WinnerID = *winnerID
	}
	if rejectReason != nil {
		it.RejectionReason = *rejectReason
	}
	if note != nil {
		it.AdminNote = *note
	}
	it.ReservePrice = reserve
	it.CurrentBid = current
	return &it, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (p *Postgres) CreateItem(ctx context.Context, it *Item) error {
	now := time.Now()
	it.CreatedAt = now
	it.UpdatedAt = now
	_, err := p.pool.Exec(ctx, `
		INSERT INTO items (id, batch_id, seller_id, reviewed_by, winner_id,
			title, description, category, image_urls,
			starting_price, reserve_price, current_bid, bid_increment,
			status, rejection_reason, admin_note, total_bids,
			submitted_at, reviewed_at, approved_at, auction_started_at, auction_ended_at,
			sold_at, withdrawn_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`,
		it.ID, it.BatchID, it.SellerID, nullStr(it.ReviewedBy), nullStr(it.WinnerID),
		it.Title, it.Description, it.Category, it.ImageURLs,
		it.StartingPrice, it.ReservePrice, it.CurrentBid, it.BidIncrement,
		it.Status, nullStr(it.RejectionReason), nullStr(it.AdminNote), it.TotalBids,
		it.SubmittedAt, it.ReviewedAt, it.ApprovedAt, it.AuctionStarted, it.AuctionEnded,
		it.SoldAt, it.WithdrawnAt, it.CreatedAt, it.UpdatedAt)
	return err
}

func (p *Postgres) GetItem(ctx context.Context, id string) (*Item, error) {
	return scanItem(p.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
}

func (p *Postgres) SaveItem(ctx context.Context, it *Item) error {
	it.UpdatedAt = time.Now()
	res, err := p.pool.Exec(ctx, `
		UPDATE items SET
			reviewed_by = $2, winner_id = $3,
			title = $4, description = $5, category = $6, image_urls = $7,
			starting_price = $8, reserve_price = $9, bid_increment = $10,
			status = $11, rejection_reason = $12, admin_note = $13,
			submitted_at = $14, reviewed_at = $15, approved_at = $16,
			auction_started_at = $17, auction_ended_at = $18,
			sold_at = $19, withdrawn_at = $20, updated_at = $21
		WHERE id = $1`,
		it.ID, nullStr(it.ReviewedBy), nullStr(it.WinnerID),
		it.Title, it.Description, it.Category, it.ImageURLs,
		it.StartingPrice, it.ReservePrice, it.BidIncrement,
		it.Status, nullStr(it.RejectionReason), nullStr(it.AdminNote),
		it.SubmittedAt, it.ReviewedAt, it.ApprovedAt,
		it.AuctionStarted, it.AuctionEnded,
		it.SoldAt, it.WithdrawnAt, it.UpdatedAt)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ItemsByBatchAndStatus(ctx context.Context, batchID string, statuses ...ItemStatus) ([]Item, error) {
	placeholders := make([]string, len(statuses))
	args := []any{batchID}
	for i, s := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, s)
	}
	q := `SELECT ` + itemColumns + ` FROM items WHERE batch_id = $1 AND status IN (` +
		strings.Join(placeholders, ",") + `) ORDER BY created_at DESC`
	return p.queryItems(ctx, q, args...)
}

func (p *Postgres) ItemsBySeller(ctx context.Context, sellerID string) ([]Item, error) {
	return p.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE seller_id = $1 ORDER BY created_at DESC`, sellerID)
}

func (p *Postgres) ItemsByWinner(ctx context.Context, winnerID string) ([]Item, error) {
	return p.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE winner_id = $1 AND status = 'SOLD' ORDER BY sold_at DESC`,
		winnerID)
}

func (p *Postgres) ItemsByStatus(ctx context.Context, status ItemStatus) ([]Item, error) {
	return p.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE status = $1 ORDER BY created_at DESC`, status)
}

func (p *Postgres) CountItemsByBatchAndStatus(ctx context.Context, batchID string, status ItemStatus) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM items WHERE batch_id = $1 AND status = $2`, batchID, status).Scan(&n)
	return n, err
}

func (p *Postgres) queryItems(ctx context.Context, q string, args ...any) ([]Item, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// ---- Bids ----

const bidColumns = `id, item_id, bidder_id, bidder_name, amount, status, placed_at`

func scanBid(row pgx.Row) (*Bid, error) {
	var b Bid
	err := row.Scan(&b.ID, &b.ItemID, &b.BidderID, &b.BidderName, &b.Amount, &b.Status, &b.PlacedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (p *Postgres) CreateBid(ctx context.Context, b *Bid) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO bids (id, item_id, bidder_id, bidder_name, amount, status, placed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.ID, b.ItemID, b.BidderID, b.BidderName, b.Amount, b.Status, b.PlacedAt)
	return err
}

// SupersedeBid runs the outbid mark, the insert and the item's denormalized
// counter update in one transaction, so a failure partway through cannot
// leave the item without a WINNING bid. SaveItem deliberately never touches
// current_bid or total_bids.
func (p *Postgres) SupersedeBid(ctx context.Context, prevBidID string, b *Bid) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if prevBidID != "" {
		res, err := tx.Exec(ctx,
			`UPDATE bids SET status = $2 WHERE id = $1`, prevBidID, BidOutbid)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return ErrNotFound
		}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO bids (id, item_id, bidder_id, bidder_name, amount, status, placed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.ID, b.ItemID, b.BidderID, b.BidderName, b.Amount, b.Status, b.PlacedAt)
	if err != nil {
		return err
	}
	res, err := tx.Exec(ctx, `
		UPDATE items SET current_bid = $2, total_bids = total_bids + 1, updated_at = NOW()
		WHERE id = $1`, b.ItemID, b.Amount)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (p *Postgres) HighestBid(ctx context.Context, itemID string) (*Bid, error) {
	return scanBid(p.pool.QueryRow(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE item_id = $1 ORDER BY amount DESC LIMIT 1`, itemID))
}

func (p *Postgres) UpdateBidStatus(ctx context.Context, bidID string, status BidStatus) error {
	res, err := p.pool.Exec(ctx,
		`UPDATE bids SET status = $2 WHERE id = $1`, bidID, status)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) MarkBidsLostExcept(ctx context.Context, itemID, wonBidID string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE bids SET status = 'LOST' WHERE item_id = $1 AND id <> $2`, itemID, wonBidID)
	return err
}

func (p *Postgres) BidsByItem(ctx context.Context, itemID string) ([]Bid, error) {
	return p.queryBids(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE item_id = $1 ORDER BY placed_at DESC`, itemID)
}

func (p *Postgres) BidsByBidder(ctx context.Context, bidderID string) ([]Bid, error) {
	return p.queryBids(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE bidder_id = $1 ORDER BY placed_at DESC`, bidderID)
}

func (p *Postgres) queryBids(ctx context.Context, q string, args ...any) ([]Bid, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ---- Transactions ----

const txColumns = `id, item_id, buyer_id, seller_id, winning_bid_id, amount, platform_fee, seller_payout, status, created_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.ItemID, &t.BuyerID, &t.SellerID, &t.WinningBidID,
		&t.Amount, &t.PlatformFee, &t.SellerPayout, &t.Status, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *Postgres) CreateTransaction(ctx context.Context, t *Transaction) error {
	t.CreatedAt = time.Now()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO transactions (id, item_id, buyer_id, seller_id, winning_bid_id,
			amount, platform_fee, seller_payout, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.ItemID, t.BuyerID, t.SellerID, t.WinningBidID,
		t.Amount, t.PlatformFee, t.SellerPayout, t.Status, t.CreatedAt)
	return err
}

func (p *Postgres) TransactionsByUser(ctx context.Context, userID string) ([]Transaction, error) {
	return p.queryTransactions(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC`,
		userID)
}

func (p *Postgres) ListTransactions(ctx context.Context, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return p.queryTransactions(ctx,
		`SELECT `+txColumns+` FROM transactions ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
}

func (p *Postgres) queryTransactions(ctx context.Context, q string, args ...any) ([]Transaction, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ---- Users ----

func (p *Postgres) CreateUser(ctx context.Context, u *User) error {
	u.CreatedAt = time.Now()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, role, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Name, u.Email, u.Role, u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*User, error) {
	return p.scanUser(p.pool.QueryRow(ctx,
		`SELECT id, name, email, role, password_hash, created_at FROM users WHERE id = $1`, id))
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return p.scanUser(p.pool.QueryRow(ctx,
		`SELECT id, name, email, role, password_hash, created_at FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

func (p *Postgres) SetUserRole(ctx context.Context, email, role string) error {
	ct, err := p.pool.Exec(ctx,
		`UPDATE users SET role = $2 WHERE LOWER(email) = LOWER($1)`, email, role)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ---- Watchlist ----

func (p *Postgres) AddWatch(ctx context.Context, w *WatchlistEntry) error {
	w.AddedAt = time.Now()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO watchlist (id, user_id, item_id, notify_on_bid, added_at)
		VALUES ($1,$2,$3,$4,$5)`,
		w.ID, w.UserID, w.ItemID, w.NotifyOnBid, w.AddedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) RemoveWatch(ctx context.Context, userID, itemID string) error {
	res, err := p.pool.Exec(ctx,
		`DELETE FROM watchlist WHERE user_id = $1 AND item_id = $2`, userID, itemID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetWatch(ctx context.Context, userID, itemID string) (*WatchlistEntry, error) {
	return p.scanWatch(p.pool.QueryRow(ctx,
		`SELECT id, user_id, item_id, notify_on_bid, added_at FROM watchlist
		 WHERE user_id = $1 AND item_id = $2`, userID, itemID))
}

func (p *Postgres) WatchesByUser(ctx context.Context, userID string) ([]WatchlistEntry, error) {
	return p.queryWatches(ctx,
		`SELECT id, user_id, item_id, notify_on_bid, added_at FROM watchlist
		 WHERE user_id = $1 ORDER BY added_at DESC`, userID)
}

func (p *Postgres) WatchersOfItem(ctx context.Context, itemID string) ([]WatchlistEntry, error) {
	return p.queryWatches(ctx,
		`SELECT id, user_id, item_id, notify_on_bid, added_at FROM watchlist
		 WHERE item_id = $1`, itemID)
}

func (p *Postgres) CountWatchesByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM watchlist WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (p *Postgres) UpdateWatchNotify(ctx context.Context, userID, itemID string, notifyOnBid bool) error {
	res, err := p.pool.Exec(ctx,
		`UPDATE watchlist SET notify_on_bid = $3 WHERE user_id = $1 AND item_id = $2`,
		userID, itemID, notifyOnBid)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) scanWatch(row pgx.Row) (*WatchlistEntry, error) {
	var w WatchlistEntry
	err := row.Scan(&w.ID, &w.UserID, &w.ItemID, &w.NotifyOnBid, &w.AddedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (p *Postgres) queryWatches(ctx context.Context, q string, args ...any) ([]WatchlistEntry, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WatchlistEntry
	for rows.Next() {
		w, err := p.scanWatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// ---- Dashboard ----

func (p *Postgres) Overview(ctx context.Context) (*OverviewCounts, error) {
	var o OverviewCounts
	_ = p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&o.Users)
	_ = p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`).Scan(&o.Items)
	_ = p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bids`).Scan(&o.Bids)
	_ = p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&o.Transactions)
	_ = p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM batches`).Scan(&o.Batches)
	return &o, nil
}
