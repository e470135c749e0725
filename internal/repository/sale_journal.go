package repository

import (
	"context"
	"database/sql"
	"sync"

	"github.com/iliyamo/token-sale/internal/model"
	"github.com/iliyamo/token-sale/internal/sale"
)

// SaleJournal persists every accepted sale mutation to MySQL. It
// implements sale.Journal: the engine calls it under its own lock
// before committing a change in memory, so each row corresponds to
// exactly one accepted operation and the table is an audit trail of
// the whole sale. Timestamps are stored in UTC by the DB defaults.
type SaleJournal struct {
	db *sql.DB

	mu      sync.Mutex
	epochID uint64 // current epoch row, lazily loaded after restarts
}

// NewSaleJournal returns a journal bound to the given database.
func NewSaleJournal(db *sql.DB) *SaleJournal { return &SaleJournal{db: db} }

// currentEpoch returns the epoch row purchases attach to. After a
// process restart the cached id is zero, so it falls back to the most
// recent sale_epochs row.
func (j *SaleJournal) currentEpoch(ctx context.Context) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.epochID != 0 {
		return j.epochID, nil
	}
	var id sql.NullInt64
	err := j.db.QueryRowContext(ctx, `SELECT MAX(id) FROM sale_epochs`).Scan(&id)
	if err != nil {
		return 0, err
	}
	if id.Valid {
		j.epochID = uint64(id.Int64)
	}
	return j.epochID, nil
}

// SaleStarted inserts a new epoch row and makes it current.
func (j *SaleJournal) SaleStarted(ctx context.Context, cfg sale.Config) error {
	const q = `INSERT INTO sale_epochs (price, available_tokens, min_purchase, max_purchase, ends_at)
	           VALUES (?,?,?,?,?)`
	res, err := j.db.ExecContext(ctx, q,
		cfg.Price, cfg.AvailableTokens, cfg.MinPurchase, cfg.MaxPurchase, cfg.End.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.epochID = uint64(id)
	j.mu.Unlock()
	return nil
}

// InvestorApproved records a whitelist insert. The engine only reports
// first-time approvals, but INSERT IGNORE keeps replays harmless.
func (j *SaleJournal) InvestorApproved(ctx context.Context, investor string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT IGNORE INTO sale_investors (address) VALUES (?)`, investor)
	return err
}

// PurchaseRecorded appends an accepted buy under the current epoch.
func (j *SaleJournal) PurchaseRecorded(ctx context.Context, index int, p sale.Purchase) error {
	epochID, err := j.currentEpoch(ctx)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO sale_purchases (epoch_id, idx, investor, quantity) VALUES (?,?,?,?)`,
		epochID, index, p.Investor, p.Quantity)
	return err
}

// PurchasesReleased stamps the settled index range [from, to).
func (j *SaleJournal) PurchasesReleased(ctx context.Context, from, to int) error {
	epochID, err := j.currentEpoch(ctx)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx,
		`UPDATE sale_purchases SET released_at = NOW()
		 WHERE epoch_id = ? AND idx >= ? AND idx < ? AND released_at IS NULL`,
		epochID, from, to)
	return err
}

// FundsWithdrawn records custody value leaving the sale.
func (j *SaleJournal) FundsWithdrawn(ctx context.Context, recipient string, amount uint64) error {
	epochID, err := j.currentEpoch(ctx)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO sale_withdrawals (epoch_id, recipient, amount) VALUES (?,?,?)`,
		epochID, recipient, amount)
	return err
}

// LatestEpoch returns the most recent epoch row. sql.ErrNoRows is
// returned before any sale has been started.
func (j *SaleJournal) LatestEpoch(ctx context.Context) (model.SaleEpoch, error) {
	const q = `SELECT id, price, available_tokens, min_purchase, max_purchase, ends_at, created_at
	           FROM sale_epochs ORDER BY id DESC LIMIT 1`
	var e model.SaleEpoch
	err := j.db.QueryRowContext(ctx, q).Scan(
		&e.ID, &e.Price, &e.AvailableTokens, &e.MinPurchase, &e.MaxPurchase, &e.EndsAt, &e.CreatedAt)
	return e, err
}

// PurchasesByEpoch returns an epoch's purchases in ledger order.
func (j *SaleJournal) PurchasesByEpoch(ctx context.Context, epochID uint64) ([]model.SalePurchase, error) {
	const q = `SELECT id, epoch_id, idx, investor, quantity, released_at, created_at
	           FROM sale_purchases WHERE epoch_id = ? ORDER BY idx`
	rows, err := j.db.QueryContext(ctx, q, epochID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.SalePurchase, 0)
	for rows.Next() {
		var p model.SalePurchase
		var releasedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.EpochID, &p.Idx, &p.Investor, &p.Quantity, &releasedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		if releasedAt.Valid {
			t := releasedAt.Time
			p.ReleasedAt = &t
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WithdrawalsByEpoch returns an epoch's withdrawals, oldest first.
func (j *SaleJournal) WithdrawalsByEpoch(ctx context.Context, epochID uint64) ([]model.SaleWithdrawal, error) {
	const q = `SELECT id, epoch_id, recipient, amount, created_at
	           FROM sale_withdrawals WHERE epoch_id = ? ORDER BY id`
	rows, err := j.db.QueryContext(ctx, q, epochID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.SaleWithdrawal, 0)
	for rows.Next() {
		var w model.SaleWithdrawal
		if err := rows.Scan(&w.ID, &w.EpochID, &w.Recipient, &w.Amount, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
