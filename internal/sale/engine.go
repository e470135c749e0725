package sale

import (
	"context"
	"sync"
	"time"
)

// TokenLedger is the slice of the token contract the engine consumes
// during settlement. The ledger itself (supply, balances, transfer
// semantics) lives outside the engine.
type TokenLedger interface {
	Transfer(from, to string, amount uint64) error
	BalanceOf(id string) uint64
	TotalSupply() uint64
}

// FundsVault receives native value withdrawn from custody.
type FundsVault interface {
	Credit(to string, amount uint64) error
}

// Config is the immutable configuration of one sale epoch, written by a
// successful Start and never mutated until the next epoch replaces it.
type Config struct {
	End             time.Time `json:"end"`
	Price           uint64    `json:"price"`
	AvailableTokens uint64    `json:"available_tokens"`
	MinPurchase     uint64    `json:"min_purchase"`
	MaxPurchase     uint64    `json:"max_purchase"`
}

// Purchase is one accepted buy. Records are appended in call order and
// never mutated or removed; the slice index is the record's identity.
type Purchase struct {
	Investor string `json:"investor"`
	Quantity uint64 `json:"quantity"`
}

// Lifecycle is the sale's derived state. It is never stored: it is
// recomputed from the configured end time and the injected clock on
// every call, so there is no flag to forget to flip.
type Lifecycle string

const (
	Unconfigured Lifecycle = "UNCONFIGURED"
	Active       Lifecycle = "ACTIVE"
	Expired      Lifecycle = "EXPIRED"
)

// Engine owns all mutable sale state: the epoch configuration, the
// remaining inventory, the append-only purchase ledger, the
// approved-investor set and the custody balance. Every operation
// serializes behind a single mutex, so no caller ever observes a
// partially applied transition. The wall clock is injected so the
// lifecycle is a pure function of (config, now) and tests can drive
// time explicitly.
type Engine struct {
	mu sync.Mutex

	admin   string
	reserve string // token-ledger account holding the unsold supply

	ledger  TokenLedger
	vault   FundsVault
	journal Journal
	now     func() time.Time

	approved  map[string]struct{}
	cfg       *Config
	remaining uint64
	purchases []Purchase
	released  int // purchases[:released] have been settled
	custody   uint64
}

// NewEngine constructs an engine. The admin identity is fixed for the
// engine's lifetime. reserve names the token-ledger account the sold
// supply is transferred out of during release. A nil journal disables
// journaling and a nil clock defaults to time.Now.
func NewEngine(admin, reserve string, ledger TokenLedger, vault FundsVault, journal Journal, now func() time.Time) *Engine {
	if journal == nil {
		journal = NopJournal{}
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		admin:    admin,
		reserve:  reserve,
		ledger:   ledger,
		vault:    vault,
		journal:  journal,
		now:      now,
		approved: make(map[string]struct{}),
	}
}

// lifecycleLocked derives the current lifecycle. Callers hold e.mu.
func (e *Engine) lifecycleLocked(at time.Time) Lifecycle {
	switch {
	case e.cfg == nil:
		return Unconfigured
	case at.Before(e.cfg.End):
		return Active
	default:
		return Expired
	}
}

// Start configures a new sale epoch. Preconditions are checked in a
// fixed order and each failure is a hard stop with no effect: caller
// must be the admin; no sale window may currently be open; duration,
// inventory and purchase bounds must validate. A restart over a fully
// expired epoch is permitted only once every prior purchase has been
// released and custody drained, and it clears the prior epoch's
// purchase ledger.
func (e *Engine) Start(ctx context.Context, caller string, duration time.Duration, price, availableTokens, minPurchase, maxPurchase uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	at := e.now()
	if caller != e.admin {
		return ErrUnauthorized
	}
	if e.lifecycleLocked(at) == Active {
		return ErrAlreadyActive
	}
	if e.cfg != nil && (e.released < len(e.purchases) || e.custody > 0) {
		return ErrUnsettled
	}
	if duration <= 0 {
		return ErrInvalidDuration
	}
	if availableTokens == 0 || availableTokens > e.ledger.TotalSupply() {
		return ErrInvalidInventory
	}
	if minPurchase == 0 {
		return ErrInvalidMinPurchase
	}
	if maxPurchase == 0 || maxPurchase > availableTokens {
		return ErrInvalidMaxPurchase
	}

	cfg := Config{
		End:             at.Add(duration),
		Price:           price,
		AvailableTokens: availableTokens,
		MinPurchase:     minPurchase,
		MaxPurchase:     maxPurchase,
	}
	if err := e.journal.SaleStarted(ctx, cfg); err != nil {
		return err
	}
	e.cfg = &cfg
	e.remaining = availableTokens
	e.purchases = nil
	e.released = 0
	return nil
}

// ApproveInvestor adds an address to the whitelist. Only the admin may
// approve; approving an already approved address is a no-op.
func (e *Engine) ApproveInvestor(ctx context.Context, caller, investor string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.admin {
		return ErrUnauthorized
	}
	if _, ok := e.approved[investor]; ok {
		return nil
	}
	if err := e.journal.InvestorApproved(ctx, investor); err != nil {
		return err
	}
	e.approved[investor] = struct{}{}
	return nil
}

// Buy records a purchase of value tokens for the caller. Pricing is
// 1:1: the committed value is both the custody amount and the token
// quantity. Bounds apply per call; an investor may buy repeatedly as
// long as each call and the remaining inventory allow it.
func (e *Engine) Buy(ctx context.Context, caller string, value uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.approved[caller]; !ok {
		return ErrNotInvestor
	}
	if e.lifecycleLocked(e.now()) != Active {
		return ErrSaleNotActive
	}
	if value < e.cfg.MinPurchase || value > e.cfg.MaxPurchase {
		return ErrPurchaseOutOfBounds
	}
	if value > e.remaining {
		return ErrInsufficientInventory
	}

	p := Purchase{Investor: caller, Quantity: value}
	if err := e.journal.PurchaseRecorded(ctx, len(e.purchases), p); err != nil {
		return err
	}
	e.purchases = append(e.purchases, p)
	e.remaining -= value
	e.custody += value
	return nil
}

// Release settles every unsettled purchase by transferring its quantity
// from the reserve account to the investor. It may only run after the
// sale window has expired and only by the admin. Settlement advances a
// watermark per record, so a second call is a safe no-op. A transfer
// failure stops the batch: records settled before the failure stay
// settled, the failing and later records remain pending for retry.
func (e *Engine) Release(ctx context.Context, caller string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.admin {
		return 0, ErrUnauthorized
	}
	if e.lifecycleLocked(e.now()) != Expired {
		return 0, ErrSaleStillActive
	}

	from := e.released
	for e.released < len(e.purchases) {
		p := e.purchases[e.released]
		if err := e.ledger.Transfer(e.reserve, p.Investor, p.Quantity); err != nil {
			if e.released > from {
				_ = e.journal.PurchasesReleased(ctx, from, e.released)
			}
			return e.released - from, err
		}
		e.released++
	}
	if e.released > from {
		if err := e.journal.PurchasesReleased(ctx, from, e.released); err != nil {
			return e.released - from, err
		}
	}
	return e.released - from, nil
}

// Withdraw moves amount from custody to recipient's vault account. It
// is admin-only and, because investors hold a claim against custody
// until their tokens are released, it also requires the sale window to
// have expired.
func (e *Engine) Withdraw(ctx context.Context, caller, recipient string, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.admin {
		return ErrUnauthorized
	}
	if e.lifecycleLocked(e.now()) != Expired {
		return ErrSaleStillActive
	}
	if amount > e.custody {
		return ErrInsufficientCustody
	}
	if err := e.journal.FundsWithdrawn(ctx, recipient, amount); err != nil {
		return err
	}
	if err := e.vault.Credit(recipient, amount); err != nil {
		return err
	}
	e.custody -= amount
	return nil
}

// ----- query accessors -----

// Lifecycle reports the current derived state.
func (e *Engine) Lifecycle() Lifecycle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycleLocked(e.now())
}

// End returns the configured end of the sale window, or the zero time
// before any epoch has been started.
func (e *Engine) End() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return epochEnd(e.cfg)
}

// AvailableTokens returns the remaining inventory of the current epoch.
func (e *Engine) AvailableTokens() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining
}

// MinPurchase returns the per-call lower purchase bound.
func (e *Engine) MinPurchase() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg == nil {
		return 0
	}
	return e.cfg.MinPurchase
}

// MaxPurchase returns the per-call upper purchase bound.
func (e *Engine) MaxPurchase() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg == nil {
		return 0
	}
	return e.cfg.MaxPurchase
}

// Price returns the configured value-per-token ratio.
func (e *Engine) Price() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg == nil {
		return 0
	}
	return e.cfg.Price
}

// Custody returns the value collected from buys and not yet withdrawn.
func (e *Engine) Custody() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.custody
}

// Purchases returns a copy of the purchase ledger in insertion order.
func (e *Engine) Purchases() []Purchase {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Purchase, len(e.purchases))
	copy(out, e.purchases)
	return out
}

// PurchaseAt returns the record at the given ledger index.
func (e *Engine) PurchaseAt(index int) (Purchase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.purchases) {
		return Purchase{}, ErrNoSuchPurchase
	}
	return e.purchases[index], nil
}

// Released returns how many purchase records have been settled.
func (e *Engine) Released() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

// IsAdmin reports whether id is the fixed admin identity.
func (e *Engine) IsAdmin(id string) bool { return id == e.admin }

// IsApproved reports whitelist membership.
func (e *Engine) IsApproved(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.approved[id]
	return ok
}
