package sale

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/token-sale/internal/token"
)

const (
	admin    = "0xadmin"
	reserve  = "reserve"
	investor = "0xaaa1"
	investB  = "0xaaa2"
	stranger = "0xeee9"
	treasury = "0xbank"

	totalSupply = uint64(100000)
)

// fakeClock drives the engine's time source explicitly.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	engine  *Engine
	ledger  *token.Ledger
	vault   *token.Vault
	clock   *fakeClock
	journal *memoryJournal
}

func newFixture() *fixture {
	clock := newFakeClock()
	ledger := token.NewLedger("My Token", "MTK", 18, totalSupply, reserve)
	vault := token.NewVault()
	journal := newMemoryJournal()
	engine := NewEngine(admin, reserve, ledger, vault, journal, clock.Now)
	return &fixture{engine: engine, ledger: ledger, vault: vault, clock: clock, journal: journal}
}

// startDefault opens a 10s sale of 100 tokens with bounds [10, 50].
func (f *fixture) startDefault(t *testing.T) {
	t.Helper()
	err := f.engine.Start(context.Background(), admin, 10*time.Second, 1, 100, 10, 50)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
}

// checkConservation asserts sum(quantities) + remaining == configured inventory.
func checkConservation(t *testing.T, e *Engine, configured uint64) {
	t.Helper()
	var sum uint64
	for _, p := range e.Purchases() {
		sum += p.Quantity
	}
	if sum+e.AvailableTokens() != configured {
		t.Errorf("conservation broken: sold %d + remaining %d != %d",
			sum, e.AvailableTokens(), configured)
	}
}

func TestStart(t *testing.T) {
	f := newFixture()
	f.startDefault(t)

	if !f.engine.End().After(f.clock.Now()) {
		t.Error("end time should be after start time")
	}
	if got := f.engine.AvailableTokens(); got != 100 {
		t.Errorf("available tokens = %d, want 100", got)
	}
	if got := f.engine.MinPurchase(); got != 10 {
		t.Errorf("min purchase = %d, want 10", got)
	}
	if got := f.engine.MaxPurchase(); got != 50 {
		t.Errorf("max purchase = %d, want 50", got)
	}
	if got := f.engine.Lifecycle(); got != Active {
		t.Errorf("lifecycle = %s, want ACTIVE", got)
	}
	if len(f.journal.Epochs) != 1 {
		t.Errorf("journal epochs = %d, want 1", len(f.journal.Epochs))
	}
}

func TestStartNotAdmin(t *testing.T) {
	f := newFixture()
	err := f.engine.Start(context.Background(), stranger, 10*time.Second, 1, 100, 10, 50)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if f.engine.Lifecycle() != Unconfigured {
		t.Error("rejected start must leave the sale unconfigured")
	}
}

func TestStartAlreadyActive(t *testing.T) {
	f := newFixture()
	f.startDefault(t)
	err := f.engine.Start(context.Background(), admin, 10*time.Second, 1, 100, 10, 50)
	if !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("err = %v, want ErrAlreadyActive", err)
	}
}

func TestStartValidation(t *testing.T) {
	cases := []struct {
		name      string
		duration  time.Duration
		inventory uint64
		min, max  uint64
		want      error
	}{
		{"zero duration", 0, 100, 10, 50, ErrInvalidDuration},
		{"zero inventory", 10 * time.Second, 0, 10, 50, ErrInvalidInventory},
		{"inventory above supply", 10 * time.Second, totalSupply + 1, 10, 50, ErrInvalidInventory},
		{"zero min purchase", 10 * time.Second, 100, 0, 50, ErrInvalidMinPurchase},
		{"zero max purchase", 10 * time.Second, 100, 10, 0, ErrInvalidMaxPurchase},
		{"max above inventory", 10 * time.Second, 100, 10, 101, ErrInvalidMaxPurchase},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			err := f.engine.Start(context.Background(), admin, tc.duration, 1, tc.inventory, tc.min, tc.max)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
			if f.engine.Lifecycle() != Unconfigured {
				t.Error("rejected start must have no effect")
			}
		})
	}
}

func TestApproveInvestor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.engine.ApproveInvestor(ctx, stranger, investor); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-admin approve: err = %v, want ErrUnauthorized", err)
	}
	if err := f.engine.ApproveInvestor(ctx, admin, investor); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !f.engine.IsApproved(investor) {
		t.Error("investor should be approved")
	}
	// Re-approving is a no-op, not an error, and is journaled once.
	if err := f.engine.ApproveInvestor(ctx, admin, investor); err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if len(f.journal.Investors) != 1 {
		t.Errorf("journal investors = %d, want 1", len(f.journal.Investors))
	}
}

func TestBuy(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.startDefault(t)
	if err := f.engine.ApproveInvestor(ctx, admin, investor); err != nil {
		t.Fatal(err)
	}

	if err := f.engine.Buy(ctx, investor, 20); err != nil {
		t.Fatalf("buy: %v", err)
	}
	p, err := f.engine.PurchaseAt(0)
	if err != nil {
		t.Fatalf("purchase at 0: %v", err)
	}
	if p.Investor != investor || p.Quantity != 20 {
		t.Errorf("purchase = %+v, want {%s 20}", p, investor)
	}
	if got := f.engine.AvailableTokens(); got != 80 {
		t.Errorf("available tokens = %d, want 80", got)
	}
	if got := f.engine.Custody(); got != 20 {
		t.Errorf("custody = %d, want 20", got)
	}
	checkConservation(t, f.engine, 100)
}

func TestBuyNotInvestor(t *testing.T) {
	f := newFixture()
	f.startDefault(t)
	if err := f.engine.Buy(context.Background(), stranger, 20); !errors.Is(err, ErrNotInvestor) {
		t.Errorf("err = %v, want ErrNotInvestor", err)
	}
}

func TestBuyNotActive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if err := f.engine.ApproveInvestor(ctx, admin, investor); err != nil {
		t.Fatal(err)
	}
	// No sale configured yet.
	if err := f.engine.Buy(ctx, investor, 20); !errors.Is(err, ErrSaleNotActive) {
		t.Errorf("unconfigured: err = %v, want ErrSaleNotActive", err)
	}
	f.startDefault(t)
	f.clock.Advance(15 * time.Second)
	if err := f.engine.Buy(ctx, investor, 20); !errors.Is(err, ErrSaleNotActive) {
		t.Errorf("expired: err = %v, want ErrSaleNotActive", err)
	}
}

func TestBuyBounds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.startDefault(t)
	if err := f.engine.ApproveInvestor(ctx, admin, investor); err != nil {
		t.Fatal(err)
	}

	if err := f.engine.Buy(ctx, investor, 5); !errors.Is(err, ErrPurchaseOutOfBounds) {
		t.Errorf("below min: err = %v, want ErrPurchaseOutOfBounds", err)
	}
	if err := f.engine.Buy(ctx, investor, 60); !errors.Is(err, ErrPurchaseOutOfBounds) {
		t.Errorf("above max: err = %v, want ErrPurchaseOutOfBounds", err)
	}
	// Boundary-exact values are accepted.
	if err := f.engine.Buy(ctx, investor, 10); err != nil {
		t.Errorf("exact min: %v", err)
	}
	if err := f.engine.Buy(ctx, investor, 50); err != nil {
		t.Errorf("exact max: %v", err)
	}
	checkConservation(t, f.engine, 100)
}

func TestBuyInventoryThreshold(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.startDefault(t)
	if err := f.engine.ApproveInvestor(ctx, admin, investor); err != nil {
		t.Fatal(err)
	}

	// 50 + 40 leave 10; the call that would cross the threshold is the
	// one rejected, prior purchases stay intact.
	if err := f.engine.Buy(ctx, investor, 50); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Buy(ctx, investor, 40); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Buy(ctx, investor, 20); !errors.Is(err, ErrInsufficientInventory) {
		t.Errorf("err = %v, want ErrInsufficientInventory", err)
	}
	if got := f.engine.AvailableTokens(); got != 10 {
		t.Errorf("available tokens = %d, want 10", got)
	}
	if got := len(f.engine.Purchases()); got != 2 {
		t.Errorf("purchases = %d, want 2", got)
	}
	checkConservation(t, f.engine, 100)

	// The exact remainder is still sellable.
	if err := f.engine.Buy(ctx, investor, 10); err != nil {
		t.Errorf("exact remainder: %v", err)
	}
	if got := f.engine.AvailableTokens(); got != 0 {
		t.Errorf("available tokens = %d, want 0", got)
	}
}

func TestReleaseBeforeExpiry(t *testing.T) {
	f := newFixture()
	f.startDefault(t)
	if _, err := f.engine.Release(context.Background(), admin); !errors.Is(err, ErrSaleStillActive) {
		t.Errorf("err = %v, want ErrSaleStillActive", err)
	}
}

func TestReleaseNotAdmin(t *testing.T) {
	f := newFixture()
	f.startDefault(t)
	f.clock.Advance(15 * time.Second)
	if _, err := f.engine.Release(context.Background(), stranger); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.startDefault(t)
	for _, id := range []string{investor, investB} {
		if err := f.engine.ApproveInvestor(ctx, admin, id); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.engine.Buy(ctx, investor, 20); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Buy(ctx, investB, 30); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(15 * time.Second)

	n, err := f.engine.Release(ctx, admin)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if n != 2 {
		t.Errorf("released = %d, want 2", n)
	}
	if got := f.ledger.BalanceOf(investor); got != 20 {
		t.Errorf("investor balance = %d, want 20", got)
	}
	if got := f.ledger.BalanceOf(investB); got != 30 {
		t.Errorf("second investor balance = %d, want 30", got)
	}

	// A second release moves nothing.
	n, err = f.engine.Release(ctx, admin)
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if n != 0 {
		t.Errorf("second release moved %d records, want 0", n)
	}
	if got := f.ledger.BalanceOf(investor); got != 20 {
		t.Errorf("investor balance after second release = %d, want 20", got)
	}
}

// faultyLedger fails transfers to one investor to exercise the
// fail-fast settlement policy.
type faultyLedger struct {
	*token.Ledger
	failFor string
	broken  bool
}

var errLedgerDown = errors.New("ledger unavailable")

func (l *faultyLedger) Transfer(from, to string, amount uint64) error {
	if l.broken && to == l.failFor {
		return errLedgerDown
	}
	return l.Ledger.Transfer(from, to, amount)
}

func TestReleaseFailFast(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	ledger := &faultyLedger{
		Ledger:  token.NewLedger("My Token", "MTK", 18, totalSupply, reserve),
		failFor: investB,
		broken:  true,
	}
	engine := NewEngine(admin, reserve, ledger, token.NewVault(), nil, clock.Now)

	if err := engine.Start(ctx, admin, 10*time.Second, 1, 100, 10, 50); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{investor, investB} {
		if err := engine.ApproveInvestor(ctx, admin, id); err != nil {
			t.Fatal(err)
		}
	}
	if err := engine.Buy(ctx, investor, 20); err != nil {
		t.Fatal(err)
	}
	if err := engine.Buy(ctx, investB, 30); err != nil {
		t.Fatal(err)
	}
	clock.Advance(15 * time.Second)

	n, err := engine.Release(ctx, admin)
	if !errors.Is(err, errLedgerDown) {
		t.Fatalf("err = %v, want ledger failure", err)
	}
	if n != 1 {
		t.Errorf("released = %d, want 1 before the failure", n)
	}
	if got := ledger.BalanceOf(investor); got != 20 {
		t.Errorf("first investor balance = %d, want 20", got)
	}
	if got := ledger.BalanceOf(investB); got != 0 {
		t.Errorf("second investor balance = %d, want 0", got)
	}

	// Retry after the ledger recovers settles only the pending record.
	ledger.broken = false
	n, err = engine.Release(ctx, admin)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n != 1 {
		t.Errorf("retry released = %d, want 1", n)
	}
	if got := ledger.BalanceOf(investor); got != 20 {
		t.Errorf("first investor balance after retry = %d, want 20", got)
	}
	if got := ledger.BalanceOf(investB); got != 30 {
		t.Errorf("second investor balance after retry = %d, want 30", got)
	}
}

func TestWithdraw(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.startDefault(t)
	if err := f.engine.ApproveInvestor(ctx, admin, investor); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Buy(ctx, investor, 50); err != nil {
		t.Fatal(err)
	}

	// Before expiry withdrawing is refused even for the admin.
	if err := f.engine.Withdraw(ctx, admin, treasury, 50); !errors.Is(err, ErrSaleStillActive) {
		t.Errorf("before expiry: err = %v, want ErrSaleStillActive", err)
	}
	f.clock.Advance(15 * time.Second)

	if err := f.engine.Withdraw(ctx, stranger, treasury, 50); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-admin: err = %v, want ErrUnauthorized", err)
	}
	if err := f.engine.Withdraw(ctx, admin, treasury, 51); !errors.Is(err, ErrInsufficientCustody) {
		t.Errorf("over custody: err = %v, want ErrInsufficientCustody", err)
	}
	if err := f.engine.Withdraw(ctx, admin, treasury, 50); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := f.vault.BalanceOf(treasury); got != 50 {
		t.Errorf("treasury balance = %d, want 50", got)
	}
	if got := f.engine.Custody(); got != 0 {
		t.Errorf("custody = %d, want 0", got)
	}
	// Custody is drained; the same withdrawal cannot repeat.
	if err := f.engine.Withdraw(ctx, admin, treasury, 50); !errors.Is(err, ErrInsufficientCustody) {
		t.Errorf("repeat: err = %v, want ErrInsufficientCustody", err)
	}
	if got := f.journal.Withdrawals[treasury]; got != 50 {
		t.Errorf("journaled withdrawal = %d, want 50", got)
	}
}

func TestRestart(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.startDefault(t)
	if err := f.engine.ApproveInvestor(ctx, admin, investor); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Buy(ctx, investor, 20); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(15 * time.Second)

	// Unreleased purchases block a restart.
	err := f.engine.Start(ctx, admin, 10*time.Second, 1, 200, 10, 50)
	if !errors.Is(err, ErrUnsettled) {
		t.Fatalf("restart with pending purchases: err = %v, want ErrUnsettled", err)
	}
	if _, err := f.engine.Release(ctx, admin); err != nil {
		t.Fatal(err)
	}

	// Undrained custody still blocks.
	err = f.engine.Start(ctx, admin, 10*time.Second, 1, 200, 10, 50)
	if !errors.Is(err, ErrUnsettled) {
		t.Fatalf("restart with custody: err = %v, want ErrUnsettled", err)
	}
	if err := f.engine.Withdraw(ctx, admin, treasury, 20); err != nil {
		t.Fatal(err)
	}

	// Fully settled epoch can be replaced; the ledger starts clean.
	if err := f.engine.Start(ctx, admin, 10*time.Second, 2, 200, 10, 50); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if got := len(f.engine.Purchases()); got != 0 {
		t.Errorf("purchases after restart = %d, want 0", got)
	}
	if got := f.engine.AvailableTokens(); got != 200 {
		t.Errorf("available tokens after restart = %d, want 200", got)
	}
	if got := f.engine.Price(); got != 2 {
		t.Errorf("price after restart = %d, want 2", got)
	}
}

func TestPurchaseAtOutOfRange(t *testing.T) {
	f := newFixture()
	if _, err := f.engine.PurchaseAt(0); !errors.Is(err, ErrNoSuchPurchase) {
		t.Errorf("err = %v, want ErrNoSuchPurchase", err)
	}
	if _, err := f.engine.PurchaseAt(-1); !errors.Is(err, ErrNoSuchPurchase) {
		t.Errorf("negative index: err = %v, want ErrNoSuchPurchase", err)
	}
}

// TestFullSale walks the complete lifecycle: configure, sell to two
// investors, expire, settle, withdraw.
func TestFullSale(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.startDefault(t)
	for _, id := range []string{investor, investB} {
		if err := f.engine.ApproveInvestor(ctx, admin, id); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.engine.Buy(ctx, investor, 20); err != nil {
		t.Fatal(err)
	}
	if got := f.engine.AvailableTokens(); got != 80 {
		t.Errorf("available tokens = %d, want 80", got)
	}
	if err := f.engine.Buy(ctx, investB, 30); err != nil {
		t.Fatal(err)
	}
	if got := f.engine.AvailableTokens(); got != 50 {
		t.Errorf("available tokens = %d, want 50", got)
	}

	f.clock.Advance(15 * time.Second)
	if err := f.engine.Buy(ctx, investor, 20); !errors.Is(err, ErrSaleNotActive) {
		t.Errorf("post-expiry buy: err = %v, want ErrSaleNotActive", err)
	}

	if _, err := f.engine.Release(ctx, admin); err != nil {
		t.Fatal(err)
	}
	if got := f.ledger.BalanceOf(investor); got != 20 {
		t.Errorf("investor balance = %d, want 20", got)
	}
	if got := f.ledger.BalanceOf(investB); got != 30 {
		t.Errorf("second investor balance = %d, want 30", got)
	}
	if got := f.ledger.BalanceOf(reserve); got != totalSupply-50 {
		t.Errorf("reserve balance = %d, want %d", got, totalSupply-50)
	}

	custody := f.engine.Custody()
	if custody != 50 {
		t.Fatalf("custody = %d, want 50", custody)
	}
	if err := f.engine.Withdraw(ctx, admin, treasury, custody); err != nil {
		t.Fatal(err)
	}
	if got := f.vault.BalanceOf(treasury); got != 50 {
		t.Errorf("treasury balance = %d, want 50", got)
	}
}
