package sale

import (
	"context"
	"time"
)

// Journal receives every accepted state change so an external store can
// keep an audit trail of the sale. The engine calls the journal after
// all validation has passed but before committing the in-memory write;
// a journal error aborts the operation with zero side effects, which
// keeps the persisted record and the in-memory ledger in lockstep.
// All calls happen under the engine lock, so implementations never see
// two mutations interleaved.
type Journal interface {
	// SaleStarted records a new epoch's configuration.
	SaleStarted(ctx context.Context, cfg Config) error
	// InvestorApproved records an address joining the whitelist. The
	// engine only reports first-time approvals; re-approving is a no-op.
	InvestorApproved(ctx context.Context, investor string) error
	// PurchaseRecorded records an accepted buy at its ledger index.
	PurchaseRecorded(ctx context.Context, index int, p Purchase) error
	// PurchasesReleased marks the half-open index range [from, to) as
	// settled through the token ledger.
	PurchasesReleased(ctx context.Context, from, to int) error
	// FundsWithdrawn records custody value leaving the sale.
	FundsWithdrawn(ctx context.Context, recipient string, amount uint64) error
}

// NopJournal discards every entry. It is used when the service runs
// without a database and by tests that only exercise the engine.
type NopJournal struct{}

func (NopJournal) SaleStarted(context.Context, Config) error { return nil }

func (NopJournal) InvestorApproved(context.Context, string) error { return nil }

func (NopJournal) PurchaseRecorded(context.Context, int, Purchase) error { return nil }

func (NopJournal) PurchasesReleased(context.Context, int, int) error { return nil }

func (NopJournal) FundsWithdrawn(context.Context, string, uint64) error { return nil }

// memoryJournal collects entries in memory. Tests use it to assert that
// the engine reports exactly the mutations it commits.
type memoryJournal struct {
	Epochs      []Config
	Investors   []string
	Purchases   []Purchase
	ReleasedTo  int
	Withdrawals map[string]uint64
}

func newMemoryJournal() *memoryJournal {
	return &memoryJournal{Withdrawals: make(map[string]uint64)}
}

func (m *memoryJournal) SaleStarted(_ context.Context, cfg Config) error {
	m.Epochs = append(m.Epochs, cfg)
	return nil
}

func (m *memoryJournal) InvestorApproved(_ context.Context, investor string) error {
	m.Investors = append(m.Investors, investor)
	return nil
}

func (m *memoryJournal) PurchaseRecorded(_ context.Context, _ int, p Purchase) error {
	m.Purchases = append(m.Purchases, p)
	return nil
}

func (m *memoryJournal) PurchasesReleased(_ context.Context, _, to int) error {
	m.ReleasedTo = to
	return nil
}

func (m *memoryJournal) FundsWithdrawn(_ context.Context, recipient string, amount uint64) error {
	m.Withdrawals[recipient] += amount
	return nil
}

// epochEnd reports the configured end time, or the zero time before any
// epoch exists. Kept unexported; callers use Engine.End.
func epochEnd(cfg *Config) time.Time {
	if cfg == nil {
		return time.Time{}
	}
	return cfg.End
}
