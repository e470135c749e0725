package model

import "time"

// SaleEpoch mirrors the sale_epochs table: one row per successful
// start call, recording the configuration the sale ran under.
//
// Fields:
//  ID              – primary key identifier of the epoch.
//  Price           – value-per-token ratio.
//  AvailableTokens – inventory configured at start (not the remainder).
//  MinPurchase     – per-call lower purchase bound.
//  MaxPurchase     – per-call upper purchase bound.
//  EndsAt          – absolute end of the sale window.
//  CreatedAt       – when the epoch was started.
type SaleEpoch struct {
	ID              uint64    `json:"id"`
	Price           uint64    `json:"price"`
	AvailableTokens uint64    `json:"available_tokens"`
	MinPurchase     uint64    `json:"min_purchase"`
	MaxPurchase     uint64    `json:"max_purchase"`
	EndsAt          time.Time `json:"ends_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// SalePurchase mirrors the sale_purchases table. Idx is the purchase's
// position in the engine's in-memory ledger; together with the epoch it
// identifies the record. ReleasedAt is set once the quantity has been
// transferred to the investor.
type SalePurchase struct {
	ID         uint64     `json:"id"`
	EpochID    uint64     `json:"epoch_id"`
	Idx        uint32     `json:"index"`
	Investor   string     `json:"investor"`
	Quantity   uint64     `json:"quantity"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// SaleWithdrawal mirrors the sale_withdrawals table: custody value
// moved out by the admin after expiry.
type SaleWithdrawal struct {
	ID        uint64    `json:"id"`
	EpochID   uint64    `json:"epoch_id"`
	Recipient string    `json:"recipient"`
	Amount    uint64    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
