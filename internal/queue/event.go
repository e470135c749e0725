// Package queue defines message payloads exchanged over the message broker.
package queue

// PurchaseRecordedEvent is published after a buy order is accepted. The
// payload carries the full purchase so downstream consumers can log or
// trigger notifications without querying the primary database. Amounts
// are decimal strings of base units.
type PurchaseRecordedEvent struct {
	Investor   string `json:"investor"`
	Quantity   string `json:"quantity"`
	Value      string `json:"value"`
	Price      string `json:"price"`
	Remaining  string `json:"remaining_tokens"`
	RecordedAt string `json:"recorded_at"`
}

// SaleSettledEvent is published when a release pass finishes. Released
// counts delivered purchase records, not token amounts. A partial
// release (broker or ledger fault mid-pass) publishes Complete=false.
type SaleSettledEvent struct {
	Released  int    `json:"released"`
	Pending   int    `json:"pending"`
	Complete  bool   `json:"complete"`
	SettledAt string `json:"settled_at"`
}
