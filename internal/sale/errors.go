// Package sale implements the token sale engine: the sale ledger, the
// time-derived lifecycle state machine, the approved-investor policy and
// batch settlement. These sentinel values let handlers distinguish
// between failure scenarios. For example, ErrUnauthorized indicates the
// caller lacks the admin role, while ErrSaleNotActive signals that the
// purchase window has closed. Every rejected operation leaves prior
// state untouched; no error here implies partial mutation.
package sale

import "errors"

// ErrUnauthorized is returned when a caller other than the admin invokes
// an admin-only operation. Handlers should translate this into an HTTP
// 403 response.
var ErrUnauthorized = errors.New("only admin")

// ErrNotInvestor is returned when a caller outside the approved-investor
// set attempts to buy.
var ErrNotInvestor = errors.New("only investor")

// ErrAlreadyActive is returned by Start while a previously configured
// sale window is still open.
var ErrAlreadyActive = errors.New("sale already active")

// ErrSaleNotActive is returned by Buy when no sale is configured or the
// sale window has expired.
var ErrSaleNotActive = errors.New("sale not active")

// ErrSaleStillActive is returned by Release and Withdraw before the sale
// window has expired.
var ErrSaleStillActive = errors.New("sale still active")

// ErrUnsettled is returned by Start when a prior epoch still has
// unreleased purchases or undrained custody. Restarting would drop
// recorded claims, so the engine refuses.
var ErrUnsettled = errors.New("previous sale not settled")

// Configuration validation failures, checked by Start in order.
var (
	ErrInvalidDuration    = errors.New("duration must be > 0")
	ErrInvalidInventory   = errors.New("available tokens must be > 0 and <= total supply")
	ErrInvalidMinPurchase = errors.New("min purchase must be > 0")
	ErrInvalidMaxPurchase = errors.New("max purchase must be > 0 and <= available tokens")
)

// Purchase validation failures, checked by Buy in order.
var (
	ErrPurchaseOutOfBounds   = errors.New("value must be between min and max purchase")
	ErrInsufficientInventory = errors.New("not enough tokens left")
)

// ErrInsufficientCustody is returned by Withdraw when the requested
// amount exceeds the value collected from buys.
var ErrInsufficientCustody = errors.New("insufficient custody balance")

// ErrNoSuchPurchase is returned by PurchaseAt for an index past the end
// of the purchase ledger.
var ErrNoSuchPurchase = errors.New("no such purchase")
