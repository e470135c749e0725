package handler

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/token-sale/internal/queue"
	queue_publisher "github.com/iliyamo/token-sale/internal/service"
)

type startSaleReq struct {
	DurationSeconds int64  `json:"duration_seconds"`
	Price           string `json:"price"`
	AvailableTokens string `json:"available_tokens"`
	MinPurchase     string `json:"min_purchase"`
	MaxPurchase     string `json:"max_purchase"`
}

type approveInvestorReq struct {
	Address string `json:"address"`
}

type withdrawReq struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// StartSale opens a new sale epoch. The caller's address must be the
// engine's admin identity; the ADMIN role check in middleware only
// guards the route.
func (h *SaleHandler) StartSale(c echo.Context) error {
	addr, err := getAddress(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req startSaleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid price"})
	}
	inventory, err := parseAmount(req.AvailableTokens)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid available_tokens"})
	}
	minP, err := parseAmount(req.MinPurchase)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid min_purchase"})
	}
	maxP, err := parseAmount(req.MaxPurchase)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid max_purchase"})
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	if err := h.Engine.Start(c.Request().Context(), addr, duration, price, inventory, minP, maxP); err != nil {
		return c.JSON(saleErrorStatus(err), echo.Map{"error": err.Error()})
	}
	h.flushSaleCache(c.Request().Context())

	return c.JSON(http.StatusCreated, echo.Map{
		"lifecycle":        string(h.Engine.Lifecycle()),
		"end":              h.Engine.End().UTC().Format(time.RFC3339),
		"price":            fmtAmount(h.Engine.Price()),
		"available_tokens": fmtAmount(h.Engine.AvailableTokens()),
		"min_purchase":     fmtAmount(h.Engine.MinPurchase()),
		"max_purchase":     fmtAmount(h.Engine.MaxPurchase()),
	})
}

// ApproveInvestor whitelists an address for the current and future
// epochs. Approving twice is a no-op.
func (h *SaleHandler) ApproveInvestor(c echo.Context) error {
	addr, err := getAddress(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req approveInvestorReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	investor := strings.TrimSpace(req.Address)
	if investor == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "address required"})
	}

	if err := h.Engine.ApproveInvestor(c.Request().Context(), addr, investor); err != nil {
		return c.JSON(saleErrorStatus(err), echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"address": investor, "approved": true})
}

// Release settles pending purchases by moving tokens from the reserve
// to each investor. On a partial batch (ledger fault mid-pass) the
// handler still reports what was settled; the admin retries later and
// the engine resumes from its watermark.
func (h *SaleHandler) Release(c echo.Context) error {
	addr, err := getAddress(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	released, rerr := h.Engine.Release(c.Request().Context(), addr)
	if rerr != nil && released == 0 {
		return c.JSON(saleErrorStatus(rerr), echo.Map{"error": rerr.Error()})
	}

	pending := len(h.Engine.Purchases()) - h.Engine.Released()
	ev := queue.SaleSettledEvent{
		Released:  released,
		Pending:   pending,
		Complete:  rerr == nil && pending == 0,
		SettledAt: time.Now().UTC().Format(time.RFC3339),
	}
	_ = queue_publisher.PublishSaleSettled(c.Request().Context(), ev)
	h.flushSaleCache(c.Request().Context())

	if rerr != nil {
		// Partial settlement: some transfers went through before the fault.
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error":    rerr.Error(),
			"released": released,
			"pending":  pending,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"released": released,
		"pending":  pending,
	})
}

// Withdraw moves collected funds out of custody into the recipient's
// vault account. Only allowed after the sale window has expired.
func (h *SaleHandler) Withdraw(c echo.Context) error {
	addr, err := getAddress(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req withdrawReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "recipient required"})
	}
	amount, err := parseAmount(req.Amount)
	if err != nil || amount == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid amount"})
	}

	if err := h.Engine.Withdraw(c.Request().Context(), addr, recipient, amount); err != nil {
		return c.JSON(saleErrorStatus(err), echo.Map{"error": err.Error()})
	}
	h.flushSaleCache(c.Request().Context())

	return c.JSON(http.StatusOK, echo.Map{
		"recipient": recipient,
		"amount":    fmtAmount(amount),
		"custody":   fmtAmount(h.Engine.Custody()),
	})
}

// Audit returns the persisted journal view of the latest epoch: its
// configuration row, every purchase with its release timestamp, and
// all withdrawals. Serves reconciliation against the in-memory engine.
func (h *SaleHandler) Audit(c echo.Context) error {
	if h.Journal == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "journal not configured"})
	}
	ctx := c.Request().Context()

	epoch, err := h.Journal.LatestEpoch(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no sale epoch recorded"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	purchases, err := h.Journal.PurchasesByEpoch(ctx, epoch.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	withdrawals, err := h.Journal.WithdrawalsByEpoch(ctx, epoch.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"epoch":       epoch,
		"purchases":   purchases,
		"withdrawals": withdrawals,
	})
}
