package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/token-sale/internal/queue"
	queue_publisher "github.com/iliyamo/token-sale/internal/service"
)

type buyReq struct {
	Value string `json:"value"`
}

// Buy commits value against the active sale on behalf of the caller.
// Pricing is 1:1, so the committed value doubles as the token quantity
// credited at release. The purchase event is published best-effort;
// the buy is already journaled and committed when publishing fails.
func (h *SaleHandler) Buy(c echo.Context) error {
	addr, err := getAddress(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req buyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	value, err := parseAmount(req.Value)
	if err != nil || value == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid value"})
	}

	if err := h.Engine.Buy(c.Request().Context(), addr, value); err != nil {
		return c.JSON(saleErrorStatus(err), echo.Map{"error": err.Error()})
	}

	remaining := h.Engine.AvailableTokens()
	ev := queue.PurchaseRecordedEvent{
		Investor:   addr,
		Quantity:   fmtAmount(value),
		Value:      fmtAmount(value),
		Price:      fmtAmount(h.Engine.Price()),
		Remaining:  fmtAmount(remaining),
		RecordedAt: time.Now().UTC().Format(time.RFC3339),
	}
	_ = queue_publisher.PublishPurchaseRecorded(c.Request().Context(), ev)
	h.flushSaleCache(c.Request().Context())

	return c.JSON(http.StatusCreated, echo.Map{
		"investor":         addr,
		"quantity":         fmtAmount(value),
		"remaining_tokens": fmtAmount(remaining),
	})
}

// MyAccount reports the caller's position: whitelist status, pending
// (unreleased) quantity, and released token balance.
func (h *SaleHandler) MyAccount(c echo.Context) error {
	addr, err := getAddress(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var pending uint64
	released := h.Engine.Released()
	for i, p := range h.Engine.Purchases() {
		if p.Investor == addr && i >= released {
			pending += p.Quantity
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"address":        addr,
		"approved":       h.Engine.IsApproved(addr),
		"pending_tokens": fmtAmount(pending),
		"token_balance":  fmtAmount(h.Ledger.BalanceOf(addr)),
		"vault_balance":  fmtAmount(h.Vault.BalanceOf(addr)),
	})
}
