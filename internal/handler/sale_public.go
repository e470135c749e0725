package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// GetToken returns static token metadata together with the reserve's
// current holdings.
func (h *SaleHandler) GetToken(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"name":         h.Ledger.Name(),
		"symbol":       h.Ledger.Symbol(),
		"decimals":     h.Ledger.Decimals(),
		"total_supply": fmtAmount(h.Ledger.TotalSupply()),
	})
}

// GetSale returns the observable state of the sale: lifecycle, window
// end, pricing and bounds, remaining inventory, custody, and how far
// settlement has advanced. Before any epoch is configured only the
// lifecycle field is meaningful.
func (h *SaleHandler) GetSale(c echo.Context) error {
	lc := h.Engine.Lifecycle()
	resp := echo.Map{
		"lifecycle":        string(lc),
		"available_tokens": fmtAmount(h.Engine.AvailableTokens()),
		"custody":          fmtAmount(h.Engine.Custody()),
		"purchases":        len(h.Engine.Purchases()),
		"released":         h.Engine.Released(),
	}
	if end := h.Engine.End(); !end.IsZero() {
		resp["end"] = end.UTC().Format(time.RFC3339)
		resp["price"] = fmtAmount(h.Engine.Price())
		resp["min_purchase"] = fmtAmount(h.Engine.MinPurchase())
		resp["max_purchase"] = fmtAmount(h.Engine.MaxPurchase())
	}
	return c.JSON(http.StatusOK, resp)
}

// ListPurchases returns the purchase ledger of the current epoch in
// insertion order.
func (h *SaleHandler) ListPurchases(c echo.Context) error {
	purchases := h.Engine.Purchases()
	released := h.Engine.Released()

	out := make([]echo.Map, 0, len(purchases))
	for i, p := range purchases {
		out = append(out, echo.Map{
			"index":    i,
			"investor": p.Investor,
			"quantity": fmtAmount(p.Quantity),
			"released": i < released,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"purchases": out, "count": len(out)})
}

// GetPurchase returns a single ledger record by index.
func (h *SaleHandler) GetPurchase(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid index"})
	}
	p, err := h.Engine.PurchaseAt(index)
	if err != nil {
		return c.JSON(saleErrorStatus(err), echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"index":    index,
		"investor": p.Investor,
		"quantity": fmtAmount(p.Quantity),
		"released": index < h.Engine.Released(),
	})
}
