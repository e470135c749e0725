package handler // handler defines http handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/token-sale/internal/config"
	"github.com/iliyamo/token-sale/internal/middleware"
	"github.com/iliyamo/token-sale/internal/repository"
	"github.com/iliyamo/token-sale/internal/sale"
	"github.com/iliyamo/token-sale/internal/token"
)

// SaleHandler bundles the sale engine and its collaborators for both
// the admin and investor endpoints. All methods assume that JWT
// authentication and role validation has already been performed by
// middleware; the caller's sale account address is read from the
// context and handed to the engine, which enforces the actual access
// policy a second time.
type SaleHandler struct {
	Engine   *sale.Engine
	Ledger   *token.Ledger
	Vault    *token.Vault
	Journal  *repository.SaleJournal
	Rdb      *redis.Client
	CacheCfg config.CacheConfig
}

// NewSaleHandler constructs a SaleHandler. Engine and Ledger must be
// non-nil; Journal and Rdb may be nil when running without their
// backing services.
func NewSaleHandler(engine *sale.Engine, ledger *token.Ledger, vault *token.Vault, journal *repository.SaleJournal, rdb *redis.Client, cacheCfg config.CacheConfig) *SaleHandler {
	if engine == nil || ledger == nil || vault == nil {
		panic("nil dependency passed to NewSaleHandler")
	}
	return &SaleHandler{
		Engine:   engine,
		Ledger:   ledger,
		Vault:    vault,
		Journal:  journal,
		Rdb:      rdb,
		CacheCfg: cacheCfg,
	}
}

// getUserID extracts the user_id from echo.Context and converts it to uint64.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// getAddress extracts the caller's sale account address from the context.
func getAddress(c echo.Context) (string, error) {
	if s, ok := c.Get("addr").(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("invalid address in context")
}

// parseAmount parses a decimal base-unit amount from its JSON string
// form. Amounts travel as strings because uint64 values overflow
// JSON-number consumers.
func parseAmount(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// fmtAmount renders a base-unit amount for JSON.
func fmtAmount(v uint64) string { return strconv.FormatUint(v, 10) }

// saleErrorStatus maps the engine's sentinel errors to HTTP statuses.
func saleErrorStatus(err error) int {
	switch {
	case errors.Is(err, sale.ErrUnauthorized), errors.Is(err, sale.ErrNotInvestor):
		return http.StatusForbidden
	case errors.Is(err, sale.ErrAlreadyActive),
		errors.Is(err, sale.ErrSaleNotActive),
		errors.Is(err, sale.ErrSaleStillActive),
		errors.Is(err, sale.ErrUnsettled):
		return http.StatusConflict
	case errors.Is(err, sale.ErrInvalidDuration),
		errors.Is(err, sale.ErrInvalidInventory),
		errors.Is(err, sale.ErrInvalidMinPurchase),
		errors.Is(err, sale.ErrInvalidMaxPurchase):
		return http.StatusBadRequest
	case errors.Is(err, sale.ErrPurchaseOutOfBounds),
		errors.Is(err, sale.ErrInsufficientInventory),
		errors.Is(err, sale.ErrInsufficientCustody):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sale.ErrNoSuchPurchase):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// flushSaleCache drops cached public queries after a successful
// mutation. Failures only mean entries live out their TTL.
func (h *SaleHandler) flushSaleCache(ctx context.Context) {
	if err := middleware.FlushCache(ctx, h.Rdb, h.CacheCfg.Prefix); err != nil {
		log.Printf("cache flush failed: %v", err)
	}
}
