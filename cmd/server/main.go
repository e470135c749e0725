package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/token-sale/internal/config"
	"github.com/iliyamo/token-sale/internal/database"
	"github.com/iliyamo/token-sale/internal/handler"
	"github.com/iliyamo/token-sale/internal/queue"
	"github.com/iliyamo/token-sale/internal/repository"
	"github.com/iliyamo/token-sale/internal/router"
	"github.com/iliyamo/token-sale/internal/sale"
	"github.com/iliyamo/token-sale/internal/token"
)

// reserveAccount holds the unsold supply. Tokens only leave it through
// settlement transfers.
const reserveAccount = "0x0000000000000000000000000000000000000001"

func main() {
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database open: %v", err)
	}
	defer db.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := database.EnsureSchema(ctx, db); err != nil {
			cancel()
			log.Fatalf("ensure schema: %v", err)
		}
		cancel()
	}

	userRepo := repository.NewUserRepo(db)
	tokenRepo := repository.NewTokenRepo(db)
	journal := repository.NewSaleJournal(db)

	// Expired refresh tokens are dropped at startup; a day of grace
	// keeps clock skew from eating tokens still in flight.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := tokenRepo.PurgeExpired(ctx, 24*time.Hour); err != nil {
			log.Printf("purge expired refresh tokens: %v", err)
		}
		cancel()
	}

	ledger := token.NewLedger(cfg.TokenName, cfg.TokenSymbol, uint8(cfg.TokenDecimals), cfg.TokenTotalSupply, reserveAccount)
	vault := token.NewVault()
	engine := sale.NewEngine(cfg.AdminAddress, reserveAccount, ledger, vault, journal, time.Now)

	rdb := config.NewRedisClient()
	cacheCfg := config.LoadCacheConfig()
	rlCfg := config.LoadRateLimitConfig()

	authHandler := handler.NewAuthHandler(cfg, userRepo, tokenRepo)
	saleHandler := handler.NewSaleHandler(engine, ledger, vault, journal, rdb, cacheCfg)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authHandler, cfg.JWTSecret)
	router.RegisterPublic(e, saleHandler, cacheCfg, rdb)
	router.RegisterSale(e, saleHandler, cfg.JWTSecret, rlCfg, rdb)

	// Background consumer mirrors sale events into logs/sale.log. It
	// reconnects on broker failure and never stops the server.
	go func() {
		if err := queue.StartSaleConsumer(); err != nil {
			log.Printf("sale consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
