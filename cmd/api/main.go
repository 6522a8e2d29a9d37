package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/tmkandawire/shopa-backend/internal/config"
	"github.com/tmkandawire/shopa-backend/internal/modules/cart"
	"github.com/tmkandawire/shopa-backend/internal/modules/checkout"
	"github.com/tmkandawire/shopa-backend/internal/modules/order"
	"github.com/tmkandawire/shopa-backend/internal/modules/product"
	"github.com/tmkandawire/shopa-backend/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("configuration failed", "error", err)
		os.Exit(1)
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("store initialization failed", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	logger.Info("store ready", "backend", cfg.Backend)

	// ── Repositories ────────────────────────────────────────
	products := product.NewRepository(st.Collection("products"), cfg.CacheTTL)
	carts := cart.NewRepository(st.Collection("carts"), cfg.CacheTTL)
	orders := order.NewRepository(st.Collection("orders"), cfg.CacheTTL)

	// ── Fulfillment workflow ────────────────────────────────
	checkoutService := checkout.NewService(products, carts, orders, logger)

	// The cart module resolves products through an injected lookup so it
	// never imports the product repository.
	lookup := func(ctx context.Context, id string) (*cart.ProductInfo, error) {
		p, found, err := products.FindByID(ctx, id)
		if err != nil || !found {
			return nil, err
		}
		return &cart.ProductInfo{ID: p.ID, Name: p.Name, Price: p.Price, Inventory: p.Inventory}, nil
	}

	// ── Router ──────────────────────────────────────────────
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)

	product.NewHandler(products).RegisterRoutes(router)
	cart.NewHandler(carts, lookup).RegisterRoutes(router)
	order.NewHandler(orders).RegisterRoutes(router)
	checkout.NewHandler(checkoutService).RegisterRoutes(router)

	logger.Info("shopa API server starting", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// openStore builds the configured collection store. Every backend shares one
// lock manager, so each collection stays a single lock domain regardless of
// where its bytes live.
func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	locks := store.NewLockManager(cfg.LockPoll)

	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, err
		}
		pg := store.NewPostgresStore(db, locks)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			return nil, err
		}
		return pg, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, err
		}
		return store.NewRedisStore(client, locks, "shopa"), nil

	default:
		return store.NewFileStore(cfg.DataDir, locks, logger), nil
	}
}
