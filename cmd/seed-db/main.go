// Command seed-db loads a product catalog, a starter set of spend and earn
// rules, their coupon codes, and an admin API key into the database. It is
// idempotent: reruns upsert.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/leatlabs/loyalty-engine/internal/repository"
)

type productJSON struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Price     decimal.Decimal  `json:"price"`
	SalePrice *decimal.Decimal `json:"salePrice"`
	Category  string           `json:"category"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or LOYALTY_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or LOYALTY_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("LOYALTY_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or LOYALTY_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("LOYALTY_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedRules(ctx, pool); err != nil {
		return errors.Wrap(err, "seed rules")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	const upsertProduct = `
INSERT INTO products (id, name, price, sale_price, category)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name, price = EXCLUDED.price,
    sale_price = EXCLUDED.sale_price, category = EXCLUDED.category`

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProduct, p.ID, p.Name, p.Price, p.SalePrice, p.Category); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}

// seedRules installs a starter promotion set: one percentage rule, one fixed
// rule, their coupon codes, and a 1-credit-per-currency-unit earn rule.
func seedRules(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding spend and earn rules")

	const upsertRule = `
INSERT INTO spend_rules (id, title, rule_type, discount_kind, discount_value, selected_products, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET title = EXCLUDED.title, rule_type = EXCLUDED.rule_type,
    discount_kind = EXCLUDED.discount_kind, discount_value = EXCLUDED.discount_value,
    selected_products = EXCLUDED.selected_products, status = EXCLUDED.status,
    updated_at = now()`

	rules := []struct {
		id, title, ruleType, kind string
		value                     decimal.Decimal
	}{
		{"seed-ten-percent", "10% off your order", "percentage_discount", "percentage", decimal.NewFromInt(10)},
		{"seed-five-off", "5 off your order", "fixed_discount", "currency", decimal.NewFromInt(5)},
	}
	for _, r := range rules {
		if _, err := pool.Exec(ctx, upsertRule, r.id, r.title, r.ruleType, r.kind, r.value, []byte("[]"), "active"); err != nil {
			return errors.Wrapf(err, "upsert spend rule %s", r.id)
		}
	}

	const upsertCoupon = `
INSERT INTO coupons (code, spend_rule_id, active)
VALUES ($1, $2, TRUE)
ON CONFLICT (code) DO UPDATE
SET spend_rule_id = EXCLUDED.spend_rule_id, active = TRUE`

	coupons := map[string]string{
		"WELCOME10": "seed-ten-percent",
		"TAKEFIVE":  "seed-five-off",
	}
	for code, ruleID := range coupons {
		if _, err := pool.Exec(ctx, upsertCoupon, code, ruleID); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", code)
		}
		slog.Info("upserted coupon", slog.String("code", code), slog.String("rule", ruleID))
	}

	const upsertEarnRule = `
INSERT INTO earn_rules (id, title, credits_per_unit, status)
VALUES ($1, $2, $3, 'active')
ON CONFLICT (id) DO UPDATE
SET title = EXCLUDED.title, credits_per_unit = EXCLUDED.credits_per_unit, status = 'active'`

	if _, err := pool.Exec(ctx, upsertEarnRule, "seed-earn-default", "1 credit per unit spent", decimal.NewFromInt(1)); err != nil {
		return errors.Wrap(err, "upsert earn rule")
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	const upsertAPIKey = `
INSERT INTO api_keys (id, key_hash, name, scopes, active)
VALUES ($1, $2, $3, $4, TRUE)
ON CONFLICT (id) DO UPDATE
SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
    scopes = EXCLUDED.scopes, active = TRUE`

	if _, err := pool.Exec(ctx, upsertAPIKey,
		"default", keyHash, "Default admin key", []string{"admin"},
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))
	return nil
}
