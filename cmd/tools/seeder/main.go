package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/wsplatform/checkout-api/internal/catalog"
	"github.com/wsplatform/checkout-api/internal/config"
	"github.com/wsplatform/checkout-api/internal/db"
	dbgen "github.com/wsplatform/checkout-api/internal/db/gen"
	"github.com/wsplatform/checkout-api/internal/obs"
	"github.com/wsplatform/checkout-api/internal/repo"
)

// seeder inserts the configured checkout product into an empty catalog.
func main() {
	logger := obs.NewLogger("console", "info")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load configuration")
	}
	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("migrate database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	svc, err := catalog.NewService(catalog.ServiceConfig{
		Repo:   repo.Products{DB: pool, Q: dbgen.New(pool)},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("catalog service")
	}

	if err := seedCatalog(ctx, svc, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed catalog")
	}
}

type catalogService interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	CreateProduct(ctx context.Context, in catalog.ProductInput) (catalog.Product, error)
}

func seedCatalog(ctx context.Context, svc catalogService, cfg *config.Config, logger zerolog.Logger) error {
	existing, err := svc.ListProducts(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 && !forceSeed() {
		logger.Info().Int("products", len(existing)).Msg("catalog already seeded")
		return nil
	}

	description := cfg.ProductDescription
	created, err := svc.CreateProduct(ctx, catalog.ProductInput{
		Name:        cfg.ProductTitle,
		Description: &description,
		Price:       cfg.ProductUnitPrice,
		Type:        catalog.TypeDigital,
	})
	if err != nil {
		return err
	}
	logger.Info().Int64("id", created.ID).Str("name", created.Name).Msg("product seeded")
	return nil
}

func forceSeed() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("SEED_FORCE"))) {
	case "1", "true", "yes":
		return true
	}
	return false
}
