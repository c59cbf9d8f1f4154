package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wsplatform/checkout-api/internal/catalog"
	"github.com/wsplatform/checkout-api/internal/config"
)

type fakeCatalog struct {
	products []catalog.Product
	created  []catalog.ProductInput
}

func (f *fakeCatalog) ListProducts(context.Context) ([]catalog.Product, error) {
	return f.products, nil
}

func (f *fakeCatalog) CreateProduct(_ context.Context, in catalog.ProductInput) (catalog.Product, error) {
	f.created = append(f.created, in)
	p := catalog.Product{ID: int64(len(f.products) + 1), Name: in.Name, Price: in.Price, Type: in.Type}
	f.products = append(f.products, p)
	return p, nil
}

func TestSeedCatalogInsertsConfiguredProduct(t *testing.T) {
	t.Setenv("SEED_FORCE", "")
	svc := &fakeCatalog{}
	cfg := &config.Config{ProductTitle: "E-book", ProductDescription: "digital", ProductUnitPrice: 29.9}

	require.NoError(t, seedCatalog(context.Background(), svc, cfg, zerolog.Nop()))
	require.Len(t, svc.created, 1)
	require.Equal(t, "E-book", svc.created[0].Name)
	require.InDelta(t, 29.9, svc.created[0].Price, 0.0001)

	require.NoError(t, seedCatalog(context.Background(), svc, cfg, zerolog.Nop()))
	require.Len(t, svc.created, 1, "second run must not duplicate")
}
