package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/wsplatform/checkout-api/internal/catalog"
	dbgen "github.com/wsplatform/checkout-api/internal/db/gen"
)

type fakeProducts struct {
	mu        sync.Mutex
	rows      []dbgen.Product
	listCalls int
	failList  bool
}

func (f *fakeProducts) List(context.Context) ([]dbgen.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.failList {
		return nil, errors.New("db down")
	}
	out := make([]dbgen.Product, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeProducts) Create(_ context.Context, arg dbgen.InsertProductParams) (dbgen.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var next int64 = 1
	for _, row := range f.rows {
		if row.ID >= next {
			next = row.ID + 1
		}
	}
	row := dbgen.Product{
		ID:               next,
		Name:             arg.Name,
		Description:      arg.Description,
		PriceCents:       arg.PriceCents,
		Type:             arg.Type,
		RequiresShipping: arg.RequiresShipping,
		ImageUrl:         arg.ImageUrl,
	}
	f.rows = append(f.rows, row)
	return row, nil
}

func newHandler(t *testing.T, repo *fakeProducts) (*catalog.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	svc, err := catalog.NewService(catalog.ServiceConfig{
		Repo:  repo,
		Cache: catalog.NewCache(rdb, time.Minute),
	})
	require.NoError(t, err)
	return catalog.NewHandler(catalog.HandlerConfig{Service: svc}), mr
}

func TestProductsListIsCached(t *testing.T) {
	repo := &fakeProducts{rows: []dbgen.Product{
		{ID: 1, Name: "E-book", PriceCents: 2990, Type: "digital", Description: pgtype.Text{String: "pdf", Valid: true}},
	}}
	handler, mr := newHandler(t, repo)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.Products(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var items []catalog.Product
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
		require.Len(t, items, 1)
		require.Equal(t, "E-book", items[0].Name)
		require.InDelta(t, 29.90, items[0].Price, 0.0001)
		require.NotNil(t, items[0].Description)
		require.Nil(t, items[0].ImageURL)
	}
	require.Equal(t, 1, repo.listCalls)
	require.True(t, mr.Exists("catalog:products:list"))
}

func TestProductsListEmptyReturnsArray(t *testing.T) {
	handler, _ := newHandler(t, &fakeProducts{})
	rec := httptest.NewRecorder()
	handler.Products(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestProductsListFailureIsInternal(t *testing.T) {
	handler, _ := newHandler(t, &fakeProducts{failList: true})
	rec := httptest.NewRecorder()
	handler.Products(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "db down")
}

func TestCreateProductAssignsNextIDAndInvalidatesCache(t *testing.T) {
	repo := &fakeProducts{rows: []dbgen.Product{{ID: 7, Name: "Existing", PriceCents: 1000, Type: "physical"}}}
	handler, mr := newHandler(t, repo)

	// warm the cache
	rec := httptest.NewRecorder()
	handler.Products(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.True(t, mr.Exists("catalog:products:list"))

	body := `{"name":"  Guia  ","price":19.99,"imageUrl":"https://cdn.example.com/g.png"}`
	rec = httptest.NewRecorder()
	handler.CreateProduct(rec, httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created catalog.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.EqualValues(t, 8, created.ID)
	require.Equal(t, "Guia", created.Name)
	require.Equal(t, catalog.TypeDigital, created.Type)
	require.InDelta(t, 19.99, created.Price, 0.0001)
	require.EqualValues(t, 1999, repo.rows[1].PriceCents)
	require.False(t, mr.Exists("catalog:products:list"))

	rec = httptest.NewRecorder()
	handler.Products(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	var items []catalog.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
}

func TestCreateProductValidation(t *testing.T) {
	cases := map[string]string{
		"malformed":     `{"name":`,
		"missing name":  `{"price":10}`,
		"zero price":    `{"name":"x","price":0}`,
		"negative":      `{"name":"x","price":-1}`,
		"unknown type":  `{"name":"x","price":1,"type":"service"}`,
		"blank name":    `{"name":"   ","price":1}`,
		"bad image url": `{"name":"x","price":1,"imageUrl":"not a url"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			repo := &fakeProducts{}
			handler, _ := newHandler(t, repo)
			rec := httptest.NewRecorder()
			handler.CreateProduct(rec, httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(body)))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Empty(t, repo.rows)
		})
	}
}

func TestServiceWithoutCache(t *testing.T) {
	repo := &fakeProducts{}
	svc, err := catalog.NewService(catalog.ServiceConfig{Repo: repo})
	require.NoError(t, err)

	created, err := svc.CreateProduct(context.Background(), catalog.ProductInput{Name: "Kit", Price: 5, Type: "PHYSICAL", RequiresShipping: true})
	require.NoError(t, err)
	require.Equal(t, catalog.TypePhysical, created.Type)
	require.True(t, created.RequiresShipping)

	items, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, repo.listCalls)
}

func TestNewServiceRequiresRepo(t *testing.T) {
	_, err := catalog.NewService(catalog.ServiceConfig{})
	require.Error(t, err)
}
