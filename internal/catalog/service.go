package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/wsplatform/checkout-api/internal/common"
	dbgen "github.com/wsplatform/checkout-api/internal/db/gen"
)

const listCacheKey = "catalog:products:list"

const (
	TypeDigital  = "digital"
	TypePhysical = "physical"
)

type repository interface {
	List(ctx context.Context) ([]dbgen.Product, error)
	Create(ctx context.Context, arg dbgen.InsertProductParams) (dbgen.Product, error)
}

// Product is the public product payload.
type Product struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Description      *string `json:"description,omitempty"`
	Price            float64 `json:"price"`
	Type             string  `json:"type"`
	RequiresShipping bool    `json:"requiresShipping"`
	ImageURL         *string `json:"imageUrl,omitempty"`
}

// ProductInput is the body accepted by product creation.
type ProductInput struct {
	Name             string  `json:"name" validate:"required,max=200"`
	Description      *string `json:"description" validate:"omitempty,max=2000"`
	Price            float64 `json:"price" validate:"gt=0"`
	Type             string  `json:"type" validate:"omitempty,oneof=digital physical"`
	RequiresShipping bool    `json:"requiresShipping"`
	ImageURL         *string `json:"imageUrl" validate:"omitempty,url"`
}

// Service lists and creates catalog products. The product list is cached
// and invalidated on every create.
type Service struct {
	repo   repository
	cache  *Cache
	logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo   repository
	Cache  *Cache
	Logger zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("catalog: repository is required")
	}
	return &Service{repo: cfg.Repo, cache: cfg.Cache, logger: cfg.Logger}, nil
}

// ListProducts returns all products ordered by id.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	if cached, ok, err := s.cache.Products(ctx); ok {
		return cached, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache read failed")
	}

	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, toProduct(row))
	}
	if err := s.cache.StoreProducts(ctx, out); err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache write failed")
	}
	return out, nil
}

// CreateProduct stores in and returns it with its assigned id.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Product{}, badRequest("name", "name is required", nil)
	}
	if in.Price <= 0 || math.IsInf(in.Price, 0) || math.IsNaN(in.Price) {
		return Product{}, badRequest("price", "price must be positive", nil)
	}
	kind := strings.ToLower(strings.TrimSpace(in.Type))
	if kind == "" {
		kind = TypeDigital
	}
	if kind != TypeDigital && kind != TypePhysical {
		return Product{}, badRequest("type", "type must be digital or physical", nil)
	}

	row, err := s.repo.Create(ctx, dbgen.InsertProductParams{
		Name:             name,
		Description:      optionalText(in.Description),
		PriceCents:       int64(math.Round(in.Price * 100)),
		Type:             kind,
		RequiresShipping: in.RequiresShipping,
		ImageUrl:         optionalText(in.ImageURL),
	})
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	if err := s.cache.Drop(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache invalidate failed")
	}
	return toProduct(row), nil
}

func toProduct(row dbgen.Product) Product {
	p := Product{
		ID:               row.ID,
		Name:             row.Name,
		Price:            float64(row.PriceCents) / 100,
		Type:             row.Type,
		RequiresShipping: row.RequiresShipping,
	}
	if row.Description.Valid {
		d := row.Description.String
		p.Description = &d
	}
	if row.ImageUrl.Valid {
		u := row.ImageUrl.String
		p.ImageURL = &u
	}
	return p
}

func optionalText(v *string) pgtype.Text {
	if v == nil {
		return pgtype.Text{}
	}
	trimmed := strings.TrimSpace(*v)
	return pgtype.Text{String: trimmed, Valid: trimmed != ""}
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details:    map[string]any{"field": field},
	}
}
