// Package catalog serves product lookups for the till.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-pdv/internal/cache"
	"github.com/noah-isme/backend-pdv/internal/cart"
)

// Store reads branch products.
type Store interface {
	ProductByCode(ctx context.Context, branchID, code string) (cart.Product, error)
	SearchProducts(ctx context.Context, branchID, term string, limit, offset int) ([]cart.Product, int, error)
}

// Service resolves codes and searches the branch catalogue.
type Service struct {
	store        Store
	cache        *cache.JSON
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store        Store
	Cache        *cache.JSON
	DefaultLimit int
	MaxLimit     int
}

// SearchParams selects one page of a search.
type SearchParams struct {
	Term  string
	Page  int
	Limit int
}

// SearchResult is one page of matching products.
type SearchResult struct {
	Items []cart.Product `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{store: cfg.Store, cache: cfg.Cache, defaultLimit: defaultLimit, maxLimit: maxLimit}, nil
}

// ProductByCode returns the product registered under code at branchID.
// Stock must be live, so lookups bypass the cache.
func (s *Service) ProductByCode(ctx context.Context, branchID, code string) (cart.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return cart.Product{}, cart.ErrProductNotFound
	}
	return s.store.ProductByCode(ctx, branchID, code)
}

// Normalise applies defaults and caps to p.
func (s *Service) Normalise(p SearchParams) SearchParams {
	p.Term = strings.TrimSpace(p.Term)
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = s.defaultLimit
	}
	if p.Limit > s.maxLimit {
		p.Limit = s.maxLimit
	}
	return p
}

// Search returns a page of products matching a code prefix or a description
// fragment. Pages are cached briefly per branch.
func (s *Service) Search(ctx context.Context, branchID string, p SearchParams) (SearchResult, error) {
	p = s.Normalise(p)
	key := searchCacheKey(branchID, p)
	var cached SearchResult
	if ok, err := s.cache.Get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	items, total, err := s.store.SearchProducts(ctx, branchID, p.Term, p.Limit, (p.Page-1)*p.Limit)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search products: %w", err)
	}
	out := SearchResult{Items: items, Total: total, Page: p.Page, Limit: p.Limit}
	_ = s.cache.Set(ctx, key, out)
	return out, nil
}

func searchCacheKey(branchID string, p SearchParams) string {
	return cache.BranchKey(branchID, "catalog", "search", strings.ToLower(p.Term), fmt.Sprint(p.Page), fmt.Sprint(p.Limit))
}
