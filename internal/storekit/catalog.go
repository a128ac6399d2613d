package storekit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Product is the platform metadata needed to report a purchase price.
type Product struct {
	ID       string      `json:"product_id"`
	Price    json.Number `json:"price"`
	Currency string      `json:"currency"`
}

// Catalog resolves product metadata. Unknown ids are omitted from the result.
type Catalog interface {
	Products(ctx context.Context, ids []string) ([]Product, error)
}

// StaticCatalog is an in-memory Catalog, typically loaded from a JSON file.
type StaticCatalog struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewStaticCatalog(products ...Product) *StaticCatalog {
	c := &StaticCatalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// LoadCatalog reads a JSON array of products.
func LoadCatalog(path string) (*StaticCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var products []Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return NewStaticCatalog(products...), nil
}

func (c *StaticCatalog) Put(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *StaticCatalog) Products(ctx context.Context, ids []string) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Product
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
