package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/codetesla51/productcache/product"
)

// Catalog is an in-memory ProductSource, used when no database is configured.
// Its contents are fixed at construction, so reads need no locking.
type Catalog struct {
	products map[int]product.Product
}

func NewCatalog(products ...product.Product) *Catalog {
	c := &Catalog{products: make(map[int]product.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// NewSeedCatalog returns a catalog holding product.Seed.
func NewSeedCatalog() *Catalog {
	return NewCatalog(product.Seed()...)
}

func (c *Catalog) FetchAll(ctx context.Context) ([]product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]product.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Catalog) FetchByID(ctx context.Context, id int) (product.Product, error) {
	if err := ctx.Err(); err != nil {
		return product.Product{}, err
	}
	p, ok := c.products[id]
	if !ok {
		return product.Product{}, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return p, nil
}
