// Package product defines the catalog record served through the cache.
package product

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalid is returned by Validate for records that break the field rules.
var ErrInvalid = errors.New("invalid product")

// Product is a catalog entry. ID is fixed once created; the other fields are
// only ever replaced as a whole.
type Product struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Validate checks the invariants a product must hold before it is stored.
func (p Product) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", ErrInvalid, p.ID)
	}
	if p.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative, got %d", ErrInvalid, p.Quantity)
	}
	if p.Price < 0 || math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
		return fmt.Errorf("%w: price must be a non-negative number, got %v", ErrInvalid, p.Price)
	}
	return nil
}

// Seed returns the initial catalog contents.
func Seed() []Product {
	return []Product{
		{ID: 1, Name: "Product1", Quantity: 10, Price: 100},
		{ID: 2, Name: "Product2", Quantity: 40, Price: 200},
		{ID: 3, Name: "Product2", Quantity: 50, Price: 200},
		{ID: 4, Name: "Product2", Quantity: 20, Price: 200},
		{ID: 5, Name: "Product2", Quantity: 20, Price: 200},
		{ID: 6, Name: "Product2", Quantity: 10, Price: 200},
		{ID: 7, Name: "Product2", Quantity: 40, Price: 200},
		{ID: 8, Name: "Product2", Quantity: 20, Price: 200},
		{ID: 9, Name: "Product2", Quantity: 20, Price: 200},
		{ID: 10, Name: "Product2", Quantity: 20, Price: 200},
	}
}
