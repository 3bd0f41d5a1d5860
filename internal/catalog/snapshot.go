// Package catalog provides the read-only product view the pricing engine
// computes against, loaded from Postgres and cached in Redis.
package catalog

import "github.com/noah-isme/backoffice-pricing/internal/pricing"

// Snapshot is an immutable view of the products touched by one computation.
type Snapshot struct {
	products map[string]pricing.Product
}

// NewSnapshot builds a snapshot from products. Later duplicates replace
// earlier ones.
func NewSnapshot(products ...pricing.Product) Snapshot {
	m := make(map[string]pricing.Product, len(products))
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		m[p.ID] = p
	}
	return Snapshot{products: m}
}

// Product returns the product with id.
func (s Snapshot) Product(id string) (pricing.Product, bool) {
	p, ok := s.products[id]
	return p, ok
}

// Len reports the number of products in the snapshot.
func (s Snapshot) Len() int { return len(s.products) }

// Products returns a copy of the product map keyed by ID.
func (s Snapshot) Products() map[string]pricing.Product {
	out := make(map[string]pricing.Product, len(s.products))
	for id, p := range s.products {
		out[id] = p
	}
	return out
}

// Missing lists the ids not present in the snapshot, in input order.
func (s Snapshot) Missing(ids []string) []string {
	var out []string
	for _, id := range ids {
		if _, ok := s.products[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
