package catalog

import (
	"sort"

	"github.com/Proton-105/storefront-bot/internal/discount"
)

// Static serves an immutable catalog snapshot.
type Static struct {
	data Data
}

var _ Provider = (*Static)(nil)

// NewStatic wraps already loaded catalog data.
func NewStatic(data Data) *Static {
	return &Static{data: data}
}

func (s *Static) Regions() []Option {
	out := make([]Option, 0, len(s.data.Regions))
	for _, r := range s.data.Regions {
		out = append(out, r.Option)
	}
	return out
}

func (s *Static) Cities(region string) []Option {
	for _, r := range s.data.Regions {
		if r.Label == region {
			return append([]Option(nil), r.Cities...)
		}
	}
	return nil
}

// Categories returns category keys in lexical order.
func (s *Static) Categories() []string {
	keys := make([]string, 0, len(s.data.Categories))
	for key := range s.data.Categories {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Static) Products(category string) []Product {
	return append([]Product(nil), s.data.Categories[category]...)
}

func (s *Static) Currencies() []Currency {
	return append([]Currency(nil), s.data.Currencies...)
}

func (s *Static) DeliveryMethods() []DeliveryMethod {
	return append([]DeliveryMethod(nil), s.data.DeliveryMethods...)
}

func (s *Static) Discounts() discount.Table {
	return s.data.Discounts
}
