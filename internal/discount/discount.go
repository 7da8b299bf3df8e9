// Package discount resolves the percentage discount that applies to an order.
package discount

import "strings"

// Entry is a single configured discount.
type Entry struct {
	Percent float64 `yaml:"percent" validate:"gte=0,lte=100"`
	Active  bool    `yaml:"active"`
}

// Table holds discounts keyed by each supported scope.
type Table struct {
	Global     Entry            `yaml:"global"`
	Codes      map[string]Entry `yaml:"codes"`
	Users      map[string]Entry `yaml:"users"`
	Regions    map[string]Entry `yaml:"regions"`
	Cities     map[string]Entry `yaml:"cities"`
	Categories map[string]Entry `yaml:"categories"`
	Products   map[string]Entry `yaml:"products"`
}

// Scopes describes which keys an order matches. Empty strings match nothing.
type Scopes struct {
	PromoCode string
	UserID    string
	Region    string
	City      string
	Category  string
	Product   string
}

// Resolve returns the highest active percentage among all matching scopes.
// Scopes do not stack.
func Resolve(table Table, scopes Scopes) float64 {
	best := 0.0
	consider := func(e Entry, ok bool) {
		if ok && e.Active && e.Percent > best {
			best = e.Percent
		}
	}

	consider(table.Global, true)
	consider(lookup(table.Codes, normalize(scopes.PromoCode)))
	consider(lookup(table.Users, normalize(scopes.UserID)))
	consider(lookup(table.Regions, scopes.Region))
	consider(lookup(table.Cities, scopes.City))
	consider(lookup(table.Categories, scopes.Category))
	consider(lookup(table.Products, scopes.Product))

	if best > 100 {
		return 100
	}
	return best
}

// CodeActive reports whether the promo code maps to an active code discount.
func CodeActive(table Table, code string) bool {
	e, ok := lookup(table.Codes, normalize(code))
	return ok && e.Active && e.Percent > 0
}

// Normalized returns a copy of t with code and user keys in lookup form.
// When two keys collide the stronger active entry is kept.
func (t Table) Normalized() Table {
	t.Codes = normalizeKeys(t.Codes)
	t.Users = normalizeKeys(t.Users)
	return t
}

func normalizeKeys(entries map[string]Entry) map[string]Entry {
	if entries == nil {
		return nil
	}
	out := make(map[string]Entry, len(entries))
	for key, e := range entries {
		k := normalize(key)
		if prev, ok := out[k]; ok && stronger(prev, e) {
			continue
		}
		out[k] = e
	}
	return out
}

func stronger(a, b Entry) bool {
	if a.Active != b.Active {
		return a.Active
	}
	return a.Percent >= b.Percent
}

// Normalize upper-cases and trims a code or user key the way lookups expect.
func Normalize(key string) string {
	return normalize(key)
}

func normalize(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func lookup(entries map[string]Entry, key string) (Entry, bool) {
	if key == "" || len(entries) == 0 {
		return Entry{}, false
	}
	e, ok := entries[key]
	return e, ok
}
