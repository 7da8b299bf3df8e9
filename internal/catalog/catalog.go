// Package catalog exposes the read-only region, product, currency and delivery data
// the ordering workflow validates input against.
package catalog

import "github.com/Proton-105/storefront-bot/internal/discount"

// Option is a selectable label that may be shown but disabled.
type Option struct {
	Label  string `yaml:"label" validate:"required"`
	Active bool   `yaml:"active"`
}

// Region groups the cities served in it.
type Region struct {
	Option `yaml:",inline"`
	Cities []Option `yaml:"cities" validate:"dive"`
}

// Product is a sellable item with price tiers keyed by tier token.
type Product struct {
	Name   string             `yaml:"name" validate:"required"`
	Active bool               `yaml:"active"`
	Prices map[string]float64 `yaml:"prices" validate:"required,min=1,dive,gt=0"`
}

// Currency maps a payment option key to its canonical symbol and receiving wallet.
type Currency struct {
	Key           string `yaml:"key" validate:"required"`
	Symbol        string `yaml:"symbol" validate:"required"`
	WalletAddress string `yaml:"wallet" validate:"required"`
}

// DeliveryMethod is a fulfilment option with a flat fee.
type DeliveryMethod struct {
	Label string  `yaml:"label" validate:"required"`
	Key   string  `yaml:"key" validate:"required,oneof=courier dropoff"`
	Fee   float64 `yaml:"fee" validate:"gte=0"`
}

// Data is the full catalog document.
type Data struct {
	Regions         []Region             `yaml:"regions" validate:"required,min=1,dive"`
	Categories      map[string][]Product `yaml:"categories" validate:"required,min=1,dive,dive"`
	Currencies      []Currency           `yaml:"currencies" validate:"required,min=1,dive"`
	DeliveryMethods []DeliveryMethod     `yaml:"delivery_methods" validate:"required,min=1,dive"`
	Discounts       discount.Table       `yaml:"discounts"`
}

// Provider is the read-only catalog contract consumed by the workflow.
type Provider interface {
	Regions() []Option
	Cities(region string) []Option
	Categories() []string
	Products(category string) []Product
	Currencies() []Currency
	DeliveryMethods() []DeliveryMethod
	Discounts() discount.Table
}
