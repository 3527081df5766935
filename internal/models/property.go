package models

import (
	"strings"
	"time"
)

// Category is one of the fixed backing catalog categories.
type Category string

const (
	CategoryAll         Category = "all"
	CategoryResidential Category = "residential"
	CategoryCommercial  Category = "commercial"
	CategoryBungalow    Category = "bungalow"
	CategoryPlot        Category = "plot"
	CategoryFarmhouse   Category = "farmhouse"
)

// Categories lists every backing category in display order.
var Categories = []Category{
	CategoryResidential,
	CategoryCommercial,
	CategoryBungalow,
	CategoryPlot,
	CategoryFarmhouse,
}

// ParseCategory maps a query value to a Category. Empty and "all" both mean ALL.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(CategoryAll) {
		return CategoryAll, true
	}
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

type TransactionType string

const (
	TransactionBuy     TransactionType = "buy"
	TransactionLease   TransactionType = "lease"
	TransactionUnknown TransactionType = "unknown"
)

// ParseTransactionType accepts the canonical values only; empty means unknown (no restriction).
func ParseTransactionType(s string) (TransactionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(TransactionUnknown), "all":
		return TransactionUnknown, true
	case string(TransactionBuy):
		return TransactionBuy, true
	case string(TransactionLease):
		return TransactionLease, true
	}
	return "", false
}

type PriceType string

const (
	PriceTotal    PriceType = "total"
	PricePerSqft  PriceType = "per_sqft"
	PricePerMonth PriceType = "per_month"
)

type Possession string

const (
	PossessionReady             Possession = "ready_to_move"
	PossessionUnderConstruction Possession = "under_construction"
	PossessionUnknown           Possession = ""
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Media is one classified media URL of a listing.
type Media struct {
	URL         string    `json:"url"`
	Kind        MediaKind `json:"kind"`
	DeliveryURL string    `json:"deliveryUrl"`
}

// Property is the canonical listing record every category is normalized into.
// It is rebuilt from the source row on every cache miss.
type Property struct {
	ID              string          `json:"id"`
	Category        Category        `json:"category"`
	TransactionType TransactionType `json:"transactionType"`
	Title           string          `json:"title"`
	Location        string          `json:"location"`
	AreaLabel       string          `json:"areaLabel"`
	Price           string          `json:"price"`
	PriceValue      float64         `json:"priceValue"`
	PriceType       PriceType       `json:"priceType"`
	Configuration   string          `json:"configuration"`
	Bedrooms        int             `json:"bedrooms"`
	Bathrooms       int             `json:"bathrooms"`
	CarpetArea      float64         `json:"carpetArea"`
	BuiltUpArea     float64         `json:"builtUpArea"`
	Possession      Possession      `json:"possession,omitempty"`
	Description     string          `json:"description,omitempty"`
	Media           []Media         `json:"media"`
	Images          []string        `json:"images"`
	Videos          []string        `json:"videos"`
	Featured        bool            `json:"featured"`
	Verified        bool            `json:"verified"`
	PostedDate      time.Time       `json:"postedDate"`
	Views           int             `json:"views"`
	Likes           int             `json:"likes"`
}

// Key returns the (category, id) identity of the property.
func (p Property) Key() string {
	return string(p.Category) + "/" + p.ID
}
