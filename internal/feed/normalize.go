package feed

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/snipekit/engine/internal/store"
)

// The search collaborator returns listings under different top-level keys
// depending on the backend response variant. Shapes are tried in priority
// order: {"items": [...]}, then {"catalog_items": [...]}, then
// {"data": {"items": [...]}}.
type searchShapes struct {
	Items        []rawListing `json:"items"`
	CatalogItems []rawListing `json:"catalog_items"`
	Data         *struct {
		Items []rawListing `json:"items"`
	} `json:"data"`
}

// rawListing tolerates the upstream's loose field types: price may be an
// object, a numeric string, or a bare number; size and brand appear both
// nested and flattened.
type rawListing struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Price        json.RawMessage `json:"price"`
	PriceNumeric json.RawMessage `json:"price_numeric"`
	Currency     string          `json:"currency"`
	URL          string          `json:"url"`
	Photo        *struct {
		URL string `json:"url"`
	} `json:"photo"`
	Photos []struct {
		URL string `json:"url"`
	} `json:"photos"`
	Status     string `json:"status"`
	Condition  string `json:"condition"`
	SizeTitle  string `json:"size_title"`
	BrandTitle string `json:"brand_title"`
	User       *struct {
		Login string `json:"login"`
	} `json:"user"`
}

type priceObject struct {
	Amount       json.RawMessage `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
}

// Normalize converts one raw search response into Feed Items, tagging each
// with the endpoint URL that surfaced it. Listings without a positive
// numeric id are dropped.
func Normalize(data json.RawMessage, sourceURL string) ([]store.Item, error) {
	var shapes searchShapes
	if err := json.Unmarshal(data, &shapes); err != nil {
		return nil, fmt.Errorf("unrecognized search response shape: %w", err)
	}

	listings := shapes.Items
	if len(listings) == 0 {
		listings = shapes.CatalogItems
	}
	if len(listings) == 0 && shapes.Data != nil {
		listings = shapes.Data.Items
	}

	items := make([]store.Item, 0, len(listings))
	for _, raw := range listings {
		if raw.ID <= 0 {
			continue
		}
		items = append(items, normalizeListing(raw, sourceURL))
	}
	return items, nil
}

func normalizeListing(raw rawListing, sourceURL string) store.Item {
	priceStr, priceVal, currency := parsePrice(raw)
	if currency == "" {
		currency = raw.Currency
	}

	condition := raw.Status
	if condition == "" {
		condition = raw.Condition
	}

	photoURL := ""
	if raw.Photo != nil {
		photoURL = raw.Photo.URL
	}
	if photoURL == "" && len(raw.Photos) > 0 {
		photoURL = raw.Photos[0].URL
	}

	seller := ""
	if raw.User != nil {
		seller = raw.User.Login
	}

	return store.Item{
		ID:         raw.ID,
		Title:      raw.Title,
		Price:      priceStr,
		PriceValue: priceVal,
		Currency:   currency,
		PhotoURL:   photoURL,
		URL:        raw.URL,
		Condition:  condition,
		Size:       raw.SizeTitle,
		Brand:      raw.BrandTitle,
		Seller:     seller,
		SourceURLs: []string{sourceURL},
	}
}

// parsePrice accepts {"amount": "19.99", "currency_code": "GBP"}, a
// price_numeric string, or a bare number under either key.
func parsePrice(raw rawListing) (string, float64, string) {
	if len(raw.Price) > 0 {
		var obj priceObject
		if err := json.Unmarshal(raw.Price, &obj); err == nil && len(obj.Amount) > 0 {
			s, v := parseAmount(obj.Amount)
			return s, v, obj.CurrencyCode
		}
		if s, v := parseAmount(raw.Price); s != "" {
			return s, v, ""
		}
	}
	if len(raw.PriceNumeric) > 0 {
		if s, v := parseAmount(raw.PriceNumeric); s != "" {
			return s, v, ""
		}
	}
	return "", 0, ""
}

func parseAmount(raw json.RawMessage) (string, float64) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return "", 0
		}
		return s, v
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return strconv.FormatFloat(v, 'f', -1, 64), v
	}
	return "", 0
}
