package feed

import (
	"encoding/json"
	"testing"
)

func TestNormalizeItemsKey(t *testing.T) {
	raw := json.RawMessage(`{
		"items": [
			{
				"id": 101,
				"title": "Wool Jumper XL",
				"price": {"amount": "19.99", "currency_code": "GBP"},
				"url": "https://example.com/items/101",
				"photo": {"url": "https://img.example.com/101.jpg"},
				"status": "Very good",
				"size_title": "XL",
				"brand_title": "Acme",
				"user": {"login": "seller1"}
			}
		]
	}`)

	items, err := Normalize(raw, "https://example.com/catalog?search_text=jumper")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	it := items[0]
	if it.ID != 101 || it.Title != "Wool Jumper XL" {
		t.Errorf("identity = %d %q", it.ID, it.Title)
	}
	if it.Price != "19.99" || it.PriceValue != 19.99 || it.Currency != "GBP" {
		t.Errorf("price = %q %v %q", it.Price, it.PriceValue, it.Currency)
	}
	if it.Condition != "Very good" || it.Size != "XL" || it.Brand != "Acme" || it.Seller != "seller1" {
		t.Errorf("detail fields = %q %q %q %q", it.Condition, it.Size, it.Brand, it.Seller)
	}
	if len(it.SourceURLs) != 1 || it.SourceURLs[0] != "https://example.com/catalog?search_text=jumper" {
		t.Errorf("source urls = %v", it.SourceURLs)
	}
}

func TestNormalizeCatalogItemsKey(t *testing.T) {
	raw := json.RawMessage(`{
		"catalog_items": [
			{"id": 7, "title": "Denim Jacket", "price_numeric": "32.50", "currency": "EUR"}
		]
	}`)

	items, err := Normalize(raw, "src")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Price != "32.50" || items[0].PriceValue != 32.5 || items[0].Currency != "EUR" {
		t.Errorf("price = %q %v %q", items[0].Price, items[0].PriceValue, items[0].Currency)
	}
}

func TestNormalizeNestedDataKey(t *testing.T) {
	raw := json.RawMessage(`{
		"data": {"items": [{"id": 9, "title": "Scarf", "price": 4.5}]}
	}`)

	items, err := Normalize(raw, "src")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].PriceValue != 4.5 {
		t.Errorf("price value = %v, want 4.5", items[0].PriceValue)
	}
}

func TestNormalizeShapePriority(t *testing.T) {
	// When multiple keys are present the top-level items array wins.
	raw := json.RawMessage(`{
		"items": [{"id": 1, "title": "A"}],
		"catalog_items": [{"id": 2, "title": "B"}]
	}`)

	items, err := Normalize(raw, "src")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(items) != 1 || items[0].ID != 1 {
		t.Fatalf("items = %+v, want only id 1", items)
	}
}

func TestNormalizeDropsInvalidIDs(t *testing.T) {
	raw := json.RawMessage(`{"items": [{"id": 0, "title": "Ghost"}, {"id": 3, "title": "Real"}]}`)

	items, err := Normalize(raw, "src")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(items) != 1 || items[0].ID != 3 {
		t.Fatalf("items = %+v, want only id 3", items)
	}
}

func TestNormalizePhotoFallback(t *testing.T) {
	raw := json.RawMessage(`{
		"items": [{"id": 5, "title": "Hat", "photos": [{"url": "https://img/5a.jpg"}, {"url": "https://img/5b.jpg"}]}]
	}`)

	items, err := Normalize(raw, "src")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if items[0].PhotoURL != "https://img/5a.jpg" {
		t.Errorf("photo = %q", items[0].PhotoURL)
	}
}

func TestNormalizeEmptyResponse(t *testing.T) {
	items, err := Normalize(json.RawMessage(`{}`), "src")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %d, want 0", len(items))
	}
}
