// Package checkout drives the multi-step purchase transaction for a
// triggered countdown: build, delivery components, payment, completion.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/snipekit/engine/internal/bridge"
	"github.com/snipekit/engine/internal/ledger"
	"github.com/snipekit/engine/internal/store"
)

// Step names emitted on each state transition.
const (
	StepBuild      = "build"
	StepComponents = "components"
	StepPayment    = "payment"
	StepComplete   = "complete"
)

// Bridge is the transaction-execution collaborator subset the orchestrator
// uses.
type Bridge interface {
	CheckoutBuild(ctx context.Context, orderID int64, proxyURL string) (json.RawMessage, error)
	CheckoutPut(ctx context.Context, purchaseID string, components map[string]any, proxyURL string) (json.RawMessage, error)
	NearbyPickupPoints(ctx context.Context, shippingOrderID int64, lat, lon float64, countryCode, proxyURL string) (json.RawMessage, error)
}

// Config are the user-facing checkout preferences, read once at startup.
type Config struct {
	VerificationEnabled   bool
	VerificationThreshold float64
	DeliveryMode          string
	PickupLatitude        float64
	PickupLongitude       float64
	PickupCountryCode     string
}

// Orchestrator runs one checkout session per Execute call. Every request in
// a session goes through the same sticky proxy.
type Orchestrator struct {
	bridge  Bridge
	ledger  ledger.Ledger
	cfg     Config
	publish func(store.Event)
}

// New wires the orchestrator.
func New(b Bridge, lg ledger.Ledger, cfg Config, publish func(store.Event)) *Orchestrator {
	if publish == nil {
		publish = func(store.Event) {}
	}
	return &Orchestrator{bridge: b, ledger: lg, cfg: cfg, publish: publish}
}

// checkoutState is the tolerant view of a build or put response. Some
// backend variants nest it under "checkout", some return it flat; ids
// arrive as strings or numbers.
type checkoutState struct {
	ID              json.RawMessage `json:"id"`
	PurchaseID      json.RawMessage `json:"purchase_id"`
	ShippingOrderID int64           `json:"shipping_order_id"`
	RedirectURL     string          `json:"redirect_url"`
	PaymentMethods  []paymentMethod `json:"payment_methods"`
}

type paymentMethod struct {
	ID      json.RawMessage `json:"id"`
	Name    string          `json:"name"`
	Default bool            `json:"default"`
}

func parseCheckoutState(data json.RawMessage) (*checkoutState, error) {
	var wrap struct {
		Checkout json.RawMessage `json:"checkout"`
	}
	if err := json.Unmarshal(data, &wrap); err == nil && len(wrap.Checkout) > 0 && string(wrap.Checkout) != "null" {
		data = wrap.Checkout
	}
	var st checkoutState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse checkout state: %w", err)
	}
	return &st, nil
}

func (st *checkoutState) purchaseID() string {
	if s := rawID(st.PurchaseID); s != "" {
		return s
	}
	return rawID(st.ID)
}

// rawID normalizes an id that may be a JSON string or a number.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Execute runs the state machine to a terminal result. It never panics
// across the pipeline boundary; every failure comes back as a structured
// result with a human-readable message.
func (o *Orchestrator) Execute(ctx context.Context, ruleID string, item store.Item, proxyURL string) store.PurchaseResult {
	o.step(StepBuild, item, "initiating purchase")
	buildData, err := o.bridge.CheckoutBuild(ctx, item.ID, proxyURL)
	if err != nil {
		return failResult("checkout build failed", err)
	}
	buildState, err := parseCheckoutState(buildData)
	if err != nil {
		return failResult("checkout build returned an unrecognized response", err)
	}
	purchaseID := buildState.purchaseID()
	if purchaseID == "" {
		return store.PurchaseResult{OK: false, Code: bridge.CodeParseError, Message: "checkout build response carried no purchase id"}
	}

	o.step(StepComponents, item, "configuring delivery")
	components := o.buildComponents(ctx, item, buildState, proxyURL)
	putData, err := o.bridge.CheckoutPut(ctx, purchaseID, components, proxyURL)
	if err != nil {
		return failResult("delivery configuration failed", err)
	}
	putState, err := parseCheckoutState(putData)
	if err != nil {
		return failResult("delivery step returned an unrecognized response", err)
	}

	o.step(StepPayment, item, "attaching payment")
	method := pickPaymentMethod(putState.PaymentMethods)
	if method == nil {
		method = pickPaymentMethod(buildState.PaymentMethods)
	}
	if method == nil {
		return store.PurchaseResult{OK: false, Code: "NO_PAYMENT_METHOD", Message: "no payment method saved on the account"}
	}
	finalData, err := o.bridge.CheckoutPut(ctx, purchaseID, map[string]any{
		"payment": map[string]any{"payment_method_id": rawID(method.ID)},
	}, proxyURL)
	if err != nil {
		return failResult("payment submission failed", err)
	}
	finalState, err := parseCheckoutState(finalData)
	if err != nil {
		return failResult("payment step returned an unrecognized response", err)
	}

	o.step(StepComplete, item, "finalizing")
	if finalState.RedirectURL != "" {
		slog.Info("checkout_awaiting_approval", "item_id", item.ID, "url", finalState.RedirectURL)
		return store.PurchaseResult{
			OK:               true,
			OrderID:          purchaseID,
			AwaitingApproval: true,
			ApprovalURL:      finalState.RedirectURL,
			Amount:           item.PriceValue,
			Message:          "awaiting external payment approval",
		}
	}

	if err := o.ledger.RecordPurchase(ruleID, item, purchaseID, item.PriceValue); err != nil {
		slog.Warn("ledger_write_failed", "order_id", purchaseID, "error", err)
	}
	slog.Info("checkout_completed", "item_id", item.ID, "order_id", purchaseID, "amount", item.PriceValue)
	return store.PurchaseResult{
		OK:      true,
		OrderID: purchaseID,
		Amount:  item.PriceValue,
		Message: fmt.Sprintf("purchased %q for %s %s", item.Title, item.Price, item.Currency),
	}
}

// buildComponents assembles the delivery/verification payload. A pickup
// point that cannot be resolved is omitted so the upstream default applies.
func (o *Orchestrator) buildComponents(ctx context.Context, item store.Item, st *checkoutState, proxyURL string) map[string]any {
	components := map[string]any{
		"item_verification": map[string]any{
			"enabled": o.cfg.VerificationEnabled && item.PriceValue >= o.cfg.VerificationThreshold,
		},
	}

	if o.cfg.DeliveryMode == "dropoff" {
		delivery := map[string]any{"type": "pickup"}
		if point := o.nearestPickupPoint(ctx, st.ShippingOrderID, proxyURL); point != nil {
			delivery["pickup_point_code"] = point.Code
			delivery["carrier_id"] = point.CarrierID
		}
		components["delivery"] = delivery
	} else {
		components["delivery"] = map[string]any{"type": "home"}
	}
	return components
}

func pickPaymentMethod(methods []paymentMethod) *paymentMethod {
	for i := range methods {
		if methods[i].Default {
			return &methods[i]
		}
	}
	if len(methods) > 0 {
		return &methods[0]
	}
	return nil
}

type pickupPoint struct {
	Code      string
	CarrierID int64
	Latitude  float64
	Longitude float64
}

type rawPickupResponse struct {
	NearbyPickupPoints []rawPickupEntry `json:"nearby_pickup_points"`
	PickupPoints       []rawPickupEntry `json:"pickup_points"`
}

type rawPickupEntry struct {
	Code      string          `json:"code"`
	CarrierID int64           `json:"carrier_id"`
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Point     *rawPickupEntry `json:"pickup_point"`
}

// nearestPickupPoint fetches drop-off candidates and selects the closest to
// the configured coordinates. Any failure resolves to nil; delivery falls
// back to the upstream default rather than failing the session.
func (o *Orchestrator) nearestPickupPoint(ctx context.Context, shippingOrderID int64, proxyURL string) *pickupPoint {
	if shippingOrderID == 0 {
		return nil
	}
	data, err := o.bridge.NearbyPickupPoints(ctx, shippingOrderID, o.cfg.PickupLatitude, o.cfg.PickupLongitude, o.cfg.PickupCountryCode, proxyURL)
	if err != nil {
		slog.Warn("pickup_points_failed", "shipping_order_id", shippingOrderID, "error", err)
		return nil
	}

	var resp rawPickupResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		slog.Warn("pickup_points_parse_failed", "error", err)
		return nil
	}
	entries := resp.NearbyPickupPoints
	if len(entries) == 0 {
		entries = resp.PickupPoints
	}

	var best *pickupPoint
	bestDist := math.Inf(1)
	for _, entry := range entries {
		e := entry
		if e.Point != nil {
			e = *e.Point
		}
		if e.Code == "" {
			continue
		}
		d := haversineKm(o.cfg.PickupLatitude, o.cfg.PickupLongitude, e.Latitude, e.Longitude)
		if d < bestDist {
			bestDist = d
			best = &pickupPoint{Code: e.Code, CarrierID: e.CarrierID, Latitude: e.Latitude, Longitude: e.Longitude}
		}
	}
	if best != nil {
		slog.Debug("pickup_point_selected", "code", best.Code, "distance_km", bestDist)
	}
	return best
}

// haversineKm is the great-circle distance between two coordinates, Earth
// radius 6371 km.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func (o *Orchestrator) step(step string, item store.Item, message string) {
	o.publish(store.Event{
		Kind:    store.EventCheckoutStep,
		Message: fmt.Sprintf("checkout %s: %s (%q)", step, message, item.Title),
		Fields:  map[string]any{"step": step, "item_id": item.ID},
	})
}

func failResult(prefix string, err error) store.PurchaseResult {
	var bErr *bridge.Error
	if errors.As(err, &bErr) {
		return store.PurchaseResult{
			OK:      false,
			Code:    bErr.Code,
			Message: fmt.Sprintf("%s: %s", prefix, bErr.Message),
		}
	}
	return store.PurchaseResult{OK: false, Message: fmt.Sprintf("%s: %v", prefix, err)}
}
