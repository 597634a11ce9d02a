// Package store provides the normalized data models shared across the pipeline.
package store

import "time"

// Item represents a single marketplace listing, normalized from whatever
// response shape the backend returned for the cycle that surfaced it.
type Item struct {
	// ID is the numeric listing identity assigned by the marketplace
	ID int64

	// Title is the seller-written listing title
	Title string

	// Price is the raw decimal string as returned upstream (precision preserved)
	Price string

	// PriceValue is the parsed price, used for rule comparisons
	PriceValue float64

	// Currency is the ISO currency code (e.g. GBP)
	Currency string

	// PhotoURL is the primary photo, if any
	PhotoURL string

	// URL is the canonical listing link
	URL string

	// Condition is the listing condition label (e.g. "New with tags")
	Condition string

	// Size is the size label, if present
	Size string

	// Brand is the brand title, if present
	Brand string

	// Seller is the seller login, if present
	Seller string

	// SourceURLs is the set of search endpoints that surfaced this item
	// during the cycle. Deduplication merges these across endpoints.
	SourceURLs []string

	// SeenAt is when this item was first observed by the aggregator
	SeenAt time.Time
}

// SearchEndpoint is a user-configured catalog query. Ordering is insertion
// order and determines the endpoint's round-robin proxy index.
type SearchEndpoint struct {
	URL     string
	Enabled bool
}

// Rule is a user-defined acquisition rule ("sniper"). Absent constraints
// (zero max price, empty keyword set, empty condition) always match.
type Rule struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// MaxPrice is the inclusive price ceiling; 0 means no limit
	MaxPrice float64 `json:"max_price"`

	// Keywords must all appear in the item title (case-insensitive substring)
	Keywords []string `json:"keywords"`

	// Condition is a case-insensitive substring filter on the item condition
	Condition string `json:"condition"`

	// BudgetLimit is the cumulative spend ceiling for this rule; 0 means unlimited
	BudgetLimit float64 `json:"budget_limit"`

	Enabled bool `json:"enabled"`
}

// Countdown is the cancellable delay window between a rule match and
// checkout execution. At most one live countdown exists per (rule, item).
type Countdown struct {
	ID        string
	RuleID    string
	RuleName  string
	Item      Item
	CreatedAt time.Time
	Window    time.Duration
}

// PurchaseResult is the structured outcome of a checkout session, surfaced
// to the countdown caller and to observers. It is never thrown across the
// pipeline boundary as an error.
type PurchaseResult struct {
	OK      bool
	Code    string
	Message string

	// OrderID is the external purchase identifier, when known
	OrderID string

	// AwaitingApproval marks the strong-authentication hand-off: a
	// provisional success whose approval URL must be opened externally.
	AwaitingApproval bool
	ApprovalURL      string

	// Simulated is set when simulation mode suppressed the real purchase
	Simulated bool

	Amount float64
}

// Event kinds published to the observability sink.
const (
	EventPollCycle        = "poll_cycle"
	EventSessionExpired   = "session_expired"
	EventProxyState       = "proxy_state"
	EventRuleMatched      = "rule_matched"
	EventAutobuyOff       = "matched_autobuy_off"
	EventBudgetExceeded   = "budget_exceeded"
	EventCountdownStarted = "countdown_started"
	EventCountdownCancel  = "countdown_cancelled"
	EventCheckoutStep     = "checkout_step"
	EventAwaitApproval    = "awaiting_approval"
	EventPurchaseComplete = "purchase_completed"
	EventPurchaseSimulate = "purchase_simulated"
	EventPurchaseFailed   = "purchase_failed"
)

// Event is a structured observability record consumed by the log viewer,
// the websocket hub, and the terminal dashboard.
type Event struct {
	ID      string         `json:"id"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Time    time.Time      `json:"time"`
	Fields  map[string]any `json:"fields,omitempty"`
}
