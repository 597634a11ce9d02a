package sniper

import (
	"strings"

	"github.com/snipekit/engine/internal/store"
)

// MatchesRule reports whether an item satisfies every constraint the rule
// sets. An unset constraint is always satisfied: no max price means any
// price, no keywords means any title, no condition filter means any
// condition.
func MatchesRule(rule store.Rule, item store.Item) bool {
	if rule.MaxPrice > 0 && item.PriceValue > rule.MaxPrice {
		return false
	}

	title := strings.ToLower(item.Title)
	for _, kw := range rule.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if !strings.Contains(title, strings.ToLower(kw)) {
			return false
		}
	}

	if rule.Condition != "" {
		if !strings.Contains(strings.ToLower(item.Condition), strings.ToLower(rule.Condition)) {
			return false
		}
	}
	return true
}
