package sniper

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/snipekit/engine/internal/store"
)

// LoadRules reads the sniper definitions from a JSON file. Rules without an
// id get one derived from their position so ledger attribution stays stable
// within a run. A missing file is not an error: the engine starts with no
// rules and logs it.
func LoadRules(path string) ([]store.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("rules_file_missing", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var rules []store.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	for i := range rules {
		if rules[i].ID == "" {
			rules[i].ID = fmt.Sprintf("rule-%d", i+1)
		}
		if rules[i].Name == "" {
			rules[i].Name = rules[i].ID
		}
	}

	enabled := 0
	for _, r := range rules {
		if r.Enabled {
			enabled++
		}
	}
	slog.Info("rules_loaded", "total", len(rules), "enabled", enabled, "path", path)
	return rules, nil
}
