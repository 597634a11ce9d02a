package config

import (
	"testing"
	"time"
)

func TestParseEndpoints(t *testing.T) {
	raw := "https://x/a,  https://x/b\n!https://x/c"
	eps := parseEndpoints(raw)
	if len(eps) != 3 {
		t.Fatalf("endpoints = %d, want 3", len(eps))
	}
	if !eps[0].Enabled || !eps[1].Enabled {
		t.Error("plain endpoints should be enabled")
	}
	if eps[2].Enabled || eps[2].URL != "https://x/c" {
		t.Errorf("bang-prefixed endpoint = %+v, want disabled with prefix stripped", eps[2])
	}
}

func TestValidate(t *testing.T) {
	cfg := defaultsForTest()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := defaultsForTest()
	bad.BridgeURL = ""
	if err := bad.Validate(); err == nil {
		t.Error("missing bridge URL should fail validation")
	}

	bad = defaultsForTest()
	bad.DeliveryMode = "teleport"
	if err := bad.Validate(); err == nil {
		t.Error("unknown delivery mode should fail validation")
	}

	bad = defaultsForTest()
	bad.DeliveryMode = "dropoff"
	bad.PickupLatitude = 0
	bad.PickupLongitude = 0
	if err := bad.Validate(); err == nil {
		t.Error("dropoff without coordinates should fail validation")
	}
}

func defaultsForTest() *Config {
	cfg := &Config{}
	cfg.BridgeURL = "http://127.0.0.1:37421"
	cfg.PollInterval = 10 * time.Second
	cfg.CountdownWindow = 3 * time.Second
	cfg.DeliveryMode = "home"
	return cfg
}
