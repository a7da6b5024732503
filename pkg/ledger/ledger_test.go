package ledger

import (
	"encoding/json"
	"testing"
)

func TestMarshalDetailsEmpty(t *testing.T) {
	if got := marshalDetails(nil); got != nil {
		t.Errorf("expected nil for empty details, got %v", got)
	}
	if got := marshalDetails(map[string]any{}); got != nil {
		t.Errorf("expected nil for empty map, got %v", got)
	}
}

func TestMarshalDetailsRoundTrip(t *testing.T) {
	in := map[string]any{"api_cost_saved": 0.3, "source": "cache_global"}
	raw := marshalDetails(in)

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["source"] != "cache_global" {
		t.Errorf("expected source cache_global, got %v", out["source"])
	}
}
