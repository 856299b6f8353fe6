package main

import (
	"strings"
	"testing"

	"github.com/ffneuron/neuron/pkg/models"
)

func TestFormatCostTable(t *testing.T) {
	if got := formatCostTable(models.CostBreakdown{}); got != "No cost data found.\n" {
		t.Errorf("empty breakdown = %q", got)
	}

	out := formatCostTable(models.CostBreakdown{
		Total:        1.5,
		Events:       1200,
		CacheHits:    300,
		CacheSavings: 0.25,
		ByService:    map[string]float64{"openai": 0.5, "elevenlabs": 1.0},
	})
	if strings.Index(out, "elevenlabs") > strings.Index(out, "openai") {
		t.Errorf("services not sorted:\n%s", out)
	}
	for _, want := range []string{"$     1.5000", "1,200 events", "300 cache hits", "$0.2500 saved"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestBeginningOfMonth(t *testing.T) {
	b := beginningOfMonth()
	if b.Day() != 1 || b.Hour() != 0 || b.Location().String() != "UTC" {
		t.Errorf("beginningOfMonth = %v", b)
	}
}

func TestFormatUserCosts(t *testing.T) {
	if got := formatUserCosts(models.UserCosts{UserID: "fan-1"}); got != "No cost data for user fan-1.\n" {
		t.Errorf("empty user costs = %q", got)
	}

	out := formatUserCosts(models.UserCosts{
		UserID:  "fan-1",
		Total:   0.3,
		Events:  4,
		Debates: 2,
		ByDay:   map[string]float64{"2026-09-06": 0.2, "2026-09-05": 0.1},
	})
	if strings.Index(out, "2026-09-05") > strings.Index(out, "2026-09-06") {
		t.Errorf("days not sorted:\n%s", out)
	}
	if !strings.Contains(out, "4 events across 2 debates") || !strings.Contains(out, "$     0.3000") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
