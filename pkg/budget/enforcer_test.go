package budget

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/ffneuron/neuron/pkg/ledger"
	"github.com/ffneuron/neuron/pkg/models"
)

func setup(t *testing.T) (ledger.Ledger, context.Context) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "budget_test.db")
	l, err := ledger.New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l, context.Background()
}

func record(t *testing.T, l ledger.Ledger, cost float64, at time.Time) {
	t.Helper()
	err := l.Record(context.Background(), models.CostEvent{
		Service: models.ServiceElevenLabs, Operation: models.OpTTSPremium, Cost: cost, CreatedAt: at,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCheckUnderBudget(t *testing.T) {
	l, ctx := setup(t)
	record(t, l, 3.0, time.Now().UTC())

	e := New(models.BudgetPolicy{DailyLimit: 10, AlertThreshold: 0.8}, l)
	if err := e.Check(ctx); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckExceeded(t *testing.T) {
	l, ctx := setup(t)
	record(t, l, 6.0, time.Now().UTC())
	record(t, l, 4.5, time.Now().UTC())

	e := New(models.BudgetPolicy{DailyLimit: 10, AlertThreshold: 0.8}, l)
	err := e.Check(ctx)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestStatusIgnoresYesterday(t *testing.T) {
	l, ctx := setup(t)
	now := time.Date(2026, 9, 6, 15, 0, 0, 0, time.UTC)
	record(t, l, 20.0, now.Add(-24*time.Hour))
	record(t, l, 8.5, now.Add(-time.Hour))

	e := New(models.BudgetPolicy{DailyLimit: 10, AlertThreshold: 0.8}, l)
	e.now = func() time.Time { return now }

	st, err := e.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Day != "2026-09-06" {
		t.Errorf("unexpected day %s", st.Day)
	}
	if math.Abs(st.Used-8.5) > 1e-9 || math.Abs(st.Remaining-1.5) > 1e-9 {
		t.Errorf("unexpected usage: %+v", st)
	}
	if !st.Alert || st.Exceeded {
		t.Errorf("expected alert without exceeding: %+v", st)
	}
}

func TestStatusZeroLimit(t *testing.T) {
	l, ctx := setup(t)
	record(t, l, 1.0, time.Now().UTC())

	e := New(models.BudgetPolicy{}, l)
	st, err := e.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Exceeded || st.Alert || st.UsedPct != 0 {
		t.Errorf("zero limit should disable enforcement: %+v", st)
	}
}
