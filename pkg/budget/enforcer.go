package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffneuron/neuron/pkg/ledger"
	"github.com/ffneuron/neuron/pkg/models"
)

// ErrBudgetExceeded is returned when today's spend has reached the limit.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Spend reports spend over a time range.
type Spend interface {
	Total(ctx context.Context, since, until time.Time) (float64, error)
}

// Enforcer checks daily spend against a dollar budget.
type Enforcer struct {
	policy models.BudgetPolicy
	spend  Spend
	now    func() time.Time
}

// New creates an Enforcer for the given policy.
func New(policy models.BudgetPolicy, spend Spend) *Enforcer {
	return &Enforcer{policy: policy, spend: spend, now: time.Now}
}

// Check returns ErrBudgetExceeded once today's spend reaches the daily limit.
func (e *Enforcer) Check(ctx context.Context) error {
	st, err := e.Status(ctx)
	if err != nil {
		return fmt.Errorf("budget check: %w", err)
	}
	if st.Exceeded {
		return ErrBudgetExceeded
	}
	return nil
}

// Status returns today's usage against the policy.
func (e *Enforcer) Status(ctx context.Context) (models.BudgetStatus, error) {
	start, end := ledger.DayBounds(e.now())
	used, err := e.spend.Total(ctx, start, end)
	if err != nil {
		return models.BudgetStatus{}, fmt.Errorf("budget status: %w", err)
	}

	st := models.BudgetStatus{
		Day:    start.Format("2006-01-02"),
		Policy: e.policy,
		Used:   used,
	}
	st.Remaining = e.policy.DailyLimit - used
	if st.Remaining < 0 {
		st.Remaining = 0
	}
	if e.policy.DailyLimit > 0 {
		st.UsedPct = used / e.policy.DailyLimit
		st.Alert = st.UsedPct >= e.policy.AlertThreshold
		st.Exceeded = used >= e.policy.DailyLimit
	}
	return st, nil
}

// Watch logs a warning every interval while spend is above the alert
// threshold. It returns when ctx is done.
func (e *Enforcer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := e.Status(ctx)
			if err != nil {
				slog.Error("budget watch", "error", err)
				continue
			}
			if st.Alert {
				slog.Warn("budget alert",
					"used", fmt.Sprintf("$%.2f", st.Used),
					"limit", fmt.Sprintf("$%.2f", st.Policy.DailyLimit),
					"pct", fmt.Sprintf("%.1f%%", st.UsedPct*100))
			}
		}
	}
}
