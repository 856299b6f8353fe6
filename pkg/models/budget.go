package models

// BudgetPolicy caps daily spend in dollars.
type BudgetPolicy struct {
	DailyLimit     float64 `json:"daily_limit" yaml:"daily_limit"`
	AlertThreshold float64 `json:"alert_threshold" yaml:"alert_threshold"`
}

// BudgetStatus shows today's spend against the policy.
type BudgetStatus struct {
	Day       string       `json:"day"`
	Policy    BudgetPolicy `json:"policy"`
	Used      float64      `json:"used"`
	Remaining float64      `json:"remaining"`
	UsedPct   float64      `json:"used_pct"`
	Alert     bool         `json:"alert"`
	Exceeded  bool         `json:"exceeded"`
}
