package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ffneuron/neuron/pkg/cost"
	"github.com/ffneuron/neuron/pkg/models"
	"github.com/ffneuron/neuron/pkg/personas"
	"github.com/ffneuron/neuron/pkg/voicekey"
)

// formatBreakdown formats a cost breakdown as text tables.
func formatBreakdown(b models.CostBreakdown) string {
	if b.Events == 0 {
		return "No cost events found."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Cost %s to %s\n", b.Since.Format("2006-01-02"), b.Until.Format("2006-01-02"))
	fmt.Fprintf(&sb, "  Total:         $%.4f over %s events\n", b.Total, humanize.Comma(b.Events))
	fmt.Fprintf(&sb, "  Cache hits:    %s\n", humanize.Comma(b.CacheHits))
	fmt.Fprintf(&sb, "  Cache savings: $%.4f\n\n", b.CacheSavings)

	writeMap(&sb, "Service", b.ByService)
	sb.WriteString("\n")
	writeMap(&sb, "Operation", b.ByOperation)
	return sb.String()
}

func writeMap(sb *strings.Builder, title string, m map[string]float64) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(sb, "%-16s %12s\n", title, "Cost")
	sb.WriteString(strings.Repeat("-", 29) + "\n")
	for _, k := range keys {
		fmt.Fprintf(sb, "%-16s %12.4f\n", k, m[k])
	}
}

// formatEvents formats cost events as a text table.
func formatEvents(events []models.CostEvent) string {
	if len(events) == 0 {
		return "No cost events found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-12s %-14s %-10s %10s %10s\n",
		"Time", "Service", "Operation", "Agent", "Cost", "Saved")
	b.WriteString(strings.Repeat("-", 81) + "\n")
	for _, e := range events {
		fmt.Fprintf(&b, "%-20s %-12s %-14s %-10s %10.4f %10.4f\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Service, e.Operation, e.Agent, e.Cost, e.Saved)
	}
	return b.String()
}

// formatUserCosts formats one user's spend as text.
func formatUserCosts(uc models.UserCosts) string {
	if uc.Events == 0 {
		return fmt.Sprintf("No cost data for user %s since %s.", uc.UserID, uc.Since.Format("2006-01-02"))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "User %s since %s\n\n", uc.UserID, uc.Since.Format("2006-01-02"))
	fmt.Fprintf(&b, "Total spend:   $%.4f\n", uc.Total)
	fmt.Fprintf(&b, "Events:        %d\n", uc.Events)
	fmt.Fprintf(&b, "Debates:       %d\n\n", uc.Debates)
	writeMap(&b, "By day", uc.ByDay)
	return b.String()
}

// formatBudgetStatus formats the daily budget as text.
func formatBudgetStatus(s models.BudgetStatus) string {
	if s.Policy.DailyLimit <= 0 {
		return fmt.Sprintf("No daily limit set. Spent today (%s): $%.2f\n", s.Day, s.Used)
	}
	state := "ok"
	switch {
	case s.Exceeded:
		state = "EXCEEDED"
	case s.Alert:
		state = "ALERT"
	}
	return fmt.Sprintf("Budget %s\n"+
		"  Limit:     $%.2f\n"+
		"  Used:      $%.2f (%.1f%%)\n"+
		"  Remaining: $%.2f\n"+
		"  Status:    %s\n",
		s.Day, s.Policy.DailyLimit, s.Used, s.UsedPct*100, s.Remaining, state)
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(name string, stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	out := fmt.Sprintf("%s Cache (%s)\n"+
		"  Entries:  %s\n"+
		"  Size:     %s\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		name, stats.Backend, humanize.Comma(stats.Entries), humanize.Bytes(uint64(stats.Bytes)),
		stats.Hits, stats.Misses, hitRate)
	for _, class := range []models.StorageClass{models.ClassStandard, models.ClassNearline} {
		if n, ok := stats.Classes[class]; ok {
			out += fmt.Sprintf("  %-9s %d\n", string(class)+":", n)
		}
	}
	return out
}

func formatChoice(agent, emotion string, c models.ProviderChoice) string {
	if emotion == "" {
		emotion = "*"
	}
	return fmt.Sprintf("%s/%s -> %s %s voice %q\n", agent, emotion, c.Provider, c.Tier, c.VoiceID)
}

func formatKey(k voicekey.Key) string {
	return fmt.Sprintf("Key:  %s\nPath: %s\nText: %q\n", k.String(), k.Path(), k.Text)
}

func formatEstimate(agents []string, turns int, e models.DebateEstimate) string {
	return fmt.Sprintf("Debate estimate (%s, %d turns)\n"+
		"  LLM:     $%.4f\n"+
		"  Voice:   $%.4f\n"+
		"  Savings: $%.4f\n"+
		"  Total:   $%.4f\n",
		strings.Join(agents, ", "), turns, e.LLM, e.Voice, e.Savings, e.Total)
}

func formatPersonas(ps []personas.Persona, sel cost.Selector) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-14s %-12s %-10s %s\n", "ID", "Name", "Provider", "Tier", "Style")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, p := range ps {
		provider, tier := "-", "-"
		if sel != nil {
			c := sel.Select(p.ID, "")
			provider, tier = string(c.Provider), string(c.Tier)
		}
		fmt.Fprintf(&b, "%-10s %-14s %-12s %-10s %s\n", p.ID, p.Name, provider, tier, p.DebateStyle)
	}
	return b.String()
}
