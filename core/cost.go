package core

import "time"

// CostRecord is the per-session cost accounting entry. Records are appended
// once per completed session and never rewritten, so readers may aggregate
// without locking.
type CostRecord struct {
	SessionID    string    `json:"session_id"`
	TotalCost    float64   `json:"total_cost"`
	TotalTokens  int       `json:"total_tokens"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Model        string    `json:"model"`
	Timestamp    time.Time `json:"timestamp"`
}

// CostSummary is the cumulative aggregate of a cost ledger.
type CostSummary struct {
	TotalCost    float64 `json:"total_cost"`
	TotalTokens  int     `json:"total_tokens"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Sessions     int     `json:"sessions"`
}

// Summarize folds a record slice into its cumulative summary.
func Summarize(records []CostRecord) CostSummary {
	var sum CostSummary
	for _, rec := range records {
		sum.TotalCost += rec.TotalCost
		sum.TotalTokens += rec.TotalTokens
		sum.InputTokens += rec.InputTokens
		sum.OutputTokens += rec.OutputTokens
		sum.Sessions++
	}
	return sum
}

// CostStore persists the running cost ledger. The engine requires only
// append/read-all semantics; durability is the implementation's concern.
// Only the active session's controller appends (single-writer invariant).
type CostStore interface {
	Append(record CostRecord) error
	ReadAll() ([]CostRecord, error)
}
