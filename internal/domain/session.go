// Package domain contains core domain types for the deskchat client.
package domain

// Session is the stable identity pairing attached to every outbound query.
// It is created once per client instance and never mutated.
type Session struct {
	CustomerID string
	SessionID  string
}

// Priority is the urgency tag carried on every outbound query.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the priorities the backend accepts.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}
