package domain

// AnalyticsSnapshot is the aggregate the backend reports about the
// conversation system. Snapshots are immutable values: each poll replaces
// the previous snapshot wholesale, never merges into it.
type AnalyticsSnapshot struct {
	TotalQueries           int64          `json:"total_queries"`
	AvgResponseTimeSeconds float64        `json:"avg_response_time"`
	SatisfactionScore      float64        `json:"satisfaction_score"`
	AgentDistribution      map[string]int `json:"agent_distribution"`
}

// Clone returns a deep copy so a cached snapshot can be handed out without
// sharing the distribution map with callers.
func (s AnalyticsSnapshot) Clone() AnalyticsSnapshot {
	out := s
	if s.AgentDistribution != nil {
		out.AgentDistribution = make(map[string]int, len(s.AgentDistribution))
		for k, v := range s.AgentDistribution {
			out.AgentDistribution[k] = v
		}
	}
	return out
}
