// Package transport reconciles one logical chat session onto whichever
// physical path the backend offers: a persistent websocket channel when it
// can be opened, discrete HTTP calls otherwise. The caller observes a
// single ordered event stream either way.
package transport

import (
	"time"

	"github.com/deskhaus/deskchat/internal/domain"
)

// QueryPayload is the message frame sent to the backend. The same shape is
// used on the persistent channel and as the discrete-call request body.
type QueryPayload struct {
	Query      string `json:"query"`
	CustomerID string `json:"customer_id"`
	SessionID  string `json:"session_id"`
	Priority   string `json:"priority"`
	// RequestID is generated client-side for logging and timeout
	// bookkeeping. The backend does not echo it; on-the-wire correlation
	// is positional (one reply per request, sends serialized).
	RequestID string `json:"request_id,omitempty"`
}

// ReplyPayload mirrors the backend's ai_response frame and the discrete
// call's 200 body.
type ReplyPayload struct {
	Type         string   `json:"type,omitempty"`
	Response     string   `json:"response"`
	AgentType    string   `json:"agent_type"`
	Confidence   *float64 `json:"confidence,omitempty"`
	ResponseTime float64  `json:"response_time"`
}

// AgentTurn converts a reply into a conversation turn with the given
// sequence number.
func (p *ReplyPayload) AgentTurn(seq int64, at time.Time) domain.AgentTurn {
	return domain.AgentTurn{
		ID:             seq,
		Content:        p.Response,
		CreatedAt:      at,
		AgentKind:      p.AgentType,
		Confidence:     p.Confidence,
		LatencySeconds: p.ResponseTime,
	}
}
