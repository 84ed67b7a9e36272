package domain

import (
	"time"
)

// TurnKind discriminates the turn variants in the conversation log.
type TurnKind string

const (
	// TurnUser is a query typed by the customer.
	TurnUser TurnKind = "user"
	// TurnAgent is a reply produced by the backend agent.
	TurnAgent TurnKind = "agent"
	// TurnSystem is a connection or lifecycle notice. System turns are not
	// part of the logical conversation.
	TurnSystem TurnKind = "system"
)

// Turn is one atomic entry in the conversation log. The concrete type is
// one of UserTurn, AgentTurn, or SystemTurn. Turns are append-only and
// Seq is monotonically non-decreasing in creation order within a session.
type Turn interface {
	Seq() int64
	Kind() TurnKind
	Text() string
	At() time.Time
}

// UserTurn is a query the customer submitted.
type UserTurn struct {
	ID        int64
	Content   string
	CreatedAt time.Time
}

func (t UserTurn) Seq() int64     { return t.ID }
func (t UserTurn) Kind() TurnKind { return TurnUser }
func (t UserTurn) Text() string   { return t.Content }
func (t UserTurn) At() time.Time  { return t.CreatedAt }

// AgentTurn is a reply from the backend agent. Confidence is nil when the
// backend did not score the reply.
type AgentTurn struct {
	ID             int64
	Content        string
	CreatedAt      time.Time
	AgentKind      string
	Confidence     *float64
	LatencySeconds float64
}

func (t AgentTurn) Seq() int64     { return t.ID }
func (t AgentTurn) Kind() TurnKind { return TurnAgent }
func (t AgentTurn) Text() string   { return t.Content }
func (t AgentTurn) At() time.Time  { return t.CreatedAt }

// SystemTurn is a lifecycle notice. Failure marks turns that report an
// error to the customer.
type SystemTurn struct {
	ID        int64
	Content   string
	CreatedAt time.Time
	Failure   bool
}

func (t SystemTurn) Seq() int64     { return t.ID }
func (t SystemTurn) Kind() TurnKind { return TurnSystem }
func (t SystemTurn) Text() string   { return t.Content }
func (t SystemTurn) At() time.Time  { return t.CreatedAt }

// IsFailure reports whether t is a system turn carrying an error notice.
func IsFailure(t Turn) bool {
	st, ok := t.(SystemTurn)
	return ok && st.Failure
}
