package transport

import (
	"github.com/deskhaus/deskchat/internal/domain"
)

// Event is what the chat view observes. The stream is identical no matter
// which physical path served a turn.
type Event interface {
	event()
}

// TurnAppended reports a new entry in the conversation log.
type TurnAppended struct {
	Turn domain.Turn
}

// LoadingChanged reports that the pending flag flipped. LoadingChanged(true)
// follows every accepted send; LoadingChanged(false) follows on every exit
// path, success or failure.
type LoadingChanged struct {
	Loading bool
}

// ConnectionChanged reports a transport state transition.
type ConnectionChanged struct {
	State State
}

func (TurnAppended) event()      {}
func (LoadingChanged) event()    {}
func (ConnectionChanged) event() {}
