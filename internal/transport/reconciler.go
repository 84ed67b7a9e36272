package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/deskhaus/deskchat/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrEmptyQuery rejects a send whose text is empty after trimming.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrSendPending rejects a send while another is awaiting its reply.
	ErrSendPending = errors.New("a send is already pending")
	// ErrClosed rejects operations on a torn-down reconciler.
	ErrClosed = errors.New("reconciler is closed")
)

// QueryBackend is the discrete-call surface the reconciler needs.
// *Backend implements it; tests use fakes.
type QueryBackend interface {
	Health(ctx context.Context) error
	Query(ctx context.Context, q QueryPayload) (*ReplyPayload, error)
}

// Recorder persists conversation turns. Recording failures are logged and
// never surface to the chat view.
type Recorder interface {
	Record(ctx context.Context, session domain.Session, turn domain.Turn) error
}

// Options configures a Reconciler.
type Options struct {
	// ChannelURL is the persistent-channel endpoint. Empty disables the
	// channel entirely; every send then uses discrete calls.
	ChannelURL string
	// Dialer opens the persistent channel. Defaults to DialWebSocket.
	Dialer Dialer
	// Priority tags every outbound query. Defaults to medium.
	Priority domain.Priority
	// DialTimeout bounds the channel open attempt. Defaults to 5s.
	DialTimeout time.Duration
	// ReplyTimeout bounds the wait for a live-path reply. Defaults to 30s.
	ReplyTimeout time.Duration
	// RequestTimeout bounds one discrete call. Defaults to 30s.
	RequestTimeout time.Duration
	// EventBuffer sizes the event stream. Defaults to 128.
	EventBuffer int
	// Recorder, when set, receives every user and agent turn.
	Recorder Recorder
	Logger   *slog.Logger
}

// Reconciler owns the one logical communication channel of a session.
// It presents Send plus a single ordered event stream, and internally
// chooses between the persistent channel and discrete calls. It is built
// for a single consumer; concurrent Send calls beyond the
// one-outstanding-request invariant are rejected, not queued.
type Reconciler struct {
	session domain.Session
	backend QueryBackend
	opts    Options
	logger  *slog.Logger

	events chan Event

	mu      sync.Mutex
	machine *Machine
	channel Channel
	pending bool
	// pendingLive records which path the pending send went out on, so a
	// late channel frame can never resolve a discrete-path query.
	pendingLive bool
	// gen increments on every accepted send. Replies and timeouts carry
	// the generation they belong to, so a late reply after a timeout (or
	// after teardown) is discarded instead of resolving the wrong query.
	gen     uint64
	nextSeq int64
	turns   []domain.Turn
	closed  bool

	pumpCancel context.CancelFunc
}

// NewReconciler creates a reconciler for one session. Call Start to attempt
// the persistent channel, then Send/Events, then Close exactly once.
func NewReconciler(session domain.Session, backend QueryBackend, opts Options) *Reconciler {
	if opts.Dialer == nil {
		opts.Dialer = DialWebSocket
	}
	if !opts.Priority.Valid() {
		opts.Priority = domain.PriorityMedium
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 30 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 128
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		session: session,
		backend: backend,
		opts:    opts,
		logger:  logger.With("session_id", session.SessionID),
		events:  make(chan Event, opts.EventBuffer),
		machine: NewMachine(),
	}
}

// Events returns the stream the chat view consumes. The channel is closed
// by Close; no event is ever delivered after that.
func (r *Reconciler) Events() <-chan Event {
	return r.events
}

// State returns the current transport state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine.State()
}

// Pending reports whether a send is awaiting its reply.
func (r *Reconciler) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Turns returns a copy of the conversation log.
func (r *Reconciler) Turns() []domain.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Turn, len(r.turns))
	copy(out, r.turns)
	return out
}

// Start moves Disconnected -> Connecting and attempts the persistent
// channel: a health probe gates the dial, and a failed or disabled dial
// degrades to discrete calls for the remainder of the session. Start
// returns the state the session settled in.
func (r *Reconciler) Start(ctx context.Context) State {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return StateDisconnected
	}
	if err := r.machine.To(StateConnecting); err != nil {
		r.mu.Unlock()
		r.logger.Warn("Start called twice", "error", err)
		return r.State()
	}
	r.emitLocked(ConnectionChanged{State: StateConnecting})
	r.mu.Unlock()

	if r.opts.ChannelURL == "" {
		r.logger.Info("Persistent channel disabled, using discrete calls")
		return r.degradeFromConnecting()
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.opts.DialTimeout)
	err := r.backend.Health(probeCtx)
	cancel()
	if err != nil {
		r.logger.Warn("Backend health probe failed, skipping persistent channel", "error", err)
		return r.degradeFromConnecting()
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.opts.DialTimeout)
	ch, err := r.opts.Dialer(dialCtx, r.opts.ChannelURL)
	cancel()
	if err != nil {
		r.logger.Warn("Persistent channel open failed, degrading", "error", err)
		return r.degradeFromConnecting()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		closeChannel(ch, r.logger)
		return StateDisconnected
	}
	if err := r.machine.To(StateLive); err != nil {
		r.mu.Unlock()
		closeChannel(ch, r.logger)
		return r.State()
	}
	r.channel = ch
	pumpCtx, pumpCancel := context.WithCancel(context.Background())
	r.pumpCancel = pumpCancel
	r.emitLocked(ConnectionChanged{State: StateLive})
	r.appendTurnLocked(domain.SystemTurn{
		Content: "Connected to live support.",
	})
	r.mu.Unlock()

	r.logger.Info("Persistent channel live", "url", r.opts.ChannelURL)
	go r.receivePump(pumpCtx, ch)
	return StateLive
}

// Send dispatches one query. It appends the user turn and toggles loading
// synchronously, then resolves asynchronously through the event stream:
// exactly one agent turn or one error system turn follows, and loading is
// cleared on every exit path.
func (r *Reconciler) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyQuery
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.pending {
		r.mu.Unlock()
		return ErrSendPending
	}

	r.pending = true
	r.gen++
	gen := r.gen
	r.appendTurnLocked(domain.UserTurn{Content: text})
	r.emitLocked(LoadingChanged{Loading: true})

	payload := QueryPayload{
		Query:      text,
		CustomerID: r.session.CustomerID,
		SessionID:  r.session.SessionID,
		Priority:   string(r.opts.Priority),
		RequestID:  uuid.NewString(),
	}
	live := r.machine.State() == StateLive && r.channel != nil
	r.pendingLive = live
	ch := r.channel
	r.mu.Unlock()

	r.logger.Debug("Dispatching query", "request_id", payload.RequestID, "live", live)

	if live {
		if err := ch.Send(ctx, payload); err != nil {
			r.logger.Warn("Channel write failed", "request_id", payload.RequestID, "error", err)
			r.channelLost(err)
			return nil
		}
		// The timer is not stopped on resolution; a resolved generation
		// makes the expiry a no-op.
		time.AfterFunc(r.opts.ReplyTimeout, func() {
			r.expireLiveReply(gen, payload.RequestID)
		})
		return nil
	}

	go r.discreteCall(payload, gen)
	return nil
}

// Close tears the session down: the persistent channel is released, the
// event stream is closed, and no further events are delivered even if the
// backend sends a late reply.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ch := r.channel
	r.channel = nil
	cancel := r.pumpCancel
	r.pumpCancel = nil
	// The final transition is internal; a disposed consumer observes nothing.
	if r.machine.State() != StateDisconnected {
		if err := r.machine.To(StateDisconnected); err != nil {
			r.logger.Debug("Teardown transition skipped", "error", err)
		}
	}
	close(r.events)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		closeChannel(ch, r.logger)
	}
	r.logger.Info("Session transport closed")
	return nil
}

// receivePump converts inbound channel frames into agent turns. The
// channel is exclusive to this session and sends are serialized, so the
// next inbound reply always belongs to the pending query.
func (r *Reconciler) receivePump(ctx context.Context, ch Channel) {
	for {
		reply, err := ch.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.channelLost(err)
			return
		}
		r.resolveReply(reply)
	}
}

func (r *Reconciler) resolveReply(reply *ReplyPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if !r.pending || !r.pendingLive {
		r.logger.Debug("Discarding unsolicited reply", "agent_kind", reply.AgentType)
		return
	}

	r.pending = false
	turn := r.appendTurnLocked(reply.AgentTurn(0, time.Now()))
	r.emitLocked(LoadingChanged{Loading: false})

	if at, ok := turn.(domain.AgentTurn); ok {
		r.logger.Info("Reply received",
			"agent_kind", at.AgentKind,
			"latency_seconds", at.LatencySeconds,
		)
	}
}

// expireLiveReply fires when a live-path reply never arrived. A channel
// that swallowed a reply can no longer be trusted for positional
// correlation, so the session degrades as well.
func (r *Reconciler) expireLiveReply(gen uint64, requestID string) {
	r.mu.Lock()
	if r.closed || !r.pending || r.gen != gen {
		r.mu.Unlock()
		return
	}

	r.logger.Warn("Live reply timed out", "request_id", requestID, "timeout", r.opts.ReplyTimeout)
	r.pending = false
	r.appendTurnLocked(domain.SystemTurn{
		Content: fmt.Sprintf("No reply within %s. Switching to direct requests; please try again.", r.opts.ReplyTimeout),
		Failure: true,
	})
	r.emitLocked(LoadingChanged{Loading: false})

	ch := r.channel
	r.channel = nil
	cancel := r.pumpCancel
	r.pumpCancel = nil
	if r.machine.State() == StateLive {
		if err := r.machine.To(StateDegraded); err != nil {
			r.logger.Warn("Degrade transition failed", "error", err)
		} else {
			r.emitLocked(ConnectionChanged{State: StateDegraded})
		}
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		closeChannel(ch, r.logger)
	}
}

// channelLost handles an unexpected drop of the live channel. Future sends
// use discrete calls; there is no automatic reconnect.
func (r *Reconciler) channelLost(cause error) {
	r.mu.Lock()
	if r.closed || r.machine.State() != StateLive {
		r.mu.Unlock()
		return
	}

	r.logger.Warn("Persistent channel lost", "error", cause)
	ch := r.channel
	r.channel = nil
	cancel := r.pumpCancel
	r.pumpCancel = nil
	if err := r.machine.To(StateDegraded); err != nil {
		r.logger.Warn("Degrade transition failed", "error", err)
	} else {
		r.emitLocked(ConnectionChanged{State: StateDegraded})
	}

	if r.pending {
		// The in-flight query can never be answered on this channel.
		r.pending = false
		r.appendTurnLocked(domain.SystemTurn{
			Content: "Live support connection lost before a reply arrived. Switching to direct requests; please try again.",
			Failure: true,
		})
		r.emitLocked(LoadingChanged{Loading: false})
	} else {
		r.appendTurnLocked(domain.SystemTurn{
			Content: "Live support connection lost. Switching to direct requests.",
		})
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		closeChannel(ch, r.logger)
	}
}

// discreteCall issues the fallback POST and resolves the pending send.
func (r *Reconciler) discreteCall(payload QueryPayload, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.RequestTimeout)
	defer cancel()

	reply, err := r.backend.Query(ctx, payload)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.pending || r.gen != gen {
		return
	}
	r.pending = false

	if err != nil {
		r.logger.Warn("Discrete call failed", "request_id", payload.RequestID, "error", err)
		r.appendTurnLocked(domain.SystemTurn{
			Content: "Request failed: " + err.Error() + ". Please try again.",
			Failure: true,
		})
		r.emitLocked(LoadingChanged{Loading: false})
		return
	}

	r.appendTurnLocked(reply.AgentTurn(0, time.Now()))
	r.emitLocked(LoadingChanged{Loading: false})
}

// appendTurnLocked assigns the next sequence number and timestamp, appends
// the turn, emits TurnAppended, and hands user/agent turns to the recorder.
// Callers hold r.mu.
func (r *Reconciler) appendTurnLocked(turn domain.Turn) domain.Turn {
	r.nextSeq++
	now := time.Now()

	switch t := turn.(type) {
	case domain.UserTurn:
		t.ID = r.nextSeq
		t.CreatedAt = now
		turn = t
	case domain.AgentTurn:
		t.ID = r.nextSeq
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		turn = t
	case domain.SystemTurn:
		t.ID = r.nextSeq
		t.CreatedAt = now
		turn = t
	}

	r.turns = append(r.turns, turn)
	r.emitLocked(TurnAppended{Turn: turn})

	if r.opts.Recorder != nil && turn.Kind() != domain.TurnSystem {
		go r.record(turn)
	}
	return turn
}

func (r *Reconciler) record(turn domain.Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.opts.Recorder.Record(ctx, r.session, turn); err != nil {
		r.logger.Warn("Failed to record turn", "seq", turn.Seq(), "error", err)
	}
}

// emitLocked delivers events in production order. The stream is buffered;
// if the consumer has fallen impossibly far behind, the event is dropped
// with a warning rather than deadlocking teardown. Callers hold r.mu.
func (r *Reconciler) emitLocked(ev Event) {
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("Event stream full, dropping event", "event", fmt.Sprintf("%T", ev))
	}
}

func (r *Reconciler) degradeFromConnecting() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return StateDisconnected
	}
	if err := r.machine.To(StateDegraded); err != nil {
		r.logger.Warn("Degrade transition failed", "error", err)
		return r.machine.State()
	}
	r.emitLocked(ConnectionChanged{State: StateDegraded})
	return StateDegraded
}

func closeChannel(ch Channel, logger *slog.Logger) {
	if err := ch.Close(); err != nil {
		logger.Debug("Failed to close channel", "error", err)
	}
}
