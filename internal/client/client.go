// Package client wires the session identity, transports, history store,
// and analytics poller into one support-chat client instance.
package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deskhaus/deskchat/internal/analytics"
	"github.com/deskhaus/deskchat/internal/config"
	"github.com/deskhaus/deskchat/internal/domain"
	"github.com/deskhaus/deskchat/internal/history"
	"github.com/deskhaus/deskchat/internal/identity"
	"github.com/deskhaus/deskchat/internal/transport"
)

// Client is one chat instance: a fresh session identity bound to a
// reconciled transport, with optional local history and analytics polling.
type Client struct {
	cfg     *config.Config
	logger  *slog.Logger
	session domain.Session

	backend    *transport.Backend
	reconciler *transport.Reconciler
	poller     *analytics.Poller
	store      history.Repository

	pollCancel context.CancelFunc
}

// New assembles a client from configuration. The session identity is
// minted here and stays fixed for the client's lifetime.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	session, err := identity.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session identity: %w", err)
	}

	backend := transport.NewBackend(cfg.BackendURL, cfg.RequestTimeout, logger)

	var store history.Repository
	if cfg.History.Enabled {
		store, err = history.NewSQLiteStore(cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
	}

	channelURL := ""
	if !cfg.ChannelDisabled {
		channelURL = cfg.ChannelURL(session.SessionID)
	}

	opts := transport.Options{
		ChannelURL:     channelURL,
		Priority:       cfg.Priority,
		DialTimeout:    cfg.DialTimeout,
		ReplyTimeout:   cfg.ReplyTimeout,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	}
	if store != nil {
		opts.Recorder = store
	}

	return &Client{
		cfg:        cfg,
		logger:     logger,
		session:    session,
		backend:    backend,
		reconciler: transport.NewReconciler(session, backend, opts),
		poller:     analytics.NewPoller(backend, cfg.AnalyticsInterval, logger),
		store:      store,
	}, nil
}

// Start connects the transport and begins analytics polling. The returned
// state reports which path the session landed on.
func (c *Client) Start(ctx context.Context) transport.State {
	state := c.reconciler.Start(ctx)

	pollCtx, cancel := context.WithCancel(context.Background())
	c.pollCancel = cancel
	go c.poller.Run(pollCtx)

	c.logger.Info("Client started",
		"customer_id", c.session.CustomerID,
		"session_id", c.session.SessionID,
		"state", state.String())
	return state
}

// Session returns the identity minted for this client instance.
func (c *Client) Session() domain.Session { return c.session }

// Events exposes the ordered conversation event stream.
func (c *Client) Events() <-chan transport.Event { return c.reconciler.Events() }

// Send submits one customer query.
func (c *Client) Send(ctx context.Context, text string) error {
	return c.reconciler.Send(ctx, text)
}

// State reports the current transport state.
func (c *Client) State() transport.State { return c.reconciler.State() }

// Pending reports whether a send is awaiting its reply.
func (c *Client) Pending() bool { return c.reconciler.Pending() }

// Turns returns a copy of the conversation log so far.
func (c *Client) Turns() []domain.Turn { return c.reconciler.Turns() }

// Analytics returns the latest polled snapshot, if any poll has succeeded.
func (c *Client) Analytics() (domain.AnalyticsSnapshot, bool) {
	return c.poller.Snapshot()
}

// History returns the local transcript store, or nil when history is
// disabled.
func (c *Client) History() history.Repository { return c.store }

// Close releases every resource the client owns. It is the single
// teardown path and is safe to call after a failed Start.
func (c *Client) Close() error {
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}

	err := c.reconciler.Close()

	if c.store != nil {
		if closeErr := c.store.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close history store: %w", closeErr)
		}
		c.store = nil
	}
	return err
}
