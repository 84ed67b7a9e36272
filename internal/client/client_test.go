package client

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/deskhaus/deskchat/internal/config"
	"github.com/deskhaus/deskchat/internal/domain"
	"github.com/deskhaus/deskchat/internal/stub"
	"github.com/deskhaus/deskchat/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	return &config.Config{
		BackendURL:        backendURL,
		Priority:          domain.PriorityMedium,
		DialTimeout:       5 * time.Second,
		ReplyTimeout:      5 * time.Second,
		RequestTimeout:    5 * time.Second,
		AnalyticsInterval: time.Hour,
		History: config.HistoryConfig{
			Enabled: true,
			DBPath:  filepath.Join(t.TempDir(), "deskchat.db"),
		},
		LogLevel: "info",
	}
}

func newRunningClient(t *testing.T, cfg *config.Config) *Client {
	t.Helper()
	c, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	c.Start(context.Background())
	return c
}

// waitTurn drains events until the next appended turn arrives.
func waitTurn(t *testing.T, c *Client) domain.Turn {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatal("Event stream closed while waiting for a turn")
			}
			if appended, isTurn := ev.(transport.TurnAppended); isTurn {
				return appended.Turn
			}
		case <-deadline:
			t.Fatal("Timed out waiting for a turn")
		}
	}
}

func TestClient_LiveConversation(t *testing.T) {
	ts := httptest.NewServer(stub.NewServer(testLogger()).Routes())
	defer ts.Close()

	c := newRunningClient(t, testConfig(t, ts.URL))
	if c.State() != transport.StateLive {
		t.Fatalf("Expected live state against a healthy backend, got %v", c.State())
	}

	// Connection notice lands first.
	notice := waitTurn(t, c)
	if notice.Kind() != domain.TurnSystem {
		t.Fatalf("Expected a system notice, got %v", notice.Kind())
	}

	if err := c.Send(context.Background(), "I cannot log into the application"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	user := waitTurn(t, c)
	if user.Kind() != domain.TurnUser {
		t.Fatalf("Expected the user turn first, got %v", user.Kind())
	}
	agent := waitTurn(t, c)
	if agent.Kind() != domain.TurnAgent {
		t.Fatalf("Expected an agent reply, got %v", agent.Kind())
	}
	if reply, ok := agent.(domain.AgentTurn); !ok || reply.AgentKind != "technical" {
		t.Errorf("Expected a technical agent reply, got %+v", agent)
	}
	if c.Pending() {
		t.Error("Expected no pending send after the reply")
	}
}

func TestClient_HistoryRecordsConversation(t *testing.T) {
	ts := httptest.NewServer(stub.NewServer(testLogger()).Routes())
	defer ts.Close()

	cfg := testConfig(t, ts.URL)
	c := newRunningClient(t, cfg)

	waitTurn(t, c) // connection notice
	if err := c.Send(context.Background(), "billing problem with my invoice"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	waitTurn(t, c) // user
	waitTurn(t, c) // agent

	// Recording is asynchronous.
	ctx := context.Background()
	var turns []domain.Turn
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var err error
		turns, err = c.History().Turns(ctx, c.Session().SessionID)
		if err != nil {
			t.Fatalf("Failed to load history: %v", err)
		}
		if len(turns) >= 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(turns) != 2 {
		t.Fatalf("Expected user and agent turns in history, got %d", len(turns))
	}
	if turns[0].Kind() != domain.TurnUser || turns[1].Kind() != domain.TurnAgent {
		t.Errorf("Expected user then agent, got %v then %v", turns[0].Kind(), turns[1].Kind())
	}
}

func TestClient_DegradedWhenChannelDisabled(t *testing.T) {
	ts := httptest.NewServer(stub.NewServer(testLogger()).Routes())
	defer ts.Close()

	cfg := testConfig(t, ts.URL)
	cfg.ChannelDisabled = true
	c := newRunningClient(t, cfg)

	if c.State() != transport.StateDegraded {
		t.Fatalf("Expected degraded state with the channel disabled, got %v", c.State())
	}

	if err := c.Send(context.Background(), "how do i cancel my subscription"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	waitTurn(t, c) // user
	agent := waitTurn(t, c)
	if reply, ok := agent.(domain.AgentTurn); !ok || reply.AgentKind != "billing" {
		t.Errorf("Expected a billing reply over the discrete path, got %+v", agent)
	}
}

func TestClient_DegradedWhenBackendDown(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.History.Enabled = false
	c := newRunningClient(t, cfg)

	if c.State() != transport.StateDegraded {
		t.Fatalf("Expected degraded state against an unreachable backend, got %v", c.State())
	}
	if c.History() != nil {
		t.Error("Expected no history store when disabled")
	}
}

func TestClient_FreshIdentityPerInstance(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.History.Enabled = false

	a, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer a.Close()
	b, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer b.Close()

	if a.Session().SessionID == b.Session().SessionID {
		t.Error("Expected distinct session ids across instances")
	}
	if a.Session().CustomerID == b.Session().CustomerID {
		t.Error("Expected distinct customer ids across instances")
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	c := newRunningClient(t, cfg)

	if err := c.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}
