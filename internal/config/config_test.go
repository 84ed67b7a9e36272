package config

import (
	"testing"
	"time"

	"github.com/deskhaus/deskchat/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BackendURL != "http://localhost:8000" {
		t.Errorf("Expected default backend URL, got %q", cfg.BackendURL)
	}
	if cfg.Priority != domain.PriorityMedium {
		t.Errorf("Expected medium priority, got %q", cfg.Priority)
	}
	if cfg.ReplyTimeout != 30*time.Second {
		t.Errorf("Expected 30s reply timeout, got %v", cfg.ReplyTimeout)
	}
	if !cfg.History.Enabled {
		t.Error("Expected history enabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://support.example.com")
	t.Setenv("DESKCHAT_PRIORITY", "high")
	t.Setenv("WS_DISABLED", "true")
	t.Setenv("REPLY_TIMEOUT", "10s")
	t.Setenv("ANALYTICS_INTERVAL", "45")
	t.Setenv("HISTORY_DISABLED", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BackendURL != "https://support.example.com" {
		t.Errorf("Unexpected backend URL %q", cfg.BackendURL)
	}
	if cfg.Priority != domain.PriorityHigh {
		t.Errorf("Expected high priority, got %q", cfg.Priority)
	}
	if !cfg.ChannelDisabled {
		t.Error("Expected channel disabled")
	}
	if cfg.ReplyTimeout != 10*time.Second {
		t.Errorf("Expected 10s reply timeout, got %v", cfg.ReplyTimeout)
	}
	if cfg.AnalyticsInterval != 45*time.Second {
		t.Errorf("Expected bare-number interval read as seconds, got %v", cfg.AnalyticsInterval)
	}
	if cfg.History.Enabled {
		t.Error("Expected history disabled")
	}
}

func TestLoad_InvalidPriority(t *testing.T) {
	t.Setenv("DESKCHAT_PRIORITY", "urgent")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for invalid priority")
	}
}

func TestLoad_InvalidBackendURL(t *testing.T) {
	t.Setenv("BACKEND_URL", "localhost:8000")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for URL without scheme")
	}
}

func TestChannelURL(t *testing.T) {
	tests := []struct {
		backend string
		want    string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws/sess_abc"},
		{"http://localhost:8000/", "ws://localhost:8000/ws/sess_abc"},
		{"https://support.example.com", "wss://support.example.com/ws/sess_abc"},
	}

	for _, tt := range tests {
		cfg := &Config{BackendURL: tt.backend}
		if got := cfg.ChannelURL("sess_abc"); got != tt.want {
			t.Errorf("ChannelURL(%q) = %q, want %q", tt.backend, got, tt.want)
		}
	}
}
