// Package stub runs an in-process support backend for local development
// and integration tests. It speaks the same discrete and channel protocol
// as the production backend with canned agent replies.
package stub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/deskhaus/deskchat/internal/domain"
	"github.com/deskhaus/deskchat/internal/middleware"
	"github.com/deskhaus/deskchat/internal/transport"
)

// Server is the stub support backend. It tracks per-process query counters
// so the analytics endpoint reports live numbers.
type Server struct {
	logger *slog.Logger

	mu           sync.Mutex
	totalQueries int
	totalLatency float64
	distribution map[string]int
}

// NewServer creates a stub backend.
func NewServer(logger *slog.Logger) *Server {
	return &Server{
		logger:       logger,
		distribution: make(map[string]int),
	}
}

// Routes builds the stub's HTTP router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Get("/health", s.handleHealth)
	r.Post("/api/v1/query", s.handleQuery)
	r.Get("/api/v1/analytics", s.handleAnalytics)
	r.Get("/ws/{sessionID}", s.handleChannel)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "deskchat stub backend",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var payload transport.QueryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(payload.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	reply := s.reply(payload, time.Now())
	s.logger.Info("Stub query processed",
		"agent_type", reply.AgentType,
		"session_id", payload.SessionID,
		"request_id", payload.RequestID)
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

// handleChannel upgrades to a websocket and answers each query frame with
// one ai_response frame.
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("Failed to accept websocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			s.logger.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	s.logger.Info("Channel opened", "session_id", sessionID, "ip", r.RemoteAddr)

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				s.logger.Info("Channel closed", "session_id", sessionID)
			} else {
				s.logger.Debug("Channel read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var payload transport.QueryPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			s.logger.Warn("Dropping malformed frame", "error", err, "session_id", sessionID)
			continue
		}

		reply := s.reply(payload, time.Now())
		reply.Type = "ai_response"
		if err := s.writeFrame(ctx, ws, reply); err != nil {
			s.logger.Debug("Channel write error", "error", err, "session_id", sessionID)
			return
		}
	}
}

func (s *Server) writeFrame(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

// reply builds a canned agent reply and records it in the counters.
func (s *Server) reply(payload transport.QueryPayload, started time.Time) transport.ReplyPayload {
	agentType := classify(payload.Query)

	var (
		response   string
		confidence float64
	)
	switch agentType {
	case "technical":
		response = "I see you're experiencing a technical issue. Let me troubleshoot this for you. Can you provide more details about when this problem started?"
		confidence = 0.90
	case "billing":
		response = "I understand you have a billing question. Let me help you with that. For customer " +
			payload.CustomerID + ", I can see your account details and assist with payment-related issues."
		confidence = 0.85
	default:
		response = "Thank you for contacting support. I'm here to help you with your inquiry. Let me connect you with the right specialist for your needs."
		confidence = 0.75
	}

	responseTime := time.Since(started).Seconds()

	s.mu.Lock()
	s.totalQueries++
	s.totalLatency += responseTime
	s.distribution[agentType]++
	s.mu.Unlock()

	return transport.ReplyPayload{
		Response:     response,
		AgentType:    agentType,
		Confidence:   &confidence,
		ResponseTime: responseTime,
	}
}

func (s *Server) snapshot() domain.AnalyticsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.AnalyticsSnapshot{
		TotalQueries:      int64(s.totalQueries),
		SatisfactionScore: 4.6,
		AgentDistribution: make(map[string]int, len(s.distribution)),
	}
	if s.totalQueries > 0 {
		snap.AvgResponseTimeSeconds = s.totalLatency / float64(s.totalQueries)
	}
	for agent, count := range s.distribution {
		snap.AgentDistribution[agent] = count
	}
	return snap
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

var (
	technicalPhrases = []string{
		"cannot log", "can't log", "unable to access", "won't load", "not loading",
		"application is", "app is", "showing error", "login issue", "technical issue",
	}
	billingPhrases = []string{
		"charged twice", "billed twice", "double charge", "cancel subscription",
		"how do i cancel", "want to cancel", "billing problem", "billing issue",
	}
	technicalKeywords = []string{
		"login", "log in", "sign in", "access", "password", "account", "error",
		"bug", "not working", "broken", "technical", "application", "app", "reset",
	}
	billingKeywords = []string{
		"billing", "payment", "charge", "charged", "invoice", "subscription",
		"refund", "cancel", "upgrade", "downgrade", "price", "cost", "twice",
		"double", "money",
	}
)

// classify scores the query against phrase and keyword lists. Phrases
// outweigh single keywords so "billing issue" beats a stray "app".
func classify(query string) string {
	q := strings.ToLower(query)

	var technicalScore, billingScore int
	for _, phrase := range technicalPhrases {
		if strings.Contains(q, phrase) {
			technicalScore += 5
		}
	}
	for _, phrase := range billingPhrases {
		if strings.Contains(q, phrase) {
			billingScore += 5
		}
	}
	for _, keyword := range technicalKeywords {
		if strings.Contains(q, keyword) {
			technicalScore++
		}
	}
	for _, keyword := range billingKeywords {
		if strings.Contains(q, keyword) {
			billingScore++
		}
	}

	switch {
	case technicalScore > billingScore && technicalScore > 0:
		return "technical"
	case billingScore > technicalScore && billingScore > 0:
		return "billing"
	case technicalScore == billingScore && technicalScore > 0:
		for _, word := range []string{"login", "password", "access", "account", "technical"} {
			if strings.Contains(q, word) {
				return "technical"
			}
		}
		for _, word := range []string{"billing", "charge", "payment", "subscription", "money"} {
			if strings.Contains(q, word) {
				return "billing"
			}
		}
	}
	return "general"
}
