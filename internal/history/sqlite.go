package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deskhaus/deskchat/internal/domain"
	"github.com/deskhaus/deskchat/internal/shared"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	session_id      TEXT NOT NULL,
	customer_id     TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	kind            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	agent_kind      TEXT,
	confidence      REAL,
	latency_seconds REAL,
	failure         INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_turns_session_created ON turns(session_id, created_at);
`

// SQLiteStore implements Repository backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the history database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode lets the recorder goroutine write while reads are in flight.
	dsn := fmt.Sprintf("file:%s?_journal=WAL&_sync=NORMAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Record appends one turn of a session's transcript. Re-recording the
// same (session, seq) pair is a no-op.
func (s *SQLiteStore) Record(ctx context.Context, session domain.Session, turn domain.Turn) error {
	var (
		agentKind      sql.NullString
		confidence     sql.NullFloat64
		latencySeconds sql.NullFloat64
		failure        int
	)

	switch t := turn.(type) {
	case domain.AgentTurn:
		agentKind = sql.NullString{String: t.AgentKind, Valid: t.AgentKind != ""}
		if t.Confidence != nil {
			confidence = sql.NullFloat64{Float64: *t.Confidence, Valid: true}
		}
		latencySeconds = sql.NullFloat64{Float64: t.LatencySeconds, Valid: true}
	case domain.SystemTurn:
		if t.Failure {
			failure = 1
		}
	}

	query := `
		INSERT INTO turns (session_id, customer_id, seq, kind, content, created_at,
			agent_kind, confidence, latency_seconds, failure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, seq) DO NOTHING
	`

	exec := func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.SessionID, session.CustomerID, turn.Seq(),
			string(turn.Kind()), turn.Text(), turn.At().Unix(),
			agentKind, confidence, latencySeconds, failure)
		return err
	}

	err := exec()
	if shared.IsSQLiteConflictError(err) {
		time.Sleep(50 * time.Millisecond)
		err = exec()
	}
	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

// Turns retrieves a session's transcript in sequence order.
func (s *SQLiteStore) Turns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	query := `
		SELECT seq, kind, content, created_at, agent_kind, confidence, latency_seconds, failure
		FROM turns
		WHERE session_id = ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var (
			seq            int64
			kind           string
			content        string
			createdAt      int64
			agentKind      sql.NullString
			confidence     sql.NullFloat64
			latencySeconds sql.NullFloat64
			failure        int
		)
		if err := rows.Scan(&seq, &kind, &content, &createdAt,
			&agentKind, &confidence, &latencySeconds, &failure); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}

		at := time.Unix(createdAt, 0)
		switch domain.TurnKind(kind) {
		case domain.TurnUser:
			turns = append(turns, domain.UserTurn{ID: seq, Content: content, CreatedAt: at})
		case domain.TurnAgent:
			agent := domain.AgentTurn{
				ID:        seq,
				Content:   content,
				CreatedAt: at,
				AgentKind: agentKind.String,
			}
			if confidence.Valid {
				c := confidence.Float64
				agent.Confidence = &c
			}
			if latencySeconds.Valid {
				agent.LatencySeconds = latencySeconds.Float64
			}
			turns = append(turns, agent)
		case domain.TurnSystem:
			turns = append(turns, domain.SystemTurn{ID: seq, Content: content, CreatedAt: at, Failure: failure != 0})
		default:
			return nil, fmt.Errorf("unknown turn kind %q at seq %d", kind, seq)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}

	return turns, nil
}

// Sessions lists recorded conversations, most recent activity first.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]SessionInfo, error) {
	query := `
		SELECT session_id, customer_id, MIN(created_at), MAX(created_at), COUNT(*)
		FROM turns
		GROUP BY session_id, customer_id
		ORDER BY MAX(created_at) DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var (
			info       SessionInfo
			started    int64
			lastActive int64
		)
		if err := rows.Scan(&info.SessionID, &info.CustomerID, &started, &lastActive, &info.TurnCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		info.StartedAt = time.Unix(started, 0)
		info.LastActivity = time.Unix(lastActive, 0)
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
