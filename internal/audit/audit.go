// Package audit implements an append-only audit trail of EventBus
// publications (spec §6.2's event taxonomy, kept durable for post-hoc
// inspection — the runtime itself is in-memory only, per the checkpoint
// package's explicit non-goal of persistence, but a host that wants a
// durable record of "what happened" can attach this subscriber).
//
// Grounded on the teacher's internal/schedule.Store: a SQLite-backed store
// opened with WAL mode and a busy timeout, migrated with a single CREATE
// TABLE IF NOT EXISTS statement, generalized here from scheduled-task rows
// to one row per bus event.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/playbooks-ai/playbooks-runtime/internal/eventbus"
)

// Logger is an append-only SQLite sink for bus events.
type Logger struct {
	db *sql.DB
}

// Open creates (or reopens) the audit database under dataDir.
func Open(dataDir string) (*Logger, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "audit.db")
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("audit: opening database: %w", err)
	}

	l := &Logger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: migrating database: %w", err)
	}
	return l, nil
}

func (l *Logger) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		occurred_at DATETIME NOT NULL,
		event_type TEXT NOT NULL,
		session_id TEXT,
		agent_id TEXT,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_agent ON audit_events(agent_id);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (l *Logger) Close() error { return l.db.Close() }

// Record appends one event as a row. Payload marshal failures are recorded
// as an empty-object payload rather than dropping the row, since the event
// itself (type/session/agent/timestamp) is still worth keeping.
func (l *Logger) Record(ev eventbus.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		payload = []byte("{}")
	}
	_, err = l.db.Exec(
		`INSERT INTO audit_events (id, occurred_at, event_type, session_id, agent_id, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), ev.Timestamp, string(ev.Type), ev.SessionID, ev.AgentID, string(payload),
	)
	return err
}

// Subscribe registers this logger as a wildcard listener on bus and returns
// a function that unsubscribes it. Record errors are swallowed (not
// returned to the bus) since a dropped audit row shouldn't surface as a
// handler error to every other subscriber's dispatch wait.
func (l *Logger) Subscribe(bus *eventbus.EventBus) (unsubscribe func()) {
	sub := bus.Subscribe(eventbus.Wildcard, eventbus.Sync(func(ctx context.Context, ev eventbus.Event) error {
		_ = l.Record(ev)
		return nil
	}))
	return func() { _ = bus.Unsubscribe(sub) }
}
