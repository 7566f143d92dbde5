// Package eventlog is a buffered SQLite writer for postmortem diagnosis
// of FSM, position and button-lamp events, adapted from the teacher's
// internal/audit.BufferedLogger: batched inserts, a periodic flush
// ticker, no HMAC hash chain (there is no tamper-evidence requirement
// here, see DESIGN.md). It is strictly a history trail: nothing in
// liftd ever reads this database back to reconstruct RequestTable state
// on boot (spec.md's Non-goal on persisting internal-call state across
// restarts).
package eventlog

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"
)

// Event is one logged record. cmd/liftd writes one per FSM observer
// callback: button/lamp events carry the request kind ("CallUp",
// "CallDown", "Internal") and Status "button"; FSM-state and position
// events carry Kind "fsm" or "position" and the FSM state as Status.
// Assignment decisions (stop/continue/reverse) are not logged.
type Event struct {
	Timestamp int64
	Kind      string // request kind, or the observer event name
	Floor     int
	Status    string // "button", or the FSM state name
	Detail    string // free-form context, e.g. "position"
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	kind      TEXT NOT NULL,
	floor     INTEGER NOT NULL,
	status    TEXT NOT NULL,
	detail    TEXT NOT NULL
);`

// Logger buffers Events and flushes them to SQLite in batches, the same
// trade the teacher's BufferedLogger makes for audit rows: a single
// batch INSERT transaction is far cheaper than one write per event.
type Logger struct {
	db            *sql.DB
	maxBuffer     int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []Event

	stopChan chan struct{}
}

// Open opens (creating if necessary) a SQLite database at path and
// returns a Logger ready to Start.
func Open(path string, maxBuffer int, flushInterval time.Duration) (*Logger, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: create schema: %w", err)
	}
	if maxBuffer <= 0 {
		maxBuffer = 50
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Logger{
		db:            db,
		maxBuffer:     maxBuffer,
		flushInterval: flushInterval,
		buffer:        make([]Event, 0, maxBuffer),
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins the background flush goroutine.
func (l *Logger) Start() {
	go func() {
		ticker := time.NewTicker(l.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := l.Flush(); err != nil {
					log.Printf("eventlog: periodic flush: %v", err)
				}
			case <-l.stopChan:
				if err := l.Flush(); err != nil {
					log.Printf("eventlog: final flush: %v", err)
				}
				return
			}
		}
	}()
}

// Stop flushes any buffered events and stops the background goroutine.
func (l *Logger) Stop() {
	close(l.stopChan)
}

// Close stops the logger and closes the underlying database handle.
func (l *Logger) Close() error {
	l.Stop()
	return l.db.Close()
}

// Log buffers an event, flushing immediately if the buffer is full.
func (l *Logger) Log(e Event) error {
	l.mu.Lock()
	l.buffer = append(l.buffer, e)
	needFlush := len(l.buffer) >= l.maxBuffer
	l.mu.Unlock()

	if needFlush {
		return l.Flush()
	}
	return nil
}

// Flush writes every buffered event to SQLite in a single transaction.
func (l *Logger) Flush() error {
	l.mu.Lock()
	if len(l.buffer) == 0 {
		l.mu.Unlock()
		return nil
	}
	events := make([]Event, len(l.buffer))
	copy(events, l.buffer)
	l.buffer = l.buffer[:0]
	l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("eventlog: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO events (timestamp, kind, floor, status, detail) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("eventlog: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(e.Timestamp, e.Kind, e.Floor, e.Status, e.Detail); err != nil {
			log.Printf("eventlog: insert failed: %v", err)
			continue
		}
	}
	return tx.Commit()
}
