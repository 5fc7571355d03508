// Package store persists requests, outcomes, and post-mortems to an
// embedded SQLite database. The orchestration core treats persistence as
// fire-and-forget: write failures are logged and never propagated into the
// request path.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"aeon/internal/ledger"
	"aeon/internal/logging"
	"aeon/internal/postmortem"
	"aeon/internal/types"
)

// Store is the embedded SQLite persistence layer.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// RequestRecord is one persisted request row.
type RequestRecord struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// New opens (or creates) the database at path and initializes the schema.
func New(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.New")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Store("Store ready at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id           TEXT PRIMARY KEY,
		text         TEXT NOT NULL,
		submitted_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outcomes (
		request_id    TEXT PRIMARY KEY,
		score         REAL NOT NULL,
		catastrophic  INTEGER NOT NULL,
		payload       TEXT NOT NULL,
		completed_at  TIMESTAMP NOT NULL,
		FOREIGN KEY (request_id) REFERENCES requests(id)
	);

	CREATE TABLE IF NOT EXISTS post_mortems (
		id          TEXT PRIMARY KEY,
		request_id  TEXT NOT NULL,
		severity    TEXT NOT NULL,
		root_cause  TEXT NOT NULL,
		payload     TEXT NOT NULL,
		created_at  TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		ts         TIMESTAMP NOT NULL,
		type       TEXT NOT NULL,
		actor      TEXT NOT NULL,
		payload    TEXT NOT NULL,
		hash       TEXT NOT NULL,
		prev_hash  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_score ON outcomes(score);
	CREATE INDEX IF NOT EXISTS idx_post_mortems_request ON post_mortems(request_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRequest persists a submitted request. Failures are logged, not
// returned.
func (s *Store) SaveRequest(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO requests (id, text, submitted_at) VALUES (?, ?, ?)",
		id, text, time.Now(),
	)
	if err != nil {
		logging.Store("SaveRequest %s failed: %v", id, err)
	}
}

// SaveOutcome persists a request outcome.
func (s *Store) SaveOutcome(outcome types.UserOutcome) {
	payload, err := json.Marshal(outcome)
	if err != nil {
		logging.Store("SaveOutcome %s marshal failed: %v", outcome.RequestID, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO outcomes (request_id, score, catastrophic, payload, completed_at) VALUES (?, ?, ?, ?, ?)",
		outcome.RequestID, outcome.Score, boolToInt(outcome.Catastrophic), string(payload), outcome.CompletedAt,
	)
	if err != nil {
		logging.Store("SaveOutcome %s failed: %v", outcome.RequestID, err)
	}
}

// SavePostMortem persists a post-mortem record.
func (s *Store) SavePostMortem(pm postmortem.PostMortem) {
	payload, err := json.Marshal(pm)
	if err != nil {
		logging.Store("SavePostMortem %s marshal failed: %v", pm.ID, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO post_mortems (id, request_id, severity, root_cause, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		pm.ID, pm.RequestID, string(pm.Severity), pm.RootCause, string(payload), pm.Timestamp,
	)
	if err != nil {
		logging.Store("SavePostMortem %s failed: %v", pm.ID, err)
	}
}

// SaveLedgerEntries appends new ledger entries, skipping IDs already stored.
// Hashes are stored as decimal strings because SQLite integers are signed.
func (s *Store) SaveLedgerEntries(entries []ledger.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO ledger_entries (id, ts, type, actor, payload, hash, prev_hash) VALUES (?, ?, ?, ?, ?, ?, ?)",
			e.ID, e.Timestamp, string(e.Type), string(e.Actor), e.Payload,
			strconv.FormatUint(e.Hash, 10), strconv.FormatUint(e.PrevHash, 10),
		)
		if err != nil {
			logging.Store("SaveLedgerEntries %s failed: %v", e.ID, err)
			return
		}
	}
}

// LedgerEntries loads the persisted chain in append order.
func (s *Store) LedgerEntries() ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT id, ts, type, actor, payload, hash, prev_hash FROM ledger_entries ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var typ, actor, hash, prevHash string
		if err := rows.Scan(&e.ID, &e.Timestamp, &typ, &actor, &e.Payload, &hash, &prevHash); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		e.Type = ledger.EventType(typ)
		e.Actor = types.AgentRole(actor)
		if e.Hash, err = strconv.ParseUint(hash, 10, 64); err != nil {
			return nil, fmt.Errorf("failed to parse ledger hash: %w", err)
		}
		if e.PrevHash, err = strconv.ParseUint(prevHash, 10, 64); err != nil {
			return nil, fmt.Errorf("failed to parse ledger prev hash: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Requests returns all persisted requests, newest first.
func (s *Store) Requests() ([]RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT id, text, submitted_at FROM requests ORDER BY submitted_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []RequestRecord
	for rows.Next() {
		var r RequestRecord
		if err := rows.Scan(&r.ID, &r.Text, &r.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan request row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Outcome loads one persisted outcome by request ID.
func (s *Store) Outcome(requestID string) (types.UserOutcome, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var payload string
	err := s.db.QueryRow("SELECT payload FROM outcomes WHERE request_id = ?", requestID).Scan(&payload)
	if err == sql.ErrNoRows {
		return types.UserOutcome{}, false, nil
	}
	if err != nil {
		return types.UserOutcome{}, false, fmt.Errorf("failed to load outcome: %w", err)
	}

	var outcome types.UserOutcome
	if err := json.Unmarshal([]byte(payload), &outcome); err != nil {
		return types.UserOutcome{}, false, fmt.Errorf("failed to decode outcome payload: %w", err)
	}
	return outcome, true, nil
}

// PostMortems loads all persisted post-mortems, newest first.
func (s *Store) PostMortems() ([]postmortem.PostMortem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT payload FROM post_mortems ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query post-mortems: %w", err)
	}
	defer rows.Close()

	var out []postmortem.PostMortem
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan post-mortem row: %w", err)
		}
		var pm postmortem.PostMortem
		if err := json.Unmarshal([]byte(payload), &pm); err != nil {
			return nil, fmt.Errorf("failed to decode post-mortem payload: %w", err)
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
