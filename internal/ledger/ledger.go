// Package ledger is the append-only hash-chained event log of the
// constellation. Every significant event (request transitions, task results,
// failover transitions, checkpoints, outcomes, post-mortems) is appended as
// one entry whose hash covers the previous entry's hash, so after-the-fact
// mutation of any entry breaks verification of everything downstream.
//
// The chain is tamper EVIDENCE, not tamper resistance: the digest is FNV-1a.
// Swapping in a cryptographic digest means changing digest() and nothing
// else.
package ledger

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"aeon/internal/logging"
	"aeon/internal/types"
)

// EventType classifies a ledger entry.
type EventType string

const (
	EventRequestReceived   EventType = "REQUEST_RECEIVED"
	EventRequestDecomposed EventType = "REQUEST_DECOMPOSED"
	EventTaskStarted       EventType = "TASK_STARTED"
	EventTaskCompleted     EventType = "TASK_COMPLETED"
	EventTaskFailed        EventType = "TASK_FAILED"
	EventTierTransition    EventType = "TIER_TRANSITION"
	EventCircuitOpened     EventType = "CIRCUIT_OPENED"
	EventCircuitClosed     EventType = "CIRCUIT_CLOSED"
	EventCheckpointSaved   EventType = "CHECKPOINT_SAVED"
	EventStateRestored     EventType = "STATE_RESTORED"
	EventSynthesized       EventType = "SYNTHESIZED"
	EventValidated         EventType = "VALIDATED"
	EventOutcomeScored     EventType = "OUTCOME_SCORED"
	EventEmergencyRecovery EventType = "EMERGENCY_RECOVERY"
	EventEvolutionStep     EventType = "EVOLUTION_STEP"
	EventPostMortem        EventType = "POST_MORTEM"
	EventAlert             EventType = "ALERT"
)

// Entry is one immutable ledger record. Hash covers the entry type, actor,
// payload, and the previous entry's hash.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EventType       `json:"type"`
	Actor     types.AgentRole `json:"actor"`
	Payload   string          `json:"payload"`
	Hash      uint64          `json:"hash"`
	PrevHash  uint64          `json:"prev_hash"`
}

// Ledger is the append-only chain. Appends are one critical section so
// concurrent writers always produce a linear, verifiable chain.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
}

// New creates an empty ledger. The genesis predecessor hash is zero.
func New() *Ledger {
	return &Ledger{}
}

// digest is the chain's hash function and its single substitution point.
// FNV-1a 64 today; replacing this one function upgrades the whole chain.
func digest(t EventType, actor types.AgentRole, payload string, prev uint64) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%d", t, actor, payload, prev)
	return h.Sum64()
}

// Append records one event and returns the stored entry.
func (l *Ledger) Append(t EventType, actor types.AgentRole, payload string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var prev uint64
	if n := len(l.entries); n > 0 {
		prev = l.entries[n-1].Hash
	}
	e := Entry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Type:      t,
		Actor:     actor,
		Payload:   payload,
		PrevHash:  prev,
		Hash:      digest(t, actor, payload, prev),
	}
	l.entries = append(l.entries, e)

	logging.LedgerDebug("Appended %s by %s (seq=%d hash=%x)", t, actor, len(l.entries)-1, e.Hash)
	return e
}

// AppendJSON marshals the payload value to JSON before appending. Marshal
// failures fall back to a plain error string so an event is never lost.
func (l *Ledger) AppendJSON(t EventType, actor types.AgentRole, payload any) Entry {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Ledger("Payload marshal failed for %s: %v", t, err)
		return l.Append(t, actor, fmt.Sprintf("unmarshalable payload: %v", err))
	}
	return l.Append(t, actor, string(data))
}

// Verify walks the chain and reports the first broken link, if any.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return VerifyEntries(l.entries)
}

// VerifyEntries checks a chain that was exported (or persisted and reloaded)
// outside a live Ledger.
func VerifyEntries(entries []Entry) error {
	var prev uint64
	for i, e := range entries {
		if e.PrevHash != prev {
			return fmt.Errorf("ledger entry %d (%s): prev hash mismatch: have %x, want %x", i, e.ID, e.PrevHash, prev)
		}
		if want := digest(e.Type, e.Actor, e.Payload, e.PrevHash); e.Hash != want {
			return fmt.Errorf("ledger entry %d (%s): hash mismatch: have %x, want %x", i, e.ID, e.Hash, want)
		}
		prev = e.Hash
	}
	return nil
}

// Snapshot returns a copy of the chain for read-only inspection.
func (l *Ledger) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Len reports the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Since returns entries appended at or after the given time.
func (l *Ledger) Since(t time.Time) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if !e.Timestamp.Before(t) {
			out = append(out, e)
		}
	}
	return out
}
