package failover

import (
	"time"

	"github.com/google/uuid"

	"aeon/internal/ledger"
	"aeon/internal/logging"
	"aeon/internal/types"
)

// StateBlob is the typed snapshot an agent needs to resume after a tier
// transition: the completed-task context it was given, whatever partial
// output it produced, and the dependency slice of its task.
type StateBlob struct {
	TaskContext   map[string]string `json:"task_context"`
	PartialOutput string            `json:"partial_output"`
	Dependencies  []string          `json:"dependencies"`
}

// Clone deep-copies the blob so restored state never aliases stored state.
func (b StateBlob) Clone() StateBlob {
	out := StateBlob{
		PartialOutput: b.PartialOutput,
		TaskContext:   make(map[string]string, len(b.TaskContext)),
		Dependencies:  append([]string(nil), b.Dependencies...),
	}
	for k, v := range b.TaskContext {
		out.TaskContext[k] = v
	}
	return out
}

// Checkpoint is an immutable snapshot saved around risky steps.
type Checkpoint struct {
	ID        string          `json:"id"`
	Role      types.AgentRole `json:"role"`
	TaskID    string          `json:"task_id"`
	Timestamp time.Time       `json:"timestamp"`
	State     StateBlob       `json:"state"`
}

// SaveCheckpoint appends a checkpoint to the role's bounded list and records
// it in the ledger. Checkpoints are never dropped mid-operation; only the
// oldest entries age out once the bound is reached.
func (m *Manager) SaveCheckpoint(role types.AgentRole, taskID string, state StateBlob) Checkpoint {
	cp := Checkpoint{
		ID:        uuid.New().String(),
		Role:      role,
		TaskID:    taskID,
		Timestamp: time.Now(),
		State:     state.Clone(),
	}

	m.mu.Lock()
	list := append(m.checkpoints[role], cp)
	if limit := m.cfg.CheckpointLimit; limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	m.checkpoints[role] = list
	m.mu.Unlock()

	m.ledger.AppendJSON(ledger.EventCheckpointSaved, role, map[string]string{
		"checkpoint_id": cp.ID,
		"task_id":       taskID,
	})
	logging.FailoverDebug("Checkpoint %s saved for %s (task %s)", cp.ID, role, taskID)
	return cp
}

// LatestCheckpoint returns the role's most recent checkpoint.
func (m *Manager) LatestCheckpoint(role types.AgentRole) (Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.checkpoints[role]
	if len(list) == 0 {
		return Checkpoint{}, false
	}
	return list[len(list)-1], true
}

// Checkpoints returns a copy of the role's checkpoint list, oldest first.
func (m *Manager) Checkpoints(role types.AgentRole) []Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Checkpoint(nil), m.checkpoints[role]...)
}

// RestoreState rehydrates from the role's latest checkpoint. Restoring is a
// pure read of the stored snapshot: calling it twice yields the same state
// both times.
func (m *Manager) RestoreState(role types.AgentRole) (StateBlob, bool) {
	cp, ok := m.LatestCheckpoint(role)
	if !ok {
		return StateBlob{}, false
	}

	m.ledger.AppendJSON(ledger.EventStateRestored, role, map[string]string{
		"checkpoint_id": cp.ID,
		"task_id":       cp.TaskID,
	})
	logging.Failover("Restored %s from checkpoint %s", role, cp.ID)
	return cp.State.Clone(), true
}
