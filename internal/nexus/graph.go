package nexus

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"aeon/internal/registry"
	"aeon/internal/types"
)

// TaskStatus is the lifecycle of one decomposed task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is one unit of work in the request's dependency graph.
type Task struct {
	ID           string              `json:"id"`
	RequestID    string              `json:"request_id"`
	Role         types.AgentRole     `json:"role"`
	Capability   registry.Capability `json:"capability,omitempty"`
	Description  string              `json:"description"`
	DependsOn    []string            `json:"depends_on"`
	Status       TaskStatus          `json:"status"`
	CheckpointID string              `json:"checkpoint_id,omitempty"`
}

// decompose builds the task DAG for a request: one structural root task,
// one task per detected capability depending on the root, an integration
// task depending on every capability task, and a validation task depending
// on integration. The structural, integration, and validation roles are
// always included.
func decompose(requestID, text string, reg *registry.Registry) ([]*Task, error) {
	caps := reg.DetectCapabilities(text)

	structural := &Task{
		ID:          uuid.New().String(),
		RequestID:   requestID,
		Role:        types.RoleArchitect,
		Description: "structural skeleton for: " + text,
		Status:      TaskPending,
	}
	tasks := []*Task{structural}

	var capTaskIDs []string
	for _, cap := range caps {
		owner, ok := reg.PrimaryOwner(cap)
		if !ok {
			continue
		}
		// The structural/integration/validation trio already has fixed
		// tasks; capabilities they own fold into those.
		switch owner {
		case types.RoleArchitect, types.RoleIntegrator, types.RoleValidator:
			continue
		}
		t := &Task{
			ID:          uuid.New().String(),
			RequestID:   requestID,
			Role:        owner,
			Capability:  cap,
			Description: fmt.Sprintf("%s work for: %s", cap, text),
			DependsOn:   []string{structural.ID},
			Status:      TaskPending,
		}
		tasks = append(tasks, t)
		capTaskIDs = append(capTaskIDs, t.ID)
	}

	integrationDeps := capTaskIDs
	if len(integrationDeps) == 0 {
		integrationDeps = []string{structural.ID}
	}
	integration := &Task{
		ID:          uuid.New().String(),
		RequestID:   requestID,
		Role:        types.RoleIntegrator,
		Description: "merge specialist artifacts into one deliverable",
		DependsOn:   integrationDeps,
		Status:      TaskPending,
	}
	validation := &Task{
		ID:          uuid.New().String(),
		RequestID:   requestID,
		Role:        types.RoleValidator,
		Description: "structural validation of the merged deliverable",
		DependsOn:   []string{integration.ID},
		Status:      TaskPending,
	}
	tasks = append(tasks, integration, validation)

	if err := detectCycle(tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Cycle detection by DFS coloring: white = unvisited, gray = on the current
// path, black = finished. A gray-to-gray edge is a cycle. Cycles indicate a
// decomposition defect and are fatal, never retried.
type dfsColor int

const (
	colorWhite dfsColor = iota
	colorGray
	colorBlack
)

func detectCycle(tasks []*Task) error {
	byID := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	colors := make(map[string]dfsColor, len(tasks))
	var visit func(id string) error
	visit = func(id string) error {
		switch colors[id] {
		case colorGray:
			return fmt.Errorf("task graph contains a cycle through task %s", id)
		case colorBlack:
			return nil
		}
		colors[id] = colorGray
		t, ok := byID[id]
		if !ok {
			return fmt.Errorf("task %s depends on unknown task", id)
		}
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("task %s depends on unknown task %s", t.ID, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		colors[id] = colorBlack
		return nil
	}

	// Deterministic visit order.
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// frontier returns the pending tasks whose dependencies are all completed.
func frontier(tasks []*Task) []*Task {
	completed := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.Status == TaskCompleted {
			completed[t.ID] = true
		}
	}

	var out []*Task
	for _, t := range tasks {
		if t.Status != TaskPending {
			continue
		}
		ready := true
		for _, dep := range t.DependsOn {
			if !completed[dep] {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, t)
		}
	}
	return out
}

// pendingCount reports how many tasks have not reached a terminal status.
func pendingCount(tasks []*Task) int {
	n := 0
	for _, t := range tasks {
		if t.Status == TaskPending || t.Status == TaskRunning {
			n++
		}
	}
	return n
}
