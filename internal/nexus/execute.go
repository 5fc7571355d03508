package nexus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"aeon/internal/failover"
	"aeon/internal/ledger"
	"aeon/internal/logging"
	"aeon/internal/types"
)

// execute drives the task DAG to completion in frontier waves: every pending
// task whose dependencies are all completed runs concurrently, then the
// frontier is recomputed. A non-empty pending set with an empty frontier is a
// deadlock and aborts the request.
//
// Each task is checkpointed before execution so a mid-task tier transition
// can rehydrate from the last known-good state instead of starting cold.
func (n *Nexus) execute(ctx context.Context, requestID, text string, tasks []*Task) (map[string]*types.TaskResult, error) {
	n.transition(requestID, StateExecuting, "")

	results := make(map[string]*types.TaskResult, len(tasks))
	outputs := make(map[string]string, len(tasks))

	for pendingCount(tasks) > 0 {
		wave := frontier(tasks)
		if len(wave) == 0 {
			return results, fmt.Errorf("task graph deadlocked with %d tasks unresolved", pendingCount(tasks))
		}

		queueByRole := make(map[types.AgentRole]int, len(wave))
		for _, t := range wave {
			queueByRole[t.Role]++
		}
		for role, depth := range queueByRole {
			n.collector.SetQueueDepth(role, depth)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, t := range wave {
			t := t
			t.Status = TaskRunning
			g.Go(func() error {
				result, err := n.runTask(gctx, t, text, outputs)
				n.mu.Lock()
				if err != nil {
					t.Status = TaskFailed
					if result != nil {
						results[t.ID] = result
					}
					n.mu.Unlock()
					n.led.Append(ledger.EventTaskFailed, t.Role, fmt.Sprintf("task %s: %v", t.ID, err))
					return fmt.Errorf("task %s (%s): %w", t.ID, t.Role, err)
				}
				t.Status = TaskCompleted
				results[t.ID] = result
				outputs[t.ID] = result.Output
				n.mu.Unlock()
				n.led.Append(ledger.EventTaskCompleted, t.Role, fmt.Sprintf("task %s on %s", t.ID, result.Tier))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return results, err
		}

		for role := range queueByRole {
			n.collector.SetQueueDepth(role, 0)
		}
	}
	return results, nil
}

// runTask checkpoints, prompts, and executes one task through the failover
// ladder, returning the tier-annotated result.
func (n *Nexus) runTask(ctx context.Context, t *Task, request string, outputs map[string]string) (*types.TaskResult, error) {
	n.mu.Lock()
	agent, ok := n.agents[t.Role]
	if !ok {
		n.mu.Unlock()
		return nil, fmt.Errorf("no agent registered for role %s", t.Role)
	}
	agent.State = types.AgentWorking

	depOutputs := make(map[string]string, len(t.DependsOn))
	for _, dep := range t.DependsOn {
		if out, ok := outputs[dep]; ok {
			depOutputs[dep] = out
		}
	}
	n.mu.Unlock()

	cp := n.circuits.SaveCheckpoint(t.Role, t.ID, failover.StateBlob{
		TaskContext:  depOutputs,
		Dependencies: t.DependsOn,
	})
	t.CheckpointID = cp.ID

	timer := logging.StartTimer(logging.CategoryNexus, "task "+t.ID)
	result, err := n.circuits.ExecuteWithFailover(ctx, t.Role, func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
		prompt := n.buildPrompt(agent, tier, t, request, depOutputs)
		start := time.Now()
		output, genErr := n.gen.Generate(ctx, t.Role, prompt, tier)
		if genErr != nil {
			return nil, genErr
		}
		return &types.TaskResult{
			TaskID:  t.ID,
			Role:    t.Role,
			Success: true,
			Output:  output,
			Metrics: types.TaskMetrics{
				LatencyMs:       float64(time.Since(start).Milliseconds()),
				GenerationCalls: 1,
				QualityScore:    assessOutput(output),
			},
		}, nil
	})
	timer.Stop()

	n.mu.Lock()
	switch {
	case err != nil:
		agent.State = types.AgentDegraded
	case result.Tier > types.TierPrimary:
		agent.State = types.AgentDegraded
		agent.Tier = result.Tier
	default:
		agent.State = types.AgentIdle
		agent.Tier = types.TierPrimary
	}
	agent.Checkpoint = cp.ID
	n.mu.Unlock()
	return result, err
}

// buildPrompt assembles the tier-appropriate prompt variant with the request
// text and the outputs of completed dependencies.
func (n *Nexus) buildPrompt(agent *Agent, tier types.Tier, t *Task, request string, depOutputs map[string]string) string {
	var b strings.Builder
	b.WriteString(agent.variantFor(tier))
	b.WriteString("\n\nRequest:\n")
	b.WriteString(request)
	b.WriteString("\n\nTask:\n")
	b.WriteString(t.Description)
	for dep, out := range depOutputs {
		b.WriteString("\n\nUpstream output (")
		b.WriteString(dep)
		b.WriteString("):\n")
		b.WriteString(out)
	}
	return b.String()
}

// assessOutput is a structural quality heuristic for generated output: length
// up to a saturation point, presence of markup or code structure, and absence
// of placeholder text. It approximates quality until validation produces a
// real score.
func assessOutput(output string) float64 {
	if strings.TrimSpace(output) == "" {
		return 0
	}
	score := 40.0

	length := float64(len(output))
	if length > 2000 {
		length = 2000
	}
	score += length / 2000 * 30

	lower := strings.ToLower(output)
	if strings.Contains(lower, "<") || strings.Contains(lower, "{") {
		score += 20
	}
	if !strings.Contains(lower, "todo") && !strings.Contains(lower, "placeholder") {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}
