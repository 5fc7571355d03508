package nexus

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"aeon/internal/ledger"
	"aeon/internal/logging"
	"aeon/internal/types"
)

// artifactSlot maps a role's output onto its destination in the deliverable.
type artifactSlot struct {
	path    string
	kind    types.ArtifactType
	depends []string
}

var artifactSlots = map[types.AgentRole]artifactSlot{
	types.RoleArchitect:   {path: "index.html", kind: types.ArtifactCode},
	types.RoleStylist:     {path: "styles/main.css", kind: types.ArtifactStyle, depends: []string{"index.html"}},
	types.RoleAnimator:    {path: "scripts/animations.js", kind: types.ArtifactCode, depends: []string{"index.html"}},
	types.RoleShaderSmith: {path: "scripts/shaders.js", kind: types.ArtifactCode, depends: []string{"index.html"}},
	types.RoleCopywriter:  {path: "content/copy.md", kind: types.ArtifactAsset},
	types.RoleResponsive:  {path: "styles/responsive.css", kind: types.ArtifactStyle, depends: []string{"styles/main.css"}},
	types.RoleA11y:        {path: "docs/accessibility.md", kind: types.ArtifactAsset},
	types.RoleIntegrator:  {path: "dist/index.html", kind: types.ArtifactCode, depends: []string{"index.html"}},
	types.RoleValidator:   {path: "reports/validation.md", kind: types.ArtifactAsset},
}

// synthesize merges completed task outputs into the deliverable's artifact
// set, one artifact per participating role in a stable path order.
func (n *Nexus) synthesize(requestID string, tasks []*Task, results map[string]*types.TaskResult) []types.Artifact {
	var artifacts []types.Artifact
	for _, t := range tasks {
		result, ok := results[t.ID]
		if !ok || !result.Success {
			continue
		}
		slot, ok := artifactSlots[t.Role]
		if !ok {
			continue
		}
		artifacts = append(artifacts, types.Artifact{
			Type:         slot.kind,
			Path:         slot.path,
			Content:      result.Output,
			Dependencies: slot.depends,
		})
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })
	logging.Nexus("Synthesized %d artifacts for request %s", len(artifacts), requestID)
	return artifacts
}

// validate runs structural checks over the merged deliverable and returns the
// issues found: empty artifacts, duplicate destination paths, and artifact
// dependencies that resolve to nothing in the set.
func (n *Nexus) validate(requestID string, artifacts []types.Artifact) []string {
	var issues []string
	if len(artifacts) == 0 {
		issues = append(issues, "deliverable contains no artifacts")
	}

	paths := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		if strings.TrimSpace(a.Content) == "" {
			issues = append(issues, fmt.Sprintf("artifact %s is empty", a.Path))
		}
		if paths[a.Path] {
			issues = append(issues, fmt.Sprintf("duplicate artifact path %s", a.Path))
		}
		paths[a.Path] = true
	}
	for _, a := range artifacts {
		for _, dep := range a.Dependencies {
			if !paths[dep] {
				issues = append(issues, fmt.Sprintf("artifact %s requires missing %s", a.Path, dep))
			}
		}
	}

	for _, issue := range issues {
		n.led.Append(ledger.EventAlert, types.RoleValidator, issue)
	}
	logging.Nexus("Validated request %s: %d issues", requestID, len(issues))
	return issues
}

// score folds task quality, tier degradation, and validation issues into the
// weighted outcome. Each validation issue costs a warning; each failed task
// counts as an exposed error.
func (n *Nexus) score(requestID string, tasks []*Task, results map[string]*types.TaskResult, artifacts []types.Artifact, issues []string) types.UserOutcome {
	var qualitySum float64
	var completed, failed int
	tierPenalty := 0.0
	a11yRan := false

	for _, t := range tasks {
		result, ok := results[t.ID]
		if !ok || !result.Success {
			failed++
			continue
		}
		completed++
		qualitySum += result.Metrics.QualityScore
		tierPenalty += 10 * float64(result.Tier)
		if t.Role == types.RoleA11y {
			a11yRan = true
		}
	}

	functional := 0.0
	if completed > 0 {
		functional = qualitySum / float64(completed)
	}
	aesthetic := subScoreFor(types.RoleStylist, tasks, results, functional*0.9)
	performance := clampScore(100 - tierPenalty)
	accessibility := 70.0
	if a11yRan {
		accessibility = subScoreFor(types.RoleA11y, tasks, results, accessibility)
	}
	codeQuality := clampScore(functional - 5*float64(len(issues)))

	n.mu.Lock()
	w := n.cfg.Outcome
	n.mu.Unlock()
	total := w.WeightFunctional + w.WeightAesthetic + w.WeightPerformance + w.WeightAccessibility + w.WeightCodeQuality
	if total <= 0 {
		total = 1
	}
	score := (functional*w.WeightFunctional +
		aesthetic*w.WeightAesthetic +
		performance*w.WeightPerformance +
		accessibility*w.WeightAccessibility +
		codeQuality*w.WeightCodeQuality) / total

	return types.UserOutcome{
		RequestID:     requestID,
		Functional:    functional,
		Aesthetic:     aesthetic,
		Performance:   performance,
		Accessibility: accessibility,
		CodeQuality:   codeQuality,
		Warnings:      len(issues),
		ExposedErrors: failed,
		Score:         clampScore(score),
		Deliverable:   artifacts,
		CompletedAt:   time.Now(),
	}
}

// subScoreFor returns the quality of a role's completed task, or a fallback
// when the role did not participate.
func subScoreFor(role types.AgentRole, tasks []*Task, results map[string]*types.TaskResult, fallback float64) float64 {
	for _, t := range tasks {
		if t.Role != role {
			continue
		}
		if result, ok := results[t.ID]; ok && result.Success {
			return result.Metrics.QualityScore
		}
	}
	return fallback
}

// emergencyRecovery is the terminal path for unrecoverable faults: it ships a
// minimal static placeholder so the caller always receives a deliverable,
// marks the outcome catastrophic with fixed floor scores, and still runs the
// learning and post-mortem loops so the fault is not wasted.
func (n *Nexus) emergencyRecovery(requestID, text string, results map[string]*types.TaskResult, cause error) types.UserOutcome {
	n.transition(requestID, StateEmergencyRecovered, fmt.Sprintf("%v", cause))
	logging.Nexus("Emergency recovery for request %s: %v", requestID, cause)

	outcome := types.UserOutcome{
		RequestID:     requestID,
		Functional:    20,
		Aesthetic:     10,
		Performance:   30,
		Accessibility: 20,
		CodeQuality:   10,
		ExposedErrors: 1,
		Score:         18,
		Catastrophic:  true,
		Deliverable:   []types.Artifact{placeholderArtifact(text)},
		CompletedAt:   time.Now(),
	}
	n.led.AppendJSON(ledger.EventOutcomeScored, types.RoleNexus, outcome)

	// Reward still flows: every role that produced a result learns from the
	// failure, and the controller itself always does.
	seen := map[types.AgentRole]bool{types.RoleNexus: true}
	n.recordReward(types.RoleNexus, outcome, types.TierPrimary)
	for _, r := range results {
		if seen[r.Role] {
			continue
		}
		seen[r.Role] = true
		n.recordReward(r.Role, outcome, r.Tier)
	}

	n.afterOutcome(requestID, text, results, outcome)
	return outcome
}

// placeholderArtifact is the static deliverable shipped when generation is
// entirely unavailable.
func placeholderArtifact(request string) types.Artifact {
	content := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Under Construction</title></head>
<body>
<main>
<h1>We're still building this</h1>
<p>Your request is queued for another attempt: %s</p>
</main>
</body>
</html>
`, request)
	return types.Artifact{Type: types.ArtifactCode, Path: "index.html", Content: content}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
