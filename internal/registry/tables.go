package registry

import (
	"fmt"

	"aeon/internal/types"
)

// capabilityTable defines every detectable capability, its trigger keywords,
// and its ordered owners (primary first).
func capabilityTable() []capabilityDef {
	return []capabilityDef{
		{
			id:       CapLayout,
			keywords: []string{"layout", "grid", "hero", "navbar", "header", "footer", "section", "landing page", "sidebar", "page structure"},
			owners:   []types.AgentRole{types.RoleStylist, types.RoleArchitect},
		},
		{
			id:       CapStyling,
			keywords: []string{"style", "color", "colour", "theme", "palette", "typography", "font", "brand", "dark mode", "gradient"},
			owners:   []types.AgentRole{types.RoleStylist},
		},
		{
			id:       CapAnimation,
			keywords: []string{"animate", "animation", "transition", "motion", "parallax", "scroll effect", "hover effect", "keyframe"},
			owners:   []types.AgentRole{types.RoleAnimator, types.RoleStylist},
		},
		{
			id:       CapThreeD,
			keywords: []string{"3d", "webgl", "shader", "three.js", "scene", "mesh", "particle", "orbit", "globe"},
			owners:   []types.AgentRole{types.RoleShaderSmith},
		},
		{
			id:       CapGPUOptimize,
			keywords: []string{"gpu", "frame rate", "fps", "render performance", "draw call"},
			owners:   []types.AgentRole{types.RoleShaderSmith, types.RoleValidator},
		},
		{
			id:       CapContent,
			keywords: []string{"copy", "headline", "tagline", "blog", "seo", "wording", "about us", "testimonial", "product description"},
			owners:   []types.AgentRole{types.RoleCopywriter},
		},
		{
			id:       CapResponsive,
			keywords: []string{"responsive", "mobile", "tablet", "breakpoint", "adaptive", "viewport", "touch"},
			owners:   []types.AgentRole{types.RoleResponsive, types.RoleStylist},
		},
		{
			id:       CapAccessibility,
			keywords: []string{"accessibility", "accessible", "a11y", "aria", "screen reader", "wcag", "keyboard navigation", "contrast ratio"},
			owners:   []types.AgentRole{types.RoleA11y},
		},
		{
			id:       CapReducedMotion,
			keywords: []string{"reduced motion", "prefers-reduced-motion", "motion sensitivity"},
			owners:   []types.AgentRole{types.RoleA11y, types.RoleAnimator},
		},
		{
			id:       CapForms,
			keywords: []string{"form", "signup", "sign up", "contact form", "newsletter", "input field", "subscribe"},
			owners:   []types.AgentRole{types.RoleStylist, types.RoleIntegrator},
		},
		{
			id:       CapEcommerce,
			keywords: []string{"shop", "cart", "checkout", "product page", "storefront", "pricing table", "payment"},
			owners:   []types.AgentRole{types.RoleIntegrator, types.RoleCopywriter},
		},
	}
}

// implicationTable defines capability implication rules: anything 3D-related
// implies GPU optimization work, anything animated implies a reduced-motion
// variant, and commerce flows always need forms.
func implicationTable() []implication {
	return []implication{
		{from: CapThreeD, to: CapGPUOptimize},
		{from: CapAnimation, to: CapReducedMotion},
		{from: CapEcommerce, to: CapForms},
	}
}

// ideologyTable holds the generation-zero behavioral profile per role.
// The evolution engine derives each role's gene population from these.
func ideologyTable() map[types.AgentRole]types.Ideology {
	return map[types.AgentRole]types.Ideology{
		types.RoleNexus: {
			Role: types.RoleNexus,
			Beliefs: []string{
				"every request deserves a complete deliverable",
				"forward progress beats perfect output",
			},
			Priorities: map[string]float64{
				"request_completion": 1.0,
				"agent_coordination": 0.8,
			},
			Constraints: map[string]bool{
				"never_propagate_faults": true,
				"record_every_event":     true,
			},
		},
		types.RoleArchitect: {
			Role: types.RoleArchitect,
			Beliefs: []string{
				"structure precedes decoration",
				"semantic markup is the skeleton of everything",
			},
			Priorities: map[string]float64{
				"structural_integrity": 0.95,
				"component_reuse":      0.7,
			},
			Constraints: map[string]bool{
				"semantic_html_only": true,
				"no_div_soup":        true,
			},
		},
		types.RoleStylist: {
			Role: types.RoleStylist,
			Beliefs: []string{
				"contrast builds hierarchy",
				"whitespace is a design element",
			},
			Priorities: map[string]float64{
				"visual_harmony":   0.9,
				"brand_consistency": 0.75,
			},
			Constraints: map[string]bool{
				"no_inline_styles":   true,
				"design_tokens_only": true,
			},
		},
		types.RoleAnimator: {
			Role: types.RoleAnimator,
			Beliefs: []string{
				"motion should explain, not decorate",
				"easing curves carry emotion",
			},
			Priorities: map[string]float64{
				"motion_clarity":  0.85,
				"animation_perf":  0.8,
			},
			Constraints: map[string]bool{
				"respect_reduced_motion": true,
				"gpu_accelerated_only":   true,
			},
		},
		types.RoleShaderSmith: {
			Role: types.RoleShaderSmith,
			Beliefs: []string{
				"the GPU budget is sacred",
				"degrade gracefully on weak hardware",
			},
			Priorities: map[string]float64{
				"frame_budget":    0.95,
				"visual_richness": 0.6,
			},
			Constraints: map[string]bool{
				"fallback_for_no_webgl": true,
				"cap_draw_calls":        true,
			},
		},
		types.RoleCopywriter: {
			Role: types.RoleCopywriter,
			Beliefs: []string{
				"clarity converts better than cleverness",
				"every headline earns the next sentence",
			},
			Priorities: map[string]float64{
				"message_clarity": 0.9,
				"seo_weight":      0.5,
			},
			Constraints: map[string]bool{
				"no_placeholder_lorem": true,
				"active_voice":         true,
			},
		},
		types.RoleResponsive: {
			Role: types.RoleResponsive,
			Beliefs: []string{
				"mobile is the default, desktop the enhancement",
				"breakpoints follow content, not devices",
			},
			Priorities: map[string]float64{
				"mobile_first":     0.95,
				"layout_stability": 0.8,
			},
			Constraints: map[string]bool{
				"no_horizontal_scroll": true,
				"fluid_units_only":     true,
			},
		},
		types.RoleA11y: {
			Role: types.RoleA11y,
			Beliefs: []string{
				"accessibility is a floor, not a feature",
				"assistive technology is a first-class client",
			},
			Priorities: map[string]float64{
				"wcag_compliance":  1.0,
				"keyboard_support": 0.9,
			},
			Constraints: map[string]bool{
				"aria_on_interactive": true,
				"min_contrast_aa":     true,
			},
		},
		types.RoleIntegrator: {
			Role: types.RoleIntegrator,
			Beliefs: []string{
				"a deliverable is one coherent artifact, not a pile of parts",
				"conflicts are resolved at merge time, never shipped",
			},
			Priorities: map[string]float64{
				"merge_coherence":      0.95,
				"dependency_soundness": 0.85,
			},
			Constraints: map[string]bool{
				"no_duplicate_paths":  true,
				"resolve_all_imports": true,
			},
		},
		types.RoleValidator: {
			Role: types.RoleValidator,
			Beliefs: []string{
				"untested output is unfinished output",
				"report everything, block nothing silently",
			},
			Priorities: map[string]float64{
				"defect_detection": 0.95,
				"report_precision": 0.8,
			},
			Constraints: map[string]bool{
				"structural_check_required": true,
				"list_every_issue":          true,
			},
		},
	}
}

// basePromptTable holds the full-capability prompt per role (PRIMARY and
// STANDBY variants both use it; STANDBY differs only in generation settings).
func basePromptTable() map[types.AgentRole]string {
	prompts := map[types.AgentRole]string{
		types.RoleNexus:       "Coordinate the specialist outputs below into a single coherent plan for the user's request.",
		types.RoleArchitect:   "Design the structural skeleton for this site: page hierarchy, semantic sections, routing, and component boundaries.",
		types.RoleStylist:     "Produce the visual design system: design tokens, a stylesheet, and per-component styling consistent with the brief.",
		types.RoleAnimator:    "Define motion design: transitions, scroll effects, and keyframes, each with a reduced-motion alternative.",
		types.RoleShaderSmith: "Build the 3D/WebGL layer: scene setup, shaders, and a capability-gated fallback for hardware without WebGL.",
		types.RoleCopywriter:  "Write all site copy: headlines, body text, calls to action, and metadata, in the voice the brief implies.",
		types.RoleResponsive:  "Adapt the layout across breakpoints: fluid grids, content-driven breakpoints, and touch-friendly targets.",
		types.RoleA11y:        "Audit and amend the output for accessibility: ARIA roles, contrast, focus order, and screen-reader flow.",
		types.RoleIntegrator:  "Merge every specialist artifact into one consistent file tree, resolving path conflicts and wiring imports.",
		types.RoleValidator:   "Check the merged deliverable for structural defects, broken references, and lint-level issues; list every finding.",
	}
	return prompts
}

// fallbackTable builds the three degraded templates per role. Each level
// narrows the capability subset and simplifies the prompt; the emergency
// template asks only for a minimal safe artifact.
func fallbackTable() map[types.AgentRole][3]FallbackTemplate {
	out := make(map[types.AgentRole][3]FallbackTemplate, 10)

	// Capability subsets per role, widest (reduced) to narrowest (emergency).
	subsets := map[types.AgentRole][3][]Capability{
		types.RoleNexus:       {{CapLayout, CapContent}, {CapLayout}, {}},
		types.RoleArchitect:   {{CapLayout, CapResponsive}, {CapLayout}, {}},
		types.RoleStylist:     {{CapStyling, CapLayout}, {CapStyling}, {}},
		types.RoleAnimator:    {{CapAnimation, CapReducedMotion}, {CapReducedMotion}, {}},
		types.RoleShaderSmith: {{CapThreeD, CapGPUOptimize}, {CapGPUOptimize}, {}},
		types.RoleCopywriter:  {{CapContent}, {CapContent}, {}},
		types.RoleResponsive:  {{CapResponsive, CapLayout}, {CapResponsive}, {}},
		types.RoleA11y:        {{CapAccessibility, CapReducedMotion}, {CapAccessibility}, {}},
		types.RoleIntegrator:  {{CapForms, CapEcommerce}, {CapForms}, {}},
		types.RoleValidator:   {{CapGPUOptimize}, {}, {}},
	}

	for _, role := range types.AllRoles() {
		base := basePromptTable()[role]
		sub := subsets[role]
		out[role] = [3]FallbackTemplate{
			{
				Level:        FallbackReduced,
				Role:         role,
				Capabilities: sub[0],
				Prompt:       fmt.Sprintf("%s Keep the scope reduced: skip optional flourishes and produce dependable output quickly.", base),
			},
			{
				Level:        FallbackMinimal,
				Role:         role,
				Capabilities: sub[1],
				Prompt:       fmt.Sprintf("Produce the minimal viable version of this work only: %s", base),
			},
			{
				Level:        FallbackEmergency,
				Role:         role,
				Capabilities: sub[2],
				Prompt:       "Emergency mode: return the smallest syntactically valid artifact for your role. No embellishment.",
			},
		}
	}
	return out
}
