package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeon/internal/types"
)

func TestDetectLayoutOnlyRequestSelectsStylist(t *testing.T) {
	r := New()
	caps := r.DetectCapabilities("Build a landing page with a hero and a clean grid layout")

	require.Contains(t, caps, CapLayout)
	assert.NotContains(t, caps, CapThreeD)
	assert.NotContains(t, caps, CapGPUOptimize)

	owner, ok := r.PrimaryOwner(CapLayout)
	require.True(t, ok)
	assert.Equal(t, types.RoleStylist, owner)

	for _, c := range caps {
		assert.NotContains(t, r.AgentsForCapability(c), types.RoleShaderSmith,
			"no shader role for a pure layout request, capability %s", c)
	}
}

func TestThreeDImpliesGPUOptimization(t *testing.T) {
	r := New()
	caps := r.DetectCapabilities("Add a spinning 3d globe to the homepage")
	assert.Contains(t, caps, CapThreeD)
	assert.Contains(t, caps, CapGPUOptimize)
}

func TestAnimationImpliesReducedMotion(t *testing.T) {
	r := New()
	caps := r.DetectCapabilities("animate the hero when it enters the viewport")
	assert.Contains(t, caps, CapAnimation)
	assert.Contains(t, caps, CapReducedMotion)
}

func TestEcommerceImpliesForms(t *testing.T) {
	r := New()
	caps := r.DetectCapabilities("a storefront with a cart and checkout")
	assert.Contains(t, caps, CapEcommerce)
	assert.Contains(t, caps, CapForms)
}

func TestDetectIsCaseInsensitiveAndDeduplicated(t *testing.T) {
	r := New()
	caps := r.DetectCapabilities("LAYOUT layout Grid GRID hero")
	count := 0
	for _, c := range caps {
		if c == CapLayout {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDetectEmptyRequest(t *testing.T) {
	assert.Empty(t, New().DetectCapabilities(""))
}

func TestAgentsForCapabilityReturnsCopy(t *testing.T) {
	r := New()
	owners := r.AgentsForCapability(CapAnimation)
	require.NotEmpty(t, owners)
	owners[0] = types.RoleValidator
	assert.Equal(t, types.RoleAnimator, r.AgentsForCapability(CapAnimation)[0])
}

func TestUnknownCapabilityHasNoOwners(t *testing.T) {
	r := New()
	assert.Nil(t, r.AgentsForCapability(Capability("quantum")))
	_, ok := r.PrimaryOwner(Capability("quantum"))
	assert.False(t, ok)
}

func TestEveryCapabilityHasAPrimaryOwner(t *testing.T) {
	r := New()
	for _, def := range r.caps {
		owner, ok := r.PrimaryOwner(def.id)
		require.True(t, ok, "capability %s has no owners", def.id)
		assert.True(t, owner.Valid(), "capability %s owned by unknown role %s", def.id, owner)
	}
}

func TestIdeologyForReturnsIndependentCopy(t *testing.T) {
	r := New()
	a := r.IdeologyFor(types.RoleStylist)
	require.NotEmpty(t, a.Priorities)
	for k := range a.Priorities {
		a.Priorities[k] = -99
	}
	b := r.IdeologyFor(types.RoleStylist)
	for k, v := range b.Priorities {
		assert.NotEqual(t, -99.0, v, "priority %s aliased between calls", k)
	}
}

func TestEveryRoleHasIdeologyPromptAndFallbacks(t *testing.T) {
	r := New()
	for _, role := range types.AllRoles() {
		ideo := r.IdeologyFor(role)
		assert.Equal(t, role, ideo.Role)
		assert.NotEmpty(t, ideo.Beliefs, "role %s has no beliefs", role)
		assert.NotEmpty(t, r.BasePrompt(role), "role %s has no base prompt", role)

		fb := r.FallbackTemplates(role)
		assert.Equal(t, FallbackReduced, fb[0].Level)
		assert.Equal(t, FallbackMinimal, fb[1].Level)
		assert.Equal(t, FallbackEmergency, fb[2].Level)
		for _, tpl := range fb {
			assert.Equal(t, role, tpl.Role)
			assert.NotEmpty(t, tpl.Prompt)
		}
		// Degradation narrows the capability subset.
		assert.LessOrEqual(t, len(fb[1].Capabilities), len(fb[0].Capabilities))
		assert.LessOrEqual(t, len(fb[2].Capabilities), len(fb[1].Capabilities))
	}
}
