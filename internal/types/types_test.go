package types

import "testing"

func TestAllRolesClosed(t *testing.T) {
	roles := AllRoles()
	if len(roles) != 10 {
		t.Fatalf("expected 10 roles, got %d", len(roles))
	}
	if roles[0] != RoleNexus {
		t.Errorf("expected meta-controller first, got %s", roles[0])
	}
	seen := make(map[AgentRole]bool)
	for _, r := range roles {
		if !r.Valid() {
			t.Errorf("roster role %q reported invalid", r)
		}
		if seen[r] {
			t.Errorf("duplicate role %q in roster", r)
		}
		seen[r] = true
	}
}

func TestRoleValidRejectsUnknown(t *testing.T) {
	if AgentRole("plumber").Valid() {
		t.Error("unknown role reported valid")
	}
	if AgentRole("").Valid() {
		t.Error("empty role reported valid")
	}
}

func TestTierLadderOrder(t *testing.T) {
	tiers := AllTiers()
	if len(tiers) != 5 {
		t.Fatalf("expected 5 tiers, got %d", len(tiers))
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i] <= tiers[i-1] {
			t.Errorf("ladder not strictly increasing at %d", i)
		}
	}
}

func TestTierNext(t *testing.T) {
	tests := []struct {
		in   Tier
		want Tier
		ok   bool
	}{
		{TierPrimary, TierStandby, true},
		{TierStandby, TierFallbackA, true},
		{TierFallbackA, TierFallbackB, true},
		{TierFallbackB, TierFallbackC, true},
		{TierFallbackC, TierFallbackC, false},
	}
	for _, tt := range tests {
		got, ok := tt.in.Next()
		if got != tt.want || ok != tt.ok {
			t.Errorf("%s.Next() = (%s, %v), want (%s, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTierString(t *testing.T) {
	if TierPrimary.String() != "PRIMARY" || TierFallbackC.String() != "FALLBACK_C" {
		t.Error("tier names do not match ladder vocabulary")
	}
	if Tier(99).String() != "UNKNOWN" {
		t.Error("out-of-range tier should stringify as UNKNOWN")
	}
}

func TestIdeologyClone(t *testing.T) {
	orig := Ideology{
		Role:        RoleStylist,
		Beliefs:     []string{"contrast builds hierarchy"},
		Priorities:  map[string]float64{"visual_harmony": 0.9},
		Constraints: map[string]bool{"no_inline_styles": true},
	}
	clone := orig.Clone()
	clone.Beliefs[0] = "mutated"
	clone.Priorities["visual_harmony"] = 0.1
	clone.Constraints["no_inline_styles"] = false

	if orig.Beliefs[0] != "contrast builds hierarchy" {
		t.Error("clone aliases beliefs slice")
	}
	if orig.Priorities["visual_harmony"] != 0.9 {
		t.Error("clone aliases priorities map")
	}
	if !orig.Constraints["no_inline_styles"] {
		t.Error("clone aliases constraints map")
	}
}
