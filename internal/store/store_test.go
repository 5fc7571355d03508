package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeon/internal/ledger"
	"aeon/internal/postmortem"
	"aeon/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "aeon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndListRequests(t *testing.T) {
	s := newTestStore(t)
	s.SaveRequest("req-1", "build a landing page")
	s.SaveRequest("req-2", "add a 3d globe")

	reqs, err := s.Requests()
	require.NoError(t, err)
	require.Len(t, reqs, 2)
}

func TestSaveAndLoadOutcome(t *testing.T) {
	s := newTestStore(t)
	s.SaveRequest("req-1", "build a shop")

	outcome := types.UserOutcome{
		RequestID:    "req-1",
		Functional:   90,
		Aesthetic:    85,
		Score:        88.5,
		Catastrophic: false,
		CompletedAt:  time.Now(),
	}
	s.SaveOutcome(outcome)

	loaded, ok, err := s.Outcome("req-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 88.5, loaded.Score)
	assert.Equal(t, 90.0, loaded.Functional)
}

func TestOutcomeMissing(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Outcome("absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveOutcomeIsUpsert(t *testing.T) {
	s := newTestStore(t)
	s.SaveOutcome(types.UserOutcome{RequestID: "req-1", Score: 50, CompletedAt: time.Now()})
	s.SaveOutcome(types.UserOutcome{RequestID: "req-1", Score: 75, CompletedAt: time.Now()})

	loaded, ok, err := s.Outcome("req-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 75.0, loaded.Score)
}

func TestSaveAndListPostMortems(t *testing.T) {
	s := newTestStore(t)
	pm := postmortem.PostMortem{
		ID:              "pm-1",
		RequestID:       "req-1",
		Timestamp:       time.Now(),
		RootCause:       "generation latency exceeded the tier timeout",
		Severity:        postmortem.SeveritySevere,
		ImplicatedRoles: []types.AgentRole{types.RoleStylist},
		LessonsLearned:  []string{"decompose earlier"},
	}
	s.SavePostMortem(pm)

	list, err := s.PostMortems()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, postmortem.SeveritySevere, list[0].Severity)
	assert.Equal(t, []types.AgentRole{types.RoleStylist}, list[0].ImplicatedRoles)
}

func TestSaveAndLoadLedgerEntries(t *testing.T) {
	s := newTestStore(t)

	led := ledger.New()
	led.Append(ledger.EventRequestReceived, types.RoleNexus, "RECEIVED req-1")
	led.Append(ledger.EventTaskCompleted, types.RoleArchitect, "task t-1")
	led.Append(ledger.EventOutcomeScored, types.RoleNexus, "SCORED req-1")

	s.SaveLedgerEntries(led.Snapshot())

	loaded, err := s.LedgerEntries()
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, ledger.EventRequestReceived, loaded[0].Type)
	assert.Equal(t, types.RoleArchitect, loaded[1].Actor)

	// The reloaded chain still verifies hash for hash.
	require.NoError(t, ledger.VerifyEntries(loaded))

	// Re-saving the same snapshot is idempotent.
	s.SaveLedgerEntries(led.Snapshot())
	loaded, err = s.LedgerEntries()
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aeon.db")

	s, err := New(path)
	require.NoError(t, err)
	s.SaveRequest("req-1", "persisted across opens")
	require.NoError(t, s.Close())

	s2, err := New(path)
	require.NoError(t, err)
	defer s2.Close()

	reqs, err := s2.Requests()
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "persisted across opens", reqs[0].Text)
}
