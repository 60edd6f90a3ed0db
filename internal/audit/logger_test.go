package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/signoff/model"
)

func testSubject() Subject {
	return Subject{
		InstanceID:   "inst-1",
		WorkflowID:   "wf-1",
		WorkflowName: "Contract Approval",
		Document:     model.DocumentRef{ID: "doc-1", Collection: "contracts", Title: "Supply agreement"},
	}
}

func TestLogger_Append_stamps_server_time(t *testing.T) {
	store := NewMemoryStore()
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewLogger(store).WithClock(func() time.Time { return fixed })

	step := model.StepRef{Index: 0, ID: "legal", Name: "Legal Review", Type: model.StepTypeReview}
	err := l.Append(context.Background(), testSubject(),
		WorkflowStarted{},
		StepStarted{Step: step, Round: 1, Assignees: []string{"alice", "bob"}},
	)
	require.NoError(t, err)

	entries, err := l.List(context.Background(), model.AuditFilters{InstanceID: "inst-1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, model.AuditWorkflowStarted, entries[0].Action)
	assert.Equal(t, fixed, entries[0].Timestamp)
	assert.NotEmpty(t, entries[0].ID)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)

	started := entries[1]
	assert.Equal(t, model.AuditStepStarted, started.Action)
	assert.Equal(t, "alice", started.User, "first assignee is the representative user")
	require.NotNil(t, started.Step)
	assert.Equal(t, "legal", started.Step.ID)
	assert.Equal(t, []string{"alice", "bob"}, started.Metadata["assignees"])
	assert.Equal(t, "Supply agreement", started.Document.Title)
}

func TestLogger_timestamps_never_decrease(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Second), base.Add(time.Second)}
	i := 0
	l := NewLogger(store).WithClock(func() time.Time {
		ts := ticks[i]
		i++
		return ts
	})

	require.NoError(t, l.Append(context.Background(), testSubject(),
		WorkflowStarted{}, WorkflowCancelled{User: "admin"}, WorkflowStarted{}))

	entries, _ := store.List(context.Background(), model.AuditFilters{})
	require.Len(t, entries, 3)
	assert.Equal(t, base, entries[1].Timestamp)
	assert.True(t, entries[2].Timestamp.After(entries[1].Timestamp))
}

func TestDecision_action_mapping(t *testing.T) {
	assert.Equal(t, model.AuditApproved, Decision{Verb: model.DecisionApprove}.Action())
	assert.Equal(t, model.AuditRejected, Decision{Verb: model.DecisionReject}.Action())
	assert.Equal(t, model.AuditCommented, Decision{Verb: model.DecisionComment}.Action())
}

func TestEvents_fill_durations(t *testing.T) {
	store := NewMemoryStore()
	l := NewLogger(store)

	require.NoError(t, l.Append(context.Background(), testSubject(),
		StepCompleted{Step: model.StepRef{ID: "legal"}, Status: model.StepStatusCompleted, Duration: 1500 * time.Millisecond, PreviousStatus: "draft", NewStatus: "approved"},
		WorkflowCompleted{Outcome: model.OutcomeApproved, Duration: 3 * time.Second},
	))

	entries, _ := store.List(context.Background(), model.AuditFilters{})
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].DurationMS)
	assert.Equal(t, int64(1500), *entries[0].DurationMS)
	assert.Equal(t, "draft", entries[0].PreviousStatus)
	assert.Equal(t, "approved", entries[0].NewStatus)
	assert.Equal(t, model.OutcomeApproved, entries[1].NewStatus)
	assert.Equal(t, int64(3000), *entries[1].DurationMS)
}

type failingStore struct{}

func (failingStore) Append(context.Context, ...model.AuditLogEntry) error {
	return errors.New("disk full")
}

func (failingStore) List(context.Context, model.AuditFilters) ([]model.AuditLogEntry, error) {
	return nil, nil
}

func TestLogger_Append_propagates_write_failure(t *testing.T) {
	l := NewLogger(failingStore{})
	err := l.Append(context.Background(), testSubject(), WorkflowStarted{})
	assert.Error(t, err)
}

func TestMemoryStore_List_filters(t *testing.T) {
	store := NewMemoryStore()
	l := NewLogger(store)
	ctx := context.Background()

	other := testSubject()
	other.InstanceID = "inst-2"
	other.Document.ID = "doc-2"

	require.NoError(t, l.Append(ctx, testSubject(), WorkflowStarted{}, Decision{User: "bob", Verb: model.DecisionComment, Comment: "looks fine"}))
	require.NoError(t, l.Append(ctx, other, WorkflowStarted{}))

	got, _ := store.List(ctx, model.AuditFilters{DocumentID: "doc-1"})
	assert.Len(t, got, 2)

	got, _ = store.List(ctx, model.AuditFilters{Action: model.AuditCommented})
	require.Len(t, got, 1)
	assert.Equal(t, "looks fine", got[0].Comment)

	got, _ = store.List(ctx, model.AuditFilters{Limit: 1})
	assert.Len(t, got, 1)
	assert.Equal(t, 3, store.Len())
}
