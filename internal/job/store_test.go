package job

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateAssignsMonotonicIDs(t *testing.T) {
	s := NewStore()
	j1 := s.Create("a", "alice", "application/pdf", []byte("x"))
	j2 := s.Create("b", "bob", "application/pdf", []byte("y"))
	assert.EqualValues(t, 1, j1.ID)
	assert.EqualValues(t, 2, j2.ID)
	assert.Equal(t, StatePending, j1.state)
	assert.Equal(t, []StateReason{ReasonJobQueued}, j1.stateReasons)
}

func TestStore_QueuedCountExcludesTerminal(t *testing.T) {
	s := NewStore()
	j1 := s.Create("a", "alice", "application/pdf", nil)
	j2 := s.Create("b", "bob", "application/pdf", nil)
	assert.Equal(t, 2, s.QueuedCount())

	require.NoError(t, s.Cancel(j1.ID))
	assert.Equal(t, 1, s.QueuedCount())

	require.NoError(t, s.StartProcessing(j2.ID))
	assert.True(t, s.IsProcessing())

	require.NoError(t, s.Complete(j2.ID))
	assert.Equal(t, 0, s.QueuedCount())
	assert.False(t, s.IsProcessing())
}

func TestStore_FullLifecycleToCompleted(t *testing.T) {
	s := NewStore()
	j := s.Create("receipt", "anonymous", "image/jpeg", []byte("data"))

	require.NoError(t, s.StartProcessing(j.ID))
	snap, err := s.Snapshot(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, snap.State)
	assert.Equal(t, ReasonJobPrinting, snap.StateReasons[0])

	require.NoError(t, s.Complete(j.ID))
	snap, err = s.Snapshot(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, ReasonJobCompletedSuccessfully, snap.StateReasons[0])
	assert.False(t, snap.CompletedAt.IsZero())
}

func TestStore_AbortRecordsErrorAndReason(t *testing.T) {
	s := NewStore()
	j := s.Create("x", "anonymous", "application/pdf", nil)
	require.NoError(t, s.StartProcessing(j.ID))

	cause := errors.New("printer connection error: bulk write: timeout")
	require.NoError(t, s.Abort(j.ID, cause))

	snap, err := s.Snapshot(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StateAborted, snap.State)
	assert.Equal(t, ReasonJobAbortedBySystem, snap.StateReasons[0])
	assert.Equal(t, cause.Error(), snap.Error)
}

func TestStore_CancelRejectsTerminalJob(t *testing.T) {
	s := NewStore()
	j := s.Create("x", "anonymous", "application/pdf", nil)
	require.NoError(t, s.StartProcessing(j.ID))
	require.NoError(t, s.Complete(j.ID))
	assert.ErrorIs(t, s.Cancel(j.ID), ErrNotPending)
}

func TestStore_CancelUnknownJobReturnsNotFound(t *testing.T) {
	s := NewStore()
	assert.ErrorIs(t, s.Cancel(999), ErrNotFound)
}

func TestStore_SnapshotOfEvictedJobReturnsErrEvicted(t *testing.T) {
	s := NewStore()
	j := s.Create("x", "anonymous", "application/pdf", nil)
	require.NoError(t, s.StartProcessing(j.ID))
	require.NoError(t, s.Complete(j.ID))

	s.EvictTerminal(time.Now().Add(Retention + time.Second))

	_, err := s.Snapshot(j.ID)
	assert.ErrorIs(t, err, ErrEvicted)

	cancelErr := s.Cancel(j.ID)
	assert.ErrorIs(t, cancelErr, ErrEvicted)
}

func TestStore_EvictTerminalKeepsJobsWithinRetention(t *testing.T) {
	s := NewStore()
	j := s.Create("x", "anonymous", "application/pdf", nil)
	require.NoError(t, s.StartProcessing(j.ID))
	require.NoError(t, s.Complete(j.ID))

	s.EvictTerminal(time.Now())

	_, err := s.Snapshot(j.ID)
	assert.NoError(t, err)
}

func TestStore_ListOrdersByID(t *testing.T) {
	s := NewStore()
	a := s.Create("a", "u", "application/pdf", nil)
	b := s.Create("b", "u", "application/pdf", nil)
	c := s.Create("c", "u", "application/pdf", nil)

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, []ID{a.ID, b.ID, c.ID}, []ID{list[0].ID, list[1].ID, list[2].ID})
}

func TestStore_IsCanceledReflectsOnlyCanceledState(t *testing.T) {
	s := NewStore()
	j := s.Create("x", "u", "application/pdf", nil)
	assert.False(t, s.IsCanceled(j.ID))
	require.NoError(t, s.Cancel(j.ID))
	assert.True(t, s.IsCanceled(j.ID))
}

func TestStore_StartProcessingRejectsNonPending(t *testing.T) {
	s := NewStore()
	j := s.Create("x", "u", "application/pdf", nil)
	require.NoError(t, s.Cancel(j.ID))
	assert.ErrorIs(t, s.StartProcessing(j.ID), ErrNotPending)
}
