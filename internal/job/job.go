// Package job implements the print job lifecycle and in-memory store
// (components C3/C4's shared state): job creation, state transitions guarded
// by a finite-state machine, and retention-based eviction of terminal jobs.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// ID is a job identifier, strictly increasing and never reused.
type ID uint32

// State is the job's lifecycle state. Numeric values match the IPP job-state
// enumeration (RFC 8011 §5.3.7) used on the wire.
type State int32

const (
	StatePending    State = 3
	StateProcessing State = 5
	StateCanceled   State = 7
	StateAborted    State = 8
	StateCompleted  State = 9
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateProcessing:
		return "processing"
	case StateCanceled:
		return "canceled"
	case StateAborted:
		return "aborted"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// IsTerminal reports whether s is one of the retained terminal states.
func (s State) IsTerminal() bool {
	return s == StateCanceled || s == StateAborted || s == StateCompleted
}

// StateReason is a job-state-reasons keyword (spec §3/§4.2/§4.3). Only the
// reasons the pipeline actually produces are named; unlike the full IPP
// registry, this printer never emits the rest.
type StateReason string

const (
	ReasonJobQueued                StateReason = "job-queued"
	ReasonJobPrinting              StateReason = "job-printing"
	ReasonJobCanceledByUser        StateReason = "job-canceled-by-user"
	ReasonJobAbortedBySystem       StateReason = "job-aborted-by-system"
	ReasonJobCompletedSuccessfully StateReason = "job-completed-successfully"
)

// fsm event names driving the transitions in spec §3's state diagram.
const (
	evtStartProcessing = "start-processing"
	evtComplete        = "complete"
	evtAbort           = "abort"
	evtCancel          = "cancel"
)

var fsmEvents = []fsm.EventDesc{
	{Name: evtStartProcessing, Src: []string{StatePending.String()}, Dst: StateProcessing.String()},
	{Name: evtComplete, Src: []string{StateProcessing.String()}, Dst: StateCompleted.String()},
	{Name: evtAbort, Src: []string{StateProcessing.String()}, Dst: StateAborted.String()},
	{Name: evtCancel, Src: []string{StatePending.String()}, Dst: StateCanceled.String()},
}

// Job is one submitted print job (spec §3 data model).
type Job struct {
	ID             ID
	UUID           uuid.UUID
	Name           string
	RequestingUser string
	CreatedAt      time.Time
	CompletedAt    time.Time // zero until terminal
	DocumentFormat string
	DocumentBytes  []byte
	Error          string

	state        State
	stateReasons []StateReason
	sm           *fsm.FSM
}

// newJob constructs a job in state pending(3), reasons ["job-queued"], per
// spec §4.2 Print-Job step 5.
func newJob(id ID, name, user, format string, data []byte) *Job {
	j := &Job{
		ID:             id,
		UUID:           uuid.New(),
		Name:           name,
		RequestingUser: user,
		CreatedAt:      time.Now(),
		DocumentFormat: format,
		DocumentBytes:  data,
		state:          StatePending,
		stateReasons:   []StateReason{ReasonJobQueued},
	}
	j.sm = fsm.NewFSM(StatePending.String(), fsmEvents, fsm.Callbacks{})
	return j
}

// State returns the job's current state.
func (j *Job) State() State { return j.state }

// StateReasons returns a copy of the job's current state-reasons.
func (j *Job) StateReasons() []StateReason {
	out := make([]StateReason, len(j.stateReasons))
	copy(out, j.stateReasons)
	return out
}

// transition drives the job's fsm to newState, recording reasons and, for a
// terminal state, the completion timestamp. The store serializes calls into
// this method; Job itself assumes single-writer access.
func (j *Job) transition(event string, newState State, reasons []StateReason) error {
	if err := j.sm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("job %d: %s -> %s: %w", j.ID, j.state, newState, err)
	}
	j.state = newState
	j.stateReasons = reasons
	if newState.IsTerminal() {
		j.CompletedAt = time.Now()
	}
	return nil
}
