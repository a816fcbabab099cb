package job

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Retention is the fixed duration a terminal job is kept after reaching a
// terminal state before eviction (JOB_RETENTION, spec §3).
const Retention = 300 * time.Second

var (
	ErrNotFound   = errors.New("job: not found")
	ErrEvicted    = errors.New("job: evicted")
	ErrNotPending = errors.New("job: not pending")
)

// Store is the sole owner of all Job state (spec §9 "cyclic ownership
// resolved via Job Store sole owner"). All mutation goes through its
// id-based methods; callers never hold a *Job across a mutation.
type Store struct {
	mu      sync.Mutex
	nextID  ID
	jobs    map[ID]*Job
	evicted map[ID]bool // remembers ids that existed and were evicted, for ErrEvicted vs ErrNotFound
}

// NewStore builds an empty store. Job ids start at 1 and are never reused.
func NewStore() *Store {
	return &Store{
		jobs:    make(map[ID]*Job),
		evicted: make(map[ID]bool),
	}
}

// Create accepts a new job in state pending(3), assigning it the next
// monotonic id (spec §4.2 Print-Job step 5).
func (s *Store) Create(name, user, format string, data []byte) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	j := newJob(s.nextID, name, user, format, data)
	s.jobs[j.ID] = j
	return j
}

// Snapshot is a read-only copy of a job's mutable fields, the read-side of
// the "Job Store per-job sync with reader snapshots" concurrency rule
// (spec §5).
type Snapshot struct {
	ID             ID
	UUID           string
	Name           string
	RequestingUser string
	CreatedAt      time.Time
	CompletedAt    time.Time
	State          State
	StateReasons   []StateReason
	DocumentFormat string
	Error          string
}

func snapshotOf(j *Job) Snapshot {
	return Snapshot{
		ID:             j.ID,
		UUID:           j.UUID.String(),
		Name:           j.Name,
		RequestingUser: j.RequestingUser,
		CreatedAt:      j.CreatedAt,
		CompletedAt:    j.CompletedAt,
		State:          j.state,
		StateReasons:   j.StateReasons(),
		DocumentFormat: j.DocumentFormat,
		Error:          j.Error,
	}
}

// Snapshot returns the current state of job id, or ErrEvicted/ErrNotFound.
func (s *Store) Snapshot(id ID) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		if s.evicted[id] {
			return Snapshot{}, ErrEvicted
		}
		return Snapshot{}, ErrNotFound
	}
	return snapshotOf(j), nil
}

// DocumentBytes returns job id's submitted document bytes, or
// ErrEvicted/ErrNotFound. Used by the pipeline at the start of conversion;
// never exposed over IPP.
func (s *Store) DocumentBytes(id ID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		if s.evicted[id] {
			return nil, ErrEvicted
		}
		return nil, ErrNotFound
	}
	return j.DocumentBytes, nil
}

// List returns a snapshot of every non-evicted job (active and retained
// terminal), in ascending id order, for Get-Jobs (spec §4.2).
func (s *Store) List() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.jobs))
	for id := ID(1); id <= s.nextID; id++ {
		if j, ok := s.jobs[id]; ok {
			out = append(out, snapshotOf(j))
		}
	}
	return out
}

// QueuedCount returns the number of jobs not in a terminal state, for
// printer-state and queued-job-count (spec §3 invariant).
func (s *Store) QueuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if !j.state.IsTerminal() {
			n++
		}
	}
	return n
}

// IsProcessing reports whether any job currently holds state processing(5),
// the derivation rule for PrinterState (spec §3).
func (s *Store) IsProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.state == StateProcessing {
			return true
		}
	}
	return false
}

// StartProcessing transitions job id from pending to processing(5), reasons
// ["job-printing"] (spec §4.3 step 2). Returns ErrNotPending if the job was
// already canceled or otherwise not pending (e.g. Cancel-Job raced ahead of
// the pipeline).
func (s *Store) StartProcessing(id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.state != StatePending {
		return ErrNotPending
	}
	return j.transition(evtStartProcessing, StateProcessing, []StateReason{ReasonJobPrinting})
}

// Complete transitions job id to completed(9), reasons
// ["job-completed-successfully"] (spec §4.3 step 7).
func (s *Store) Complete(id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	return j.transition(evtComplete, StateCompleted, []StateReason{ReasonJobCompletedSuccessfully})
}

// Abort transitions job id to aborted(8), reasons ["job-aborted-by-system"],
// recording cause's message on the job (spec §4.3 step 4/6, §7).
func (s *Store) Abort(id ID, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if cause != nil {
		j.Error = cause.Error()
	}
	return j.transition(evtAbort, StateAborted, []StateReason{ReasonJobAbortedBySystem})
}

// Cancel transitions job id to canceled(7) if it is still pending, reasons
// ["job-canceled-by-user"] (spec §4.2 Cancel-Job). Returns ErrNotPending if
// the job has already left pending (already terminal, or processing). A
// processing job cannot be canceled: there is no cancel flag for it, and the
// pipeline runs it on to completed or aborted.
func (s *Store) Cancel(id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		if s.evicted[id] {
			return ErrEvicted
		}
		return ErrNotFound
	}
	if j.state != StatePending {
		return ErrNotPending
	}
	return j.transition(evtCancel, StateCanceled, []StateReason{ReasonJobCanceledByUser})
}

// IsCanceled reports whether job id has reached canceled(7), the
// cooperative-cancellation check the pipeline makes at its checkpoints
// (spec §4.3/§5).
func (s *Store) IsCanceled(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return ok && j.state == StateCanceled
}

// EvictTerminal removes every job that reached a terminal state more than
// Retention ago. Intended to be called periodically (see RunEvictionLoop).
func (s *Store) EvictTerminal(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		if j.state.IsTerminal() && now.Sub(j.CompletedAt) > Retention {
			delete(s.jobs, id)
			s.evicted[id] = true
			slog.Debug("job evicted", "job_id", id, "completed_at", j.CompletedAt)
		}
	}
}

// RunEvictionLoop runs EvictTerminal on a fixed tick until stop is closed.
// Intended to run for the lifetime of the server (spec §5 lifecycle).
func (s *Store) RunEvictionLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			s.EvictTerminal(t)
		}
	}
}
