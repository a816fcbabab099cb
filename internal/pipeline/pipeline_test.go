package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/escpos-ipp/printsrv/internal/job"
)

// fakeConverter lets tests control conversion latency and outcome per call,
// standing in for the real Ghostscript/image stack.
type fakeConverter struct {
	mu     sync.Mutex
	delay  map[string]time.Duration
	fail   map[string]error
	calls  []string
}

func (f *fakeConverter) Convert(ctx context.Context, data []byte, format string) ([]byte, error) {
	key := string(data)
	f.mu.Lock()
	d := f.delay[key]
	err := f.fail[key]
	f.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return append([]byte("escpos:"), data...), nil
}

// fakeDevice records the order bytes are written and can simulate a
// connect/write failure.
type fakeDevice struct {
	mu        sync.Mutex
	writes    [][]byte
	connected bool
	failWrite bool
	failConn  bool
}

func (d *fakeDevice) Connect(ctx context.Context) error {
	if d.failConn {
		return errors.New("simulated connect failure")
	}
	d.connected = true
	return nil
}
func (d *fakeDevice) Disconnect() error { d.connected = false; return nil }
func (d *fakeDevice) IsConnected() bool { return d.connected }
func (d *fakeDevice) SendRaw(ctx context.Context, data []byte) error {
	if d.failWrite {
		return errors.New("simulated write failure")
	}
	d.mu.Lock()
	cp := append([]byte(nil), data...)
	d.writes = append(d.writes, cp)
	d.mu.Unlock()
	return nil
}

func waitForState(t *testing.T, store *job.Store, id job.ID, want job.State, timeout time.Duration) job.Snapshot {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		snap, err := store.Snapshot(id)
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		if snap.State == want {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %d did not reach state %v within %v", id, want, timeout)
	return job.Snapshot{}
}

func TestPipeline_HappyPathCompletesJob(t *testing.T) {
	store := job.NewStore()
	conv := &fakeConverter{}
	dev := &fakeDevice{}
	p := New(store, conv, dev)

	j := store.Create("receipt", "anonymous", "image/jpeg", []byte("payload"))
	p.Submit(context.Background(), j.ID)

	snap := waitForState(t, store, j.ID, job.StateCompleted, 2*time.Second)
	if snap.StateReasons[0] != job.ReasonJobCompletedSuccessfully {
		t.Errorf("reasons = %v", snap.StateReasons)
	}
	if len(dev.writes) != 1 || string(dev.writes[0]) != "escpos:payload" {
		t.Errorf("device writes = %v", dev.writes)
	}
}

func TestPipeline_ConversionFailureAbortsJob(t *testing.T) {
	store := job.NewStore()
	conv := &fakeConverter{fail: map[string]error{"bad": errors.New("boom")}}
	dev := &fakeDevice{}
	p := New(store, conv, dev)

	j := store.Create("bad doc", "anonymous", "image/jpeg", []byte("bad"))
	p.Submit(context.Background(), j.ID)

	snap := waitForState(t, store, j.ID, job.StateAborted, 2*time.Second)
	if snap.StateReasons[0] != job.ReasonJobAbortedBySystem {
		t.Errorf("reasons = %v", snap.StateReasons)
	}
	if snap.Error == "" {
		t.Error("expected Error to be recorded")
	}
	if len(dev.writes) != 0 {
		t.Error("expected no device writes on conversion failure")
	}
}

func TestPipeline_DeviceWriteFailureAbortsJob(t *testing.T) {
	store := job.NewStore()
	conv := &fakeConverter{}
	dev := &fakeDevice{failWrite: true}
	p := New(store, conv, dev)

	j := store.Create("x", "anonymous", "image/jpeg", []byte("payload"))
	p.Submit(context.Background(), j.ID)

	waitForState(t, store, j.ID, job.StateAborted, 2*time.Second)
}

func TestPipeline_CanceledBeforeProcessingNeverTouchesDevice(t *testing.T) {
	store := job.NewStore()
	conv := &fakeConverter{}
	dev := &fakeDevice{}
	p := New(store, conv, dev)

	j := store.Create("x", "anonymous", "image/jpeg", []byte("payload"))
	if err := store.Cancel(j.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	p.Submit(context.Background(), j.ID)

	// Give the (no-op) worker a moment to run and confirm it left the job
	// alone.
	time.Sleep(50 * time.Millisecond)
	snap, err := store.Snapshot(j.ID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.State != job.StateCanceled {
		t.Errorf("state = %v, want canceled", snap.State)
	}
	if len(dev.writes) != 0 {
		t.Error("expected zero device writes for a canceled job")
	}
}

// TestPipeline_DeviceAccessFollowsAcceptanceOrder is the FIFO-gate property
// from spec §5: job 2's conversion finishes before job 1's, yet the device
// must still see job 1's bytes first.
func TestPipeline_DeviceAccessFollowsAcceptanceOrder(t *testing.T) {
	store := job.NewStore()
	conv := &fakeConverter{
		delay: map[string]time.Duration{
			"slow": 100 * time.Millisecond,
			"fast": 0,
		},
	}
	dev := &fakeDevice{}
	p := New(store, conv, dev)

	j1 := store.Create("first", "anonymous", "image/jpeg", []byte("slow"))
	p.Submit(context.Background(), j1.ID)
	j2 := store.Create("second", "anonymous", "image/jpeg", []byte("fast"))
	p.Submit(context.Background(), j2.ID)

	waitForState(t, store, j2.ID, job.StateCompleted, 2*time.Second)
	waitForState(t, store, j1.ID, job.StateCompleted, 2*time.Second)

	dev.mu.Lock()
	defer dev.mu.Unlock()
	if len(dev.writes) != 2 {
		t.Fatalf("expected 2 device writes, got %d", len(dev.writes))
	}
	if string(dev.writes[0]) != "escpos:slow" || string(dev.writes[1]) != "escpos:fast" {
		t.Errorf("device write order = %q, %q; want slow then fast (acceptance order)", dev.writes[0], dev.writes[1])
	}
}
