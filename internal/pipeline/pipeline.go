// Package pipeline implements the print pipeline (component C4): the
// worker sequence that turns an accepted job into bytes on the wire,
// running conversions in parallel while serialising device access in the
// exact order jobs were accepted (spec §4.3, §5).
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/escpos-ipp/printsrv/internal/device"
	"github.com/escpos-ipp/printsrv/internal/job"
)

// Converter is the document-bytes-to-ESC/POS contract the pipeline depends
// on; *convert.Converter satisfies it. Kept as an interface here so the
// pipeline's FIFO-ordering and error-mapping logic can be tested without a
// real Ghostscript/image stack.
type Converter interface {
	Convert(ctx context.Context, data []byte, declaredFormat string) ([]byte, error)
}

// Pipeline wires a job Store to a Converter and a device Backend, and
// drives each accepted job through spec §4.3's eight steps.
type Pipeline struct {
	store     *job.Store
	converter Converter
	dev       device.Backend

	// turnMu/lastTurn implement the acceptance-order FIFO gate for device
	// access (spec §5 "device access follows acceptance-order FIFO gate"):
	// conversions run freely in parallel, but each job's device phase waits
	// on the previous job's device-phase-done channel before it may run,
	// regardless of which job's conversion happens to finish first.
	turnMu   sync.Mutex
	lastTurn chan struct{}
}

// New builds a Pipeline.
func New(store *job.Store, converter Converter, dev device.Backend) *Pipeline {
	done := make(chan struct{})
	close(done) // the first job never waits on anyone
	return &Pipeline{store: store, converter: converter, dev: dev, lastTurn: done}
}

// Submit accepts job id for processing: it reserves id's place in the
// device-access FIFO order synchronously (so acceptance order is fixed the
// moment this call returns) then runs the rest of the pipeline in a
// background goroutine, per spec §4.2 Print-Job's "hand to Print Pipeline
// non-blocking".
func (p *Pipeline) Submit(ctx context.Context, id job.ID) {
	myTurn := make(chan struct{})

	p.turnMu.Lock()
	waitFor := p.lastTurn
	p.lastTurn = myTurn
	p.turnMu.Unlock()

	go p.run(ctx, id, waitFor, myTurn)
}

// run implements spec §4.3's eight-step sequence for a single job.
func (p *Pipeline) run(ctx context.Context, id job.ID, waitFor <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	snap, err := p.store.Snapshot(id)
	if err != nil {
		slog.Warn("pipeline: job vanished before processing", "job_id", id, "error", err)
		return
	}
	if snap.State != job.StatePending {
		// Already canceled (or otherwise left pending) before we got here.
		return
	}

	if p.store.IsCanceled(id) {
		return
	}

	if err := p.store.StartProcessing(id); err != nil {
		slog.Warn("pipeline: could not start processing", "job_id", id, "error", err)
		return
	}

	data, err := p.store.DocumentBytes(id)
	if err != nil {
		_ = p.store.Abort(id, err)
		return
	}

	escpos, err := p.converter.Convert(ctx, data, snap.DocumentFormat)
	if err != nil {
		slog.Warn("pipeline: conversion failed", "job_id", id, "error", err)
		_ = p.store.Abort(id, err)
		return
	}

	if p.store.IsCanceled(id) {
		return
	}

	// Wait our turn at the device so writes happen in acceptance order,
	// then hold the device's own exclusive lock for the actual write.
	<-waitFor

	if p.store.IsCanceled(id) {
		return
	}

	if err := p.dev.Connect(ctx); err != nil {
		slog.Warn("pipeline: device connect failed", "job_id", id, "error", err)
		_ = p.store.Abort(id, err)
		return
	}

	if err := p.dev.SendRaw(ctx, escpos); err != nil {
		slog.Warn("pipeline: device write failed", "job_id", id, "error", err)
		_ = p.store.Abort(id, err)
		return
	}

	if err := p.store.Complete(id); err != nil {
		slog.Warn("pipeline: could not mark job completed", "job_id", id, "error", err)
	}
}
