// Package ippserver implements the IPP protocol engine (component C5/C6):
// decoding requests, dispatching the five supported operations, and the
// HTTP surface they ride on.
//
// References:
//   - https://datatracker.ietf.org/doc/html/rfc8011
//   - https://datatracker.ietf.org/doc/html/rfc2911
package ippserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/OpenPrinting/goipp"

	"github.com/escpos-ipp/printsrv/internal/convert"
	"github.com/escpos-ipp/printsrv/internal/job"
	"github.com/escpos-ipp/printsrv/internal/pipeline"
)

// Handler dispatches decoded IPP requests to the five operations spec §4.2
// names, and nothing else (spec §1 Non-goals: "IPP operations beyond the
// five listed").
type Handler struct {
	printer  *Printer
	store    *job.Store
	pipeline *pipeline.Pipeline
	host     string
}

// NewHandler builds the IPP dispatch table's receiver.
func NewHandler(printer *Printer, store *job.Store, pl *pipeline.Pipeline, host string) *Handler {
	return &Handler{printer: printer, store: store, pipeline: pl, host: host}
}

// Serve decodes req.Code and runs the matching operation, returning the
// response message to encode back to the client. A nil, nil return never
// happens: every path returns a best-effort goipp.Message even on error, so
// the HTTP layer always has bytes to write.
func (h *Handler) Serve(ctx context.Context, req *goipp.Message, body []byte) *goipp.Message {
	lg := slog.With("code", req.Code, "request_id", req.RequestID)
	lg.Info("ipp request received")

	switch goipp.Op(req.Code) {
	case goipp.OpGetPrinterAttributes:
		return h.getPrinterAttributes(req)
	case goipp.OpValidateJob:
		return h.validateJob(req)
	case goipp.OpPrintJob:
		return h.printJob(ctx, req, body)
	case goipp.OpGetJobs:
		return h.getJobs(req)
	case goipp.OpCancelJob:
		return h.cancelJob(req)
	default:
		lg.Warn("unsupported ipp operation")
		return baseResponse(goipp.StatusErrorOperationNotSupported, req.RequestID)
	}
}

// requestingUser reads requesting-user-name, defaulting to "anonymous" per
// spec §4.2's default for an absent/empty value.
func requestingUser(op goipp.Attributes) string {
	if user := extractValueDefault[goipp.String](op, "requesting-user-name", goipp.String("")).String(); user != "" {
		return user
	}
	return "anonymous"
}

// documentFormat reads document-format, defaulting to
// application/octet-stream per RFC 8011 §4.2.1.1.
func documentFormat(op goipp.Attributes) string {
	return extractValueDefault[goipp.String](op, "document-format", goipp.String("application/octet-stream")).String()
}

// getPrinterAttributes implements Get-Printer-Attributes (spec §4.2): no
// document involved, always answers from the live printer/store state.
func (h *Handler) getPrinterAttributes(req *goipp.Message) *goipp.Message {
	resp := baseResponse(goipp.StatusOk, req.RequestID)
	requested := requestedAttributeNames(req.Operation())
	h.printer.Attributes(resp.Printer(), h.host, requested)
	return resp
}

// validateJob implements Validate-Job (spec §4.2): checks the request the
// same way Print-Job would without ever creating a job or touching the
// device, per RFC 8011 §4.2.2's "same semantics as Print-Job but ... without
// processing the print data".
func (h *Handler) validateJob(req *goipp.Message) *goipp.Message {
	format := documentFormat(req.Operation())
	if !convert.IsSupported(format) {
		return baseResponse(goipp.StatusErrorDocumentFormatNotSupported, req.RequestID)
	}
	return baseResponse(goipp.StatusOk, req.RequestID)
}

// printJob implements Print-Job (spec §4.2/§4.3): validates the format,
// creates a job in state pending(3), hands it to the pipeline
// non-blocking, and replies with the accepted job's identity and state.
func (h *Handler) printJob(ctx context.Context, req *goipp.Message, body []byte) *goipp.Message {
	format := documentFormat(req.Operation())
	if !convert.IsSupported(format) {
		return baseResponse(goipp.StatusErrorDocumentFormatNotSupported, req.RequestID)
	}
	if len(body) == 0 {
		return baseResponse(goipp.StatusErrorBadRequest, req.RequestID)
	}

	user := requestingUser(req.Operation())
	name := extractValueDefault[goipp.String](req.Operation(), "job-name", goipp.String(fmt.Sprintf("job-%d", req.RequestID))).String()

	j := h.store.Create(name, user, format, body)
	// The job outlives this request: detach it from the request context,
	// which is canceled as soon as the HTTP handler returns.
	h.pipeline.Submit(context.WithoutCancel(ctx), j.ID)

	resp := baseResponse(goipp.StatusOk, req.RequestID)
	addJob := adder(resp.Job())
	addJob("job-id", goipp.TagInteger, goipp.Integer(j.ID))
	addJob("job-uri", goipp.TagURI, goipp.String(h.jobURI(j.ID)))
	addJob("job-state", goipp.TagEnum, goipp.Integer(j.State()))
	addJob("job-state-reasons", goipp.TagKeyword, stringsToValues(reasonStrings(j.StateReasons()))...)
	return resp
}

// getJobs implements Get-Jobs (spec §4.2): lists every non-evicted job,
// filtered by requesting-user-name when my-jobs is true.
func (h *Handler) getJobs(req *goipp.Message) *goipp.Message {
	myJobsOnly := extractValueDefault[goipp.Boolean](req.Operation(), "my-jobs", goipp.Boolean(false))
	user := requestingUser(req.Operation())

	resp := baseResponse(goipp.StatusOk, req.RequestID)
	for _, snap := range h.store.List() {
		if bool(myJobsOnly) && snap.RequestingUser != user {
			continue
		}
		jobAttrs := resp.EnsureGroup(goipp.TagJobGroup)
		addJob := adder(jobAttrs)
		addJob("job-id", goipp.TagInteger, goipp.Integer(snap.ID))
		addJob("job-uri", goipp.TagURI, goipp.String(h.jobURI(snap.ID)))
		addJob("job-name", goipp.TagName, goipp.String(snap.Name))
		addJob("job-originating-user-name", goipp.TagName, goipp.String(snap.RequestingUser))
		addJob("job-state", goipp.TagEnum, goipp.Integer(snap.State))
		addJob("job-state-reasons", goipp.TagKeyword, stringsToValues(reasonStrings(snap.StateReasons))...)
	}
	return resp
}

// cancelJob implements Cancel-Job (spec §4.2): only a pending job can be
// canceled. Unknown and evicted jobs get not-found; processing and
// already-terminal jobs both get not-possible, and a processing job runs on
// to completion or abort.
func (h *Handler) cancelJob(req *goipp.Message) *goipp.Message {
	idVal, err := extractValue[goipp.Integer](req.Operation(), "job-id")
	if err != nil {
		return baseResponse(goipp.StatusErrorBadRequest, req.RequestID)
	}
	id := job.ID(idVal)

	if err := h.store.Cancel(id); err != nil {
		switch err {
		case job.ErrNotFound, job.ErrEvicted:
			return baseResponse(goipp.StatusErrorNotFound, req.RequestID)
		case job.ErrNotPending:
			return baseResponse(goipp.StatusErrorNotPossible, req.RequestID)
		default:
			return baseResponse(goipp.StatusErrorInternal, req.RequestID)
		}
	}
	return baseResponse(goipp.StatusOk, req.RequestID)
}

func (h *Handler) jobURI(id job.ID) string {
	return fmt.Sprintf("%s/jobs/%d", h.printer.URI(h.host), id)
}

func reasonStrings(reasons []job.StateReason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}
