package ippserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OpenPrinting/goipp"
	"github.com/rusq/httpex"
)

// MaxDocumentSize bounds the body of a Print-Job request (spec §6.3:
// documents larger than this are rejected rather than buffered unbounded).
var MaxDocumentSize int64 = 104857600

const (
	hdrContentType = "Content-Type"
	ippMIMEType    = "application/ipp"
)

// Server is the HTTP surface the IPP protocol engine rides on: the two IPP
// endpoints (spec §6.1), the human status page, and the JSON printer
// snapshot.
type Server struct {
	handler *Handler
	printer *Printer
	srv     *http.Server

	debug   bool
	dumpdir string
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithDebug turns on the protocol-dump feature: every IPP request is
// written to dumpdir as both raw IPP text and JSON (spec §6.5 --debug).
// Responses are not dumped.
func WithDebug(dumpdir string) Option {
	return func(s *Server) {
		s.debug = true
		s.dumpdir = dumpdir
	}
}

// New builds the HTTP surface around handler and printer.
func New(handler *Handler, printer *Printer, opts ...Option) (*Server, error) {
	s := &Server{handler: handler, printer: printer}
	for _, opt := range opts {
		opt(s)
	}
	if s.debug {
		if s.dumpdir == "" {
			d, err := os.MkdirTemp("", "printsrv-dump-*")
			if err != nil {
				return nil, fmt.Errorf("create protocol dump directory: %w", err)
			}
			s.dumpdir = d
		} else if err := os.MkdirAll(s.dumpdir, 0o700); err != nil {
			return nil, fmt.Errorf("create protocol dump directory: %w", err)
		}
		slog.Info("protocol dump enabled", "directory", s.dumpdir)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /ipp/printer", s.handleIPP)
	mux.HandleFunc("POST /ipp/print", s.handleIPP)
	mux.HandleFunc("GET /printer", s.handlePrinterJSON)
	mux.HandleFunc("GET /", s.handleStatusPage)

	s.srv = &http.Server{
		Handler: withCORS(httpex.LogMiddleware(mux, log.Default())),
	}
	return s, nil
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Server", "printsrv")
		next.ServeHTTP(w, r)
	})
}

func httpError(w http.ResponseWriter, code int) {
	http.Error(w, fmt.Sprintf("%d %s", code, http.StatusText(code)), code)
}

// handleIPP decodes the IPP request body, dispatches it, and encodes the
// response, per spec §6.1's single-request/single-response contract. Both
// /ipp/printer and /ipp/print share this handler: the dispatch table itself
// decides what each operation means, not the URL it arrived on.
func (s *Server) handleIPP(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		httpError(w, http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if ct := r.Header.Get(hdrContentType); !strings.HasPrefix(ct, ippMIMEType) {
		httpError(w, http.StatusBadRequest)
		return
	}

	var msg goipp.Message
	if err := msg.Decode(r.Body); err != nil {
		slog.Warn("failed to decode ipp request", "error", err)
		httpError(w, http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxDocumentSize+1))
	if err != nil {
		slog.Warn("failed to read document body", "error", err)
	}
	if int64(len(body)) > MaxDocumentSize {
		httpError(w, http.StatusRequestEntityTooLarge)
		return
	}

	if s.debug {
		t := time.Now()
		dumpIPPFile(filepath.Join(s.dumpdir, fmt.Sprintf("req_%d_%04x.ipp", t.UnixNano(), msg.Code)), &msg)
		dumpfile(filepath.Join(s.dumpdir, fmt.Sprintf("req_%d_%04x.json", t.UnixNano(), msg.Code)), &msg)
	}

	resp := s.handler.Serve(r.Context(), &msg, body)

	w.Header().Set(hdrContentType, ippMIMEType)
	if err := resp.Encode(w); err != nil {
		slog.Error("failed to encode ipp response", "error", err)
	}
}

// handlePrinterJSON serves GET /printer: a JSON snapshot of printer
// identity and live state, for dashboards and health checks that would
// rather not speak IPP (SPEC_FULL.md §12).
func (s *Server) handlePrinterJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(hdrContentType, "application/json")
	if err := json.NewEncoder(w).Encode(s.printer.JSONSnapshot(hostOf(r))); err != nil {
		slog.Error("failed to encode printer snapshot", "error", err)
	}
}

// handleStatusPage serves a minimal human-readable status page at GET /,
// the thing a browser sees when a user navigates to the printer's mDNS
// hostname out of curiosity.
func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	snap := s.printer.JSONSnapshot(hostOf(r))
	w.Header().Set(hdrContentType, "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><title>%s</title></head>
<body>
<h1>%s</h1>
<p>State: %s</p>
<p>Model: %s</p>
<p>Active jobs: %d</p>
<p>Printer URI: %s</p>
</body></html>
`, snap.PrinterName, snap.PrinterName, snap.PrinterState, snap.PrinterMakeModel, snap.ActiveJobs, snap.PrinterURI)
}

func hostOf(r *http.Request) string {
	if h, _, ok := strings.Cut(r.Host, ":"); ok {
		return h
	}
	return r.Host
}

// ListenAndServe starts the HTTP server on addr, blocking until it stops.
func (s *Server) ListenAndServe(addr string) error {
	s.srv.Addr = addr
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
