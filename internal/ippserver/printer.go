package ippserver

import (
	"fmt"
	"time"

	"github.com/OpenPrinting/goipp"

	"github.com/escpos-ipp/printsrv/internal/config"
	"github.com/escpos-ipp/printsrv/internal/convert"
	"github.com/escpos-ipp/printsrv/internal/device"
	"github.com/escpos-ipp/printsrv/internal/job"
)

// PrinterState is the derived printer state (spec §3: "processing iff >=1
// job processing, else idle; stopped only by operator action, out of
// scope").
type PrinterState int32

const (
	PrinterIdle       PrinterState = 3
	PrinterProcessing PrinterState = 4
	PrinterStopped    PrinterState = 5
)

func (s PrinterState) String() string {
	switch s {
	case PrinterIdle:
		return "idle"
	case PrinterProcessing:
		return "processing"
	case PrinterStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Printer exposes the process-wide printer identity and the derived,
// dynamic attributes spec §6.2 requires in every Get-Printer-Attributes
// response. A single instance models the one physical printer this server
// manages (spec §1 Non-goals: multiple physical printers is out of scope).
type Printer struct {
	cfg       config.Config
	store     *job.Store
	dev       device.Backend
	startedAt time.Time
}

// NewPrinter builds the printer-attribute source.
func NewPrinter(cfg config.Config, store *job.Store, dev device.Backend) *Printer {
	return &Printer{cfg: cfg, store: store, dev: dev, startedAt: time.Now()}
}

// URI returns the printer's own ipp:// URI, used both as printer-uri in
// responses and as the job-uri prefix.
func (p *Printer) URI(host string) string {
	return fmt.Sprintf("ipp://%s:%d/ipp/printer", host, p.cfg.Port)
}

// State derives PrinterState from the job store (spec §3).
func (p *Printer) State() PrinterState {
	if p.store.IsProcessing() {
		return PrinterProcessing
	}
	return PrinterIdle
}

// StateReasons returns the printer-state-reasons keyword list.
func (p *Printer) StateReasons() []string {
	if !p.dev.IsConnected() {
		return []string{"media-needed-error"}
	}
	return []string{"none"}
}

// UpTimeSeconds returns printer-up-time: seconds since process start.
func (p *Printer) UpTimeSeconds() int {
	return int(time.Since(p.startedAt).Seconds())
}

func (p *Printer) widthMM100() int {
	return p.cfg.PrinterWidthMM * 100
}

// Attributes fills printerAttrs with the printer-attributes group for a
// Get-Printer-Attributes response, filtered by requested (nil = all), per
// spec §6.2's minimum attribute set.
func (p *Printer) Attributes(printerAttrs *goipp.Attributes, host string, requested []string) {
	add := adder(printerAttrs)
	alwaysIncluded := map[string]bool{
		"printer-state": true, "printer-state-reasons": true, "queued-job-count": true,
		"printer-up-time": true, "printer-uri-supported": true,
	}
	want := func(name string) bool { return alwaysIncluded[name] || wantsAttribute(requested, name) }

	if want("charset-supported") {
		add("charset-supported", goipp.TagCharset, goipp.String("utf-8"))
	}
	if want("compression-supported") {
		add("compression-supported", goipp.TagKeyword, goipp.String("none"))
	}
	if want("document-format-supported") {
		formats := make([]string, len(convert.SupportedFormats)+1)
		for i, f := range convert.SupportedFormats {
			formats[i] = string(f)
		}
		formats[len(convert.SupportedFormats)] = "application/octet-stream"
		add("document-format-supported", goipp.TagMimeType, stringsToValues(formats)...)
	}
	if want("printer-name") {
		add("printer-name", goipp.TagName, goipp.String(p.cfg.PrinterName))
	}
	if want("printer-info") {
		add("printer-info", goipp.TagText, goipp.String(p.cfg.PrinterInfo))
	}
	if want("printer-location") {
		add("printer-location", goipp.TagText, goipp.String(p.cfg.PrinterLocation))
	}
	if want("printer-make-and-model") {
		add("printer-make-and-model", goipp.TagText, goipp.String(p.cfg.PrinterMakeModel))
	}
	if want("printer-state") {
		add("printer-state", goipp.TagEnum, goipp.Integer(p.State()))
	}
	if want("printer-state-reasons") {
		add("printer-state-reasons", goipp.TagKeyword, stringsToValues(p.StateReasons())...)
	}
	if want("operations-supported") {
		add("operations-supported", goipp.TagEnum, intsToValues([]int{
			int(goipp.OpPrintJob), int(goipp.OpValidateJob), int(goipp.OpGetJobs),
			int(goipp.OpGetPrinterAttributes), int(goipp.OpCancelJob),
		})...)
	}
	if want("color-supported") {
		add("color-supported", goipp.TagBoolean, goipp.Boolean(false))
	}
	if want("media-supported") {
		add("media-supported", goipp.TagKeyword, goipp.String("roll"))
	}
	if want("printer-kind") {
		add("printer-kind", goipp.TagKeyword, goipp.String("thermal"))
	}
	if want("sides-supported") {
		add("sides-supported", goipp.TagKeyword, goipp.String("one-sided"))
	}
	if want("print-quality-supported") {
		add("print-quality-supported", goipp.TagEnum, intsToValues([]int{3, 4, 5})...)
	}
	if want("printer-resolution-supported") {
		add("printer-resolution-supported", goipp.TagResolution,
			goipp.Resolution{Xres: p.cfg.PrinterDPI, Yres: p.cfg.PrinterDPI, Units: goipp.UnitsDpi})
	}
	if want("media-size-supported") {
		add("media-size-supported", goipp.TagBeginCollection, goipp.Collection{
			goipp.MakeAttribute("x-dimension", goipp.TagInteger, goipp.Integer(p.widthMM100())),
			goipp.MakeAttribute("y-dimension", goipp.TagInteger, goipp.Integer(32767)),
		})
	}
	if want("printer-uri-supported") {
		add("printer-uri-supported", goipp.TagURI, goipp.String(p.URI(host)))
	}
	if want("uri-security-supported") {
		add("uri-security-supported", goipp.TagKeyword, goipp.String("none"))
	}
	if want("uri-authentication-supported") {
		add("uri-authentication-supported", goipp.TagKeyword, goipp.String("none"))
	}
	if want("printer-uuid") {
		add("printer-uuid", goipp.TagURI, goipp.String("urn:uuid:"+p.cfg.PrinterUUID))
	}
	if want("queued-job-count") {
		add("queued-job-count", goipp.TagInteger, goipp.Integer(p.store.QueuedCount()))
	}
	if want("printer-up-time") {
		add("printer-up-time", goipp.TagInteger, goipp.Integer(p.UpTimeSeconds()))
	}
}

// Snapshot is the GET /printer JSON shape (SPEC_FULL.md §12, grounded on
// the reference implementation's get_printer_url/PRINTER_ATTRIBUTES shape).
type Snapshot struct {
	PrinterName      string   `json:"printer_name"`
	PrinterInfo      string   `json:"printer_info"`
	PrinterLocation  string   `json:"printer_location"`
	PrinterMakeModel string   `json:"printer_make_model"`
	PrinterState     string   `json:"printer_state"`
	PrinterURI       string   `json:"printer_uri"`
	SupportedFormats []string `json:"supported_formats"`
	ActiveJobs       int      `json:"active_jobs"`
}

// JSONSnapshot builds the GET /printer response body.
func (p *Printer) JSONSnapshot(host string) Snapshot {
	formats := make([]string, len(convert.SupportedFormats))
	for i, f := range convert.SupportedFormats {
		formats[i] = string(f)
	}
	return Snapshot{
		PrinterName:      p.cfg.PrinterName,
		PrinterInfo:      p.cfg.PrinterInfo,
		PrinterLocation:  p.cfg.PrinterLocation,
		PrinterMakeModel: p.cfg.PrinterMakeModel,
		PrinterState:     p.State().String(),
		PrinterURI:       p.URI(host),
		SupportedFormats: formats,
		ActiveJobs:       p.store.QueuedCount(),
	}
}
