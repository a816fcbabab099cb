package ippserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/OpenPrinting/goipp"
)

// dumpfile writes a json encoding of a to filename, used by the protocol
// dump feature when debug mode is enabled (spec §6.5 --debug).
func dumpfile(filename string, a any) {
	f, err := os.Create(filename)
	if err != nil {
		slog.Error("dumpfile", "err", err, "filename", filename)
		return
	}
	defer f.Close()
	dump(f, a)
}

// dumpIPPFile writes msg's formatted wire representation to filename.
func dumpIPPFile(filename string, msg *goipp.Message) {
	f, err := os.Create(filename)
	if err != nil {
		slog.Error("dumpIPPFile", "err", err, "filename", filename)
		return
	}
	defer f.Close()
	dumpIPP(f, msg)
}

func dumpIPP(w io.Writer, msg *goipp.Message) {
	fm := goipp.NewFormatter()
	fm.FmtRequest(msg)
	if _, err := fm.WriteTo(w); err != nil {
		slog.Error("dumpIPP", "err", err)
	}
}

func dump(w io.Writer, a any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		slog.Error("dump", "err", err)
	}
}
