// Package mdns advertises the printer over mDNS/DNS-SD as an AirPrint-style
// IPP service, so unmodified OS print clients can discover it without a
// vendor driver (spec §1).
package mdns

import (
	"fmt"
	"log/slog"

	"github.com/grandcat/zeroconf"
)

// Info is the subset of printer identity mDNS needs to advertise.
type Info struct {
	Name             string
	Port             int
	MakeModel        string
	UUID             string
	DocumentFormats  []string // MIME types advertised in the pdl TXT record
}

// Service wraps the registered zeroconf server so it can be shut down
// cleanly (spec §5 shutdown: "unregister mDNS").
type Service struct {
	server *zeroconf.Server
}

// Register publishes the printer as an IPP Everywhere service
// (_ipp._tcp.local.) with AirPrint-compatible TXT records, grounded on the
// reference implementation's MDNS_TXT_RECORDS shape.
func Register(info Info) (*Service, error) {
	txt := []string{
		"txtvers=1",
		"qtotal=1",
		"rp=ipp/print",
		fmt.Sprintf("ty=%s", info.MakeModel),
		"URF=none",
		"Color=F",
		"Duplex=F",
		fmt.Sprintf("pdl=%s", joinFormats(info.DocumentFormats)),
		fmt.Sprintf("UUID=%s", info.UUID),
		"TLS=1.2",
	}

	server, err := zeroconf.Register(info.Name, "_ipp._tcp", "local.", info.Port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns: register %q: %w", info.Name, err)
	}
	slog.Info("mdns service registered", "name", info.Name, "port", info.Port)
	return &Service{server: server}, nil
}

// Shutdown unregisters the service. Safe to call on a nil *Service.
func (s *Service) Shutdown() {
	if s == nil || s.server == nil {
		return
	}
	s.server.Shutdown()
	slog.Info("mdns service unregistered")
}

func joinFormats(formats []string) string {
	out := ""
	for i, f := range formats {
		if i > 0 {
			out += ","
		}
		out += f
	}
	if out == "" {
		return "application/pdf,image/jpeg,image/png,image/pwg-raster"
	}
	return out
}
