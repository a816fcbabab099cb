// Package config holds the server's configuration: environment-variable
// defaults (spec §6.4), CLI flag overrides (spec §6.5), and validation.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config is the full set of tunables the server needs at startup. The
// printer, USB and log-level fields are read from environment variables
// (spec §6.4); Host, Port and LogLevel can also be overridden by CLI flags,
// and LogFile, NoMDNS, Debug and the one-shot modes are set by flags only
// (spec §6.5).
type Config struct {
	Host string
	Port int

	PrinterName      string
	PrinterInfo      string
	PrinterLocation  string
	PrinterMakeModel string
	PrinterWidthMM   int
	PrinterDPI       int
	PrinterMaxPixels int
	PrinterUUID      string

	USBVendorID    uint16
	USBProductID   uint16
	USBTimeout     time.Duration

	LogLevel string
	LogFile  string
	NoMDNS   bool
	Debug    bool

	HealthCheck bool
	Status      bool
	Version     bool
}

// allowedWidthsMM/allowedDPIs are the only values spec §6.4 permits.
var (
	allowedWidthsMM = []int{58, 80, 110}
	allowedDPIs     = []int{203, 300}
)

// version is stamped at build time in a full build; left as a constant here
// since this module has no release pipeline of its own.
const version = "0.1.0"

// Version returns the server's version string for --version (spec §6.5).
func Version() string { return version }

// FromEnvironment builds a Config from environment variables, applying the
// defaults from spec §6.4's table.
func FromEnvironment() Config {
	return Config{
		Host: getenv("PRINTSERVER_HOST", "0.0.0.0"),
		Port: getenvInt("PRINTSERVER_PORT", 631),

		PrinterName:      getenv("PRINTER_NAME", "Thermal-Printer"),
		PrinterInfo:      getenv("PRINTER_INFO", "Driverless Thermal Printer"),
		PrinterLocation:  getenv("PRINTER_LOCATION", ""),
		PrinterMakeModel: getenv("PRINTER_MAKE_MODEL", "Generic ESC/POS Thermal Printer"),
		PrinterWidthMM:   getenvInt("PRINTER_WIDTH_MM", 80),
		PrinterDPI:       getenvInt("PRINTER_DPI", 203),
		PrinterMaxPixels: getenvInt("PRINTER_MAX_PIXELS", 576),
		PrinterUUID:      getenv("PRINTER_UUID", "00000000-0000-0000-0000-000000000000"),

		USBVendorID:  uint16(getenvInt("USB_VENDOR_ID", 0)),
		USBProductID: uint16(getenvInt("USB_PRODUCT_ID", 0)),
		USBTimeout:   time.Duration(getenvInt("USB_TIMEOUT", 5000)) * time.Millisecond,

		LogLevel: getenv("LOG_LEVEL", "INFO"),
	}
}

// RegisterFlags wires CLI flags onto fs, overriding the environment-derived
// defaults already in cfg (spec §6.5: "flags override env"). Call
// fs.Parse after this.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Host, "host", c.Host, "address to bind the IPP HTTP server to")
	fs.IntVar(&c.Port, "port", c.Port, "port to bind the IPP HTTP server to")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: DEBUG, INFO, WARN, or ERROR")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "write logs to `file` instead of stderr")
	fs.BoolVar(&c.NoMDNS, "no-mdns", c.NoMDNS, "disable mDNS/DNS-SD advertisement")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "enable debug logging (as -log-level=DEBUG) and the IPP protocol dump")
	fs.BoolVar(&c.HealthCheck, "health-check", false, "check printer health and exit (0 healthy, 1 unhealthy)")
	fs.BoolVar(&c.Status, "status", false, "print a status report and exit")
	fs.BoolVar(&c.Version, "version", false, "print the version and exit")
}

// Validate rejects the out-of-range configurations named in spec §6.4.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if !contains(allowedWidthsMM, c.PrinterWidthMM) {
		return fmt.Errorf("invalid printer width %dmm: must be one of %v", c.PrinterWidthMM, allowedWidthsMM)
	}
	if !contains(allowedDPIs, c.PrinterDPI) {
		return fmt.Errorf("invalid printer DPI %d: must be one of %v", c.PrinterDPI, allowedDPIs)
	}
	if c.PrinterName == "" {
		return fmt.Errorf("printer name must not be empty")
	}
	if c.PrinterMaxPixels <= 0 {
		return fmt.Errorf("invalid printer max pixels %d: must be positive", c.PrinterMaxPixels)
	}
	return nil
}

// SlogLevel maps LogLevel/Debug to a slog.Level (ambient logging stack).
func (c *Config) SlogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	switch c.LogLevel {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
