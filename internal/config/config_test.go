package config

import (
	"flag"
	"testing"
)

func TestFromEnvironment_Defaults(t *testing.T) {
	c := FromEnvironment()
	if c.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0", c.Host)
	}
	if c.Port != 631 {
		t.Errorf("Port = %d, want 631", c.Port)
	}
	if c.PrinterName != "Thermal-Printer" {
		t.Errorf("PrinterName = %q, want Thermal-Printer", c.PrinterName)
	}
	if c.PrinterWidthMM != 80 {
		t.Errorf("PrinterWidthMM = %d, want 80", c.PrinterWidthMM)
	}
	if c.PrinterDPI != 203 {
		t.Errorf("PrinterDPI = %d, want 203", c.PrinterDPI)
	}
	if c.PrinterMaxPixels != 576 {
		t.Errorf("PrinterMaxPixels = %d, want 576", c.PrinterMaxPixels)
	}
	if c.LogLevel != "INFO" {
		t.Errorf("LogLevel = %q, want INFO", c.LogLevel)
	}
}

func TestFromEnvironment_Overrides(t *testing.T) {
	t.Setenv("PRINTSERVER_PORT", "8631")
	t.Setenv("PRINTER_WIDTH_MM", "58")
	t.Setenv("PRINTER_DPI", "300")
	t.Setenv("USB_VENDOR_ID", "1208")

	c := FromEnvironment()
	if c.Port != 8631 {
		t.Errorf("Port = %d, want 8631", c.Port)
	}
	if c.PrinterWidthMM != 58 {
		t.Errorf("PrinterWidthMM = %d, want 58", c.PrinterWidthMM)
	}
	if c.PrinterDPI != 300 {
		t.Errorf("PrinterDPI = %d, want 300", c.PrinterDPI)
	}
	if c.USBVendorID != 1208 {
		t.Errorf("USBVendorID = %d, want 1208", c.USBVendorID)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults ok", func(c *Config) {}, false},
		{"bad port low", func(c *Config) { c.Port = 0 }, true},
		{"bad port high", func(c *Config) { c.Port = 70000 }, true},
		{"bad width", func(c *Config) { c.PrinterWidthMM = 100 }, true},
		{"bad dpi", func(c *Config) { c.PrinterDPI = 600 }, true},
		{"empty name", func(c *Config) { c.PrinterName = "" }, true},
		{"zero max pixels", func(c *Config) { c.PrinterMaxPixels = 0 }, true},
		{"width 58 ok", func(c *Config) { c.PrinterWidthMM = 58 }, false},
		{"width 110 ok", func(c *Config) { c.PrinterWidthMM = 110 }, false},
		{"dpi 300 ok", func(c *Config) { c.PrinterDPI = 300 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := FromEnvironment()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterFlags_OverridesDefaults(t *testing.T) {
	c := FromEnvironment()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse([]string{"-port", "9631", "-no-mdns"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c.Port != 9631 {
		t.Errorf("Port = %d, want 9631", c.Port)
	}
	if !c.NoMDNS {
		t.Error("expected NoMDNS true after -no-mdns")
	}
}

func TestSlogLevel(t *testing.T) {
	c := FromEnvironment()
	c.Debug = true
	if got := c.SlogLevel(); got.String() != "DEBUG" {
		t.Errorf("SlogLevel() with Debug=true = %v, want DEBUG", got)
	}
	c.Debug = false
	c.LogLevel = "ERROR"
	if got := c.SlogLevel(); got.String() != "ERROR" {
		t.Errorf("SlogLevel() = %v, want ERROR", got)
	}
}
