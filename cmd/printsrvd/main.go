// Command printsrvd runs the driverless thermal-printer IPP server: it
// exposes a USB (or character-device) ESC/POS printer over IPP with
// mDNS/DNS-SD discovery, so unmodified OS print clients can print to it
// without a vendor driver.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pterm/pterm"

	"github.com/escpos-ipp/printsrv/internal/config"
	"github.com/escpos-ipp/printsrv/internal/convert"
	"github.com/escpos-ipp/printsrv/internal/device"
	"github.com/escpos-ipp/printsrv/internal/ippserver"
	"github.com/escpos-ipp/printsrv/internal/job"
	"github.com/escpos-ipp/printsrv/internal/mdns"
	"github.com/escpos-ipp/printsrv/internal/pipeline"
)

// exit codes, spec §6.5.
const (
	exitOK             = 0
	exitError          = 1
	exitInterrupted    = 130
	evictionInterval   = 30 * time.Second
	mdnsShutdownPeriod = 2 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnvironment()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	initLogging(cfg)

	if cfg.Version {
		fmt.Println(config.Version())
		return exitOK
	}

	dev := buildDevice(cfg)

	if cfg.HealthCheck {
		return runHealthCheck(dev)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return exitError
	}

	store := job.NewStore()
	printer := ippserver.NewPrinter(cfg, store, dev)

	if cfg.Status {
		printStatusReport(cfg, printer, dev)
		return exitOK
	}

	converter := convert.NewConverter(convert.Options{
		PrinterMaxPixels: cfg.PrinterMaxPixels,
		PrinterDPI:       cfg.PrinterDPI,
	})
	pl := pipeline.New(store, converter, dev)
	handler := ippserver.NewHandler(printer, store, pl, cfg.Host)

	var opts []ippserver.Option
	if cfg.Debug {
		opts = append(opts, ippserver.WithDebug(""))
	}
	httpSrv, err := ippserver.New(handler, printer, opts...)
	if err != nil {
		slog.Error("failed to build ipp server", "error", err)
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	stopEviction := make(chan struct{})
	go store.RunEvictionLoop(evictionInterval, stopEviction)
	defer close(stopEviction)

	var mdnsSvc *mdns.Service
	if !cfg.NoMDNS {
		mdnsSvc, err = mdns.Register(mdns.Info{
			Name:            cfg.PrinterName,
			Port:            cfg.Port,
			MakeModel:       cfg.PrinterMakeModel,
			UUID:            cfg.PrinterUUID,
			DocumentFormats: formatStrings(),
		})
		if err != nil {
			slog.Warn("mdns registration failed, continuing without discovery", "error", err)
		}
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("printsrvd listening", "addr", addr, "printer", cfg.PrinterName)
		serveErr <- httpSrv.ListenAndServe(addr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			slog.Error("http server stopped", "error", err)
		}
	}

	mdnsSvc.Shutdown()

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		slog.Error("error shutting down http server", "error", err)
	}
	_ = dev.Disconnect()

	if ctx.Err() != nil {
		return exitInterrupted
	}
	return exitOK
}

func buildDevice(cfg config.Config) device.Backend {
	kind := device.KindAuto
	usbOpts := device.USBOptions{
		Vendor:       cfg.USBVendorID,
		Product:      cfg.USBProductID,
		WriteTimeout: cfg.USBTimeout,
	}
	if cfg.USBVendorID == 0 && cfg.USBProductID == 0 {
		if _, err := os.Stat(device.CharDevicePaths[0]); err == nil {
			kind = device.KindCharDev
		}
	}
	return device.New(kind, usbOpts, device.CharDevicePaths)
}

func runHealthCheck(dev device.Backend) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dev.Connect(ctx); err != nil {
		fmt.Println("unhealthy:", err)
		return exitError
	}
	defer dev.Disconnect()
	fmt.Println("healthy")
	return exitOK
}

func printStatusReport(cfg config.Config, printer *ippserver.Printer, dev device.Backend) {
	pterm.DefaultHeader.Println("printsrvd status")

	connected := "no"
	if dev.IsConnected() {
		connected = "yes"
	}

	pterm.DefaultTable.WithData(pterm.TableData{
		{"Printer name", cfg.PrinterName},
		{"Make and model", cfg.PrinterMakeModel},
		{"Width", fmt.Sprintf("%dmm", cfg.PrinterWidthMM)},
		{"DPI", fmt.Sprintf("%d", cfg.PrinterDPI)},
		{"State", printer.State().String()},
		{"Device connected", connected},
		{"Listen address", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))},
		{"mDNS", fmt.Sprintf("%t", !cfg.NoMDNS)},
	}).Render()
}

func initLogging(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	out := os.Stderr
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			slog.SetDefault(slog.New(slog.NewTextHandler(f, opts)))
			return
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, opts)))
}

func formatStrings() []string {
	out := make([]string, len(convert.SupportedFormats))
	for i, f := range convert.SupportedFormats {
		out[i] = string(f)
	}
	return out
}
