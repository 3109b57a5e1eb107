//go:build linux

// energymon-host runs the meter on a Linux board with the chip on a spidev
// port, reporting JSON lines to stdout or a serial port.
//
//	energymon-host -config meter.yml -spi /dev/spidev0.0 -zcr GPIO22
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"energymon-go/internal/app"
	"energymon-go/internal/platform"
	"energymon-go/services/config"
)

func main() {
	configPath := flag.String("config", "energymon.yml", "meter config (YAML); defaults when missing")
	spiPort := flag.String("spi", "", "SPI port name, empty for the first available")
	spiHz := flag.Int64("spi-hz", 1_000_000, "SPI clock in Hz")
	scs := flag.String("scs", "GPIO8", "chip select pin")
	en := flag.String("en", "GPIO24", "chip enable pin")
	syn := flag.String("syn", "GPIO25", "sync pin")
	zcr := flag.String("zcr", "", "zero-crossing input pin, empty to disable frequency")
	store := flag.String("store", "energymon.acc", "accumulator file")
	port := flag.String("serial", "", "serial port for reports, empty for stdout")
	baud := flag.Int("baud", 115200, "serial baud rate")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	board, err := platform.OpenHost(platform.HostOptions{
		SPIPort:   *spiPort,
		SPIHz:     *spiHz,
		SCS:       *scs,
		EN:        *en,
		SYN:       *syn,
		ZCR:       *zcr,
		StorePath: *store,
		Serial:    *port,
		Baud:      *baud,
	})
	if err != nil {
		log.Error("open board", "err", err)
		os.Exit(1)
	}
	defer board.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("energymon running", "window", cfg.WindowSize, "line_hz", cfg.LineFrequency)
	err = app.Run(ctx, board, app.Options{Config: &cfg, Log: log})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("stopped", "err", err)
		os.Exit(1)
	}
}
