//go:build linux && !baremetal

package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.bug.st/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"energymon-go/drivers/stpm"
	"energymon-go/services/persist"
	"energymon-go/services/zcr"
)

// HostOptions select the Linux resources.
type HostOptions struct {
	SPIPort   string
	SPIHz     int64
	SCS       string
	EN        string
	SYN       string
	ZCR       string // gpio name; empty disables frequency capture
	StorePath string
	Serial    string // serial device for reports; empty writes to stdout
	Baud      int
}

// OpenHost opens the meter through periph on a Linux single-board computer.
func OpenHost(o HostOptions) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	drv, closeSPI, err := stpm.OpenHost(stpm.HostConfig{
		Port:      o.SPIPort,
		Frequency: physic.Frequency(o.SPIHz) * physic.Hertz,
		SCS:       o.SCS,
		EN:        o.EN,
		SYN:       o.SYN,
	})
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	closers := []func() error{closeSPI}
	if o.Serial != "" {
		port, err := serial.Open(o.Serial, &serial.Mode{BaudRate: o.Baud})
		if err != nil {
			_ = closeSPI()
			return nil, fmt.Errorf("open %s: %w", o.Serial, err)
		}
		out = port
		closers = append(closers, port.Close)
	}

	var mu sync.Mutex
	b := &Board{
		Name:      "host",
		Chip:      stpm.New(drv),
		Store:     persist.NewFileStore(o.StorePath),
		Report:    out,
		CaptureHz: 1_000_000,
		Close: func() error {
			mu.Lock()
			defer mu.Unlock()
			var errs []error
			for _, c := range closers {
				errs = append(errs, c())
			}
			return errors.Join(errs...)
		},
	}
	if o.ZCR != "" {
		b.StartCapture = func(m *zcr.Monitor) error {
			p := gpioreg.ByName(o.ZCR)
			if p == nil {
				return fmt.Errorf("gpio %q not found", o.ZCR)
			}
			if err := p.In(gpio.PullUp, gpio.RisingEdge); err != nil {
				return fmt.Errorf("gpio %s: %w", o.ZCR, err)
			}
			c := startEdgeCapture(p, m)
			mu.Lock()
			// Stop capture before the SPI port goes away.
			closers = append([]func() error{c.Close}, closers...)
			mu.Unlock()
			return nil
		}
	}
	return b, nil
}
