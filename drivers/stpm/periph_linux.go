//go:build linux && !baremetal

package stpm

import (
	"fmt"

	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// HostConfig names the Linux resources used to reach the chip.
type HostConfig struct {
	Port      string // spireg name, e.g. "/dev/spidev0.0" or "SPI0.0"
	Frequency physic.Frequency
	SCS       string // gpioreg pin names
	EN        string
	SYN       string
}

// periphSPI adapts a periph connection to the tinygo drivers.SPI interface.
type periphSPI struct {
	conn spi.Conn
}

func (p periphSPI) Tx(w, r []byte) error { return p.conn.Tx(w, r) }

func (p periphSPI) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := p.conn.Tx([]byte{b}, r[:])
	return r[0], err
}

func periphPin(name string) (PinOutput, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("stpm: gpio %q not found", name)
	}
	return func(high bool) { _ = p.Out(gpio.Level(high)) }, nil
}

// OpenHost opens the SPI port and control pins through periph. The returned
// closer releases the port.
func OpenHost(cfg HostConfig) (*SPIDriver, func() error, error) {
	if _, err := driverreg.Init(); err != nil {
		return nil, nil, fmt.Errorf("stpm: periph init: %w", err)
	}
	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, nil, fmt.Errorf("stpm: open %s: %w", cfg.Port, err)
	}
	if cfg.Frequency == 0 {
		cfg.Frequency = physic.MegaHertz
	}
	conn, err := port.Connect(cfg.Frequency, spi.Mode3, 8)
	if err != nil {
		_ = port.Close()
		return nil, nil, fmt.Errorf("stpm: connect %s: %w", cfg.Port, err)
	}

	var pins [3]PinOutput
	for i, name := range []string{cfg.SCS, cfg.EN, cfg.SYN} {
		if pins[i], err = periphPin(name); err != nil {
			_ = port.Close()
			return nil, nil, err
		}
	}
	return NewSPIDriver(periphSPI{conn: conn}, pins[0], pins[1], pins[2]), port.Close, nil
}
