//go:build rp2040

package platform

import (
	"device/rp"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"energymon-go/drivers/stpm"
	"energymon-go/services/persist"
	"energymon-go/services/zcr"
)

// Wiring on the energy monitor carrier board.
const (
	pinSCK  = machine.GPIO18
	pinSDO  = machine.GPIO19
	pinSDI  = machine.GPIO16
	pinSCS  = machine.GPIO17
	pinEN   = machine.GPIO20
	pinSYN  = machine.GPIO21
	pinZCR  = machine.GPIO22
	pinTX   = machine.GPIO0
	pinRX   = machine.GPIO1
	spiFreq = 2 * machine.MHz
	baud    = 115200

	// Flash wears out; one write a minute is plenty for an energy total.
	flashInterval = time.Minute
)

func output(p machine.Pin) stpm.PinOutput {
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return p.Set
}

// Open configures the board peripherals.
func Open() (*Board, error) {
	spi := machine.SPI0
	uart := uartx.UART0
	err := runSetup(
		setup{"spi0", func() error {
			return spi.Configure(machine.SPIConfig{
				Frequency: spiFreq,
				SCK:       pinSCK,
				SDO:       pinSDO,
				SDI:       pinSDI,
				Mode:      3,
			})
		}},
		setup{"uart0", func() error {
			return uart.Configure(uartx.UARTConfig{BaudRate: baud, TX: pinTX, RX: pinRX})
		}},
	)
	if err != nil {
		return nil, err
	}
	drv := stpm.NewSPIDriver(spi, output(pinSCS), output(pinEN), output(pinSYN))

	return &Board{
		Name:         "pico",
		Chip:         stpm.New(drv),
		Store:        persist.NewThrottled(persist.NewFlashStore(), flashInterval),
		Report:       uart,
		CaptureHz:    1_000_000,
		StartCapture: startCapture,
	}, nil
}

// startCapture timestamps rising edges with the free-running 1 MHz timer.
func startCapture(m *zcr.Monitor) error {
	pinZCR.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return pinZCR.SetInterrupt(machine.PinRising, func(machine.Pin) {
		m.Capture(rp.TIMER.TIMERAWL.Get())
	})
}
