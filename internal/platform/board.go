// Package platform opens the hardware behind the meter for each build
// target: the chip transport, the frequency capture input, the accumulator
// store and the report output.
package platform

import (
	"io"

	"energymon-go/drivers/stpm"
	"energymon-go/errcode"
	"energymon-go/services/persist"
	"energymon-go/services/zcr"
)

// Board is everything the firmware needs from the target.
type Board struct {
	Name   string
	Chip   *stpm.Chip
	Store  persist.Store
	Report io.Writer

	// CaptureHz is the rate of the timer that timestamps zero crossings.
	CaptureHz uint32
	// StartCapture arranges for m.Capture to be called on each rising
	// zero crossing.
	StartCapture func(m *zcr.Monitor) error

	// Close releases host resources; nil on the MCU.
	Close func() error
}

// setup is one peripheral configuration step of opening a board.
type setup struct {
	name string
	run  func() error
}

// runSetup runs the steps in order and stops at the first failure, which
// is returned with the step name as Op.
func runSetup(steps ...setup) error {
	for _, s := range steps {
		if err := s.run(); err != nil {
			return errcode.Wrap(errcode.Error, s.name, err)
		}
	}
	return nil
}
