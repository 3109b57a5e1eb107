//go:build !baremetal

package platform

import (
	"os"
	"sync/atomic"
	"time"

	"energymon-go/drivers/stpm"
	"energymon-go/drivers/stpm/sim"
	"energymon-go/services/persist"
	"energymon-go/services/zcr"
)

// SimOptions shape the simulated mains.
type SimOptions struct {
	Channels  [2]sim.Channel
	LineHz    float64
	StorePath string // empty keeps the accumulator in memory
}

// OpenSim returns a board backed by the chip model, with zero crossings
// generated at LineHz.
func OpenSim(o SimOptions) (*Board, *sim.Chip) {
	m := sim.New()
	for i, ch := range o.Channels {
		m.SetChannel(i, ch)
	}
	if o.LineHz <= 0 {
		o.LineHz = 50
	}

	var store persist.Store = &persist.MemStore{}
	if o.StorePath != "" {
		store = persist.NewFileStore(o.StorePath)
	}

	var stop atomic.Bool
	b := &Board{
		Name:      "sim",
		Chip:      stpm.New(m.Driver()),
		Store:     store,
		Report:    os.Stdout,
		CaptureHz: 1_000_000,
		StartCapture: func(mon *zcr.Monitor) error {
			period := time.Duration(float64(time.Second) / o.LineHz)
			go func() {
				var ts uint32
				step := uint32(period / time.Microsecond)
				for !stop.Load() {
					time.Sleep(period)
					ts += step
					mon.Capture(ts)
				}
			}()
			return nil
		},
		Close: func() error { stop.Store(true); return nil },
	}
	return b, m
}
