//go:build !baremetal

package platform

import (
	"sync/atomic"
	"time"

	"energymon-go/services/zcr"
)

// edgePoll bounds how long a stopped capture keeps waiting for an edge.
const edgePoll = 100 * time.Millisecond

// edgePin is the part of a periph gpio.PinIn used for capture.
type edgePin interface {
	WaitForEdge(timeout time.Duration) bool
	Halt() error
}

// edgeCapture feeds rising edges of a host gpio into a monitor,
// timestamped in microseconds. Kernel scheduling adds jitter the MCU path
// does not have.
type edgeCapture struct {
	pin  edgePin
	stop atomic.Bool
	done chan struct{}
}

func startEdgeCapture(p edgePin, m *zcr.Monitor) *edgeCapture {
	c := &edgeCapture{pin: p, done: make(chan struct{})}
	start := time.Now()
	go func() {
		defer close(c.done)
		for !c.stop.Load() {
			if p.WaitForEdge(edgePoll) {
				m.Capture(uint32(time.Since(start).Microseconds()))
			}
		}
	}()
	return c
}

// Close stops the capture goroutine and halts edge detection on the pin.
func (c *edgeCapture) Close() error {
	c.stop.Store(true)
	err := c.pin.Halt()
	<-c.done
	return err
}
