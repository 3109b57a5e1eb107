// Package stpm drives an STPM3x dual-channel metering chip over SPI.
//
// Register writes and reads go through a Transport one 16-bit half at a
// time. Reads are pipelined: the response to a frame carries the register
// requested by the previous frame.
package stpm

import "energymon-go/errcode"

// Chip is the register-level view of the device.
type Chip struct {
	t Transport
}

func New(t Transport) *Chip { return &Chip{t: t} }

// Transport returns the underlying transport.
func (c *Chip) Transport() Transport { return c.t }

// HardwareReset pulses the reset sequence on the control lines.
func (c *Chip) HardwareReset() error { return c.t.HardwareReset() }

// SyncPulse latches the measurement registers.
func (c *Chip) SyncPulse() error { return c.t.SyncPulse() }

// Write16LSW writes the low half of reg.
func (c *Chip) Write16LSW(reg Reg, value uint16) error {
	_, err := c.t.Transact(AddrNone, reg.Addr(), value)
	return err
}

// Write16MSW writes the high half of reg.
func (c *Chip) Write16MSW(reg Reg, value uint16) error {
	_, err := c.t.Transact(AddrNone, reg.Addr()+1, value)
	return err
}

// Write32 writes the low half then the high half of reg.
func (c *Chip) Write32(reg Reg, value uint32) error {
	if err := c.Write16LSW(reg, uint16(value)); err != nil {
		return err
	}
	return c.Write16MSW(reg, uint16(value>>16))
}

// Configure applies cfg. A failed write is reported against the register
// it was aimed at.
func (c *Chip) Configure(cfg ChipConfig) error {
	for _, w := range cfg.Sequence() {
		var err error
		if w.LSWOnly {
			err = c.Write16LSW(w.Reg, uint16(w.Value))
		} else {
			err = c.Write32(w.Reg, w.Value)
		}
		if err != nil {
			return errcode.Wrap(errcode.ConfigurationFailure, w.Reg.String(), err)
		}
	}
	return nil
}
