package stpm

import (
	"time"

	"tinygo.org/x/drivers"

	"energymon-go/errcode"
)

// PinOutput drives a GPIO line; true is high.
type PinOutput func(high bool)

// SPIDriver implements Transport over a full-duplex SPI bus with three
// control lines: chip select (SCS), enable (EN) and latch (SYN).
type SPIDriver struct {
	bus drivers.SPI
	scs PinOutput
	en  PinOutput
	syn PinOutput

	// Sleep is used for all line timing. Defaults to time.Sleep.
	Sleep func(time.Duration)

	tx [FrameLen]byte
	rx [FrameLen]byte
}

// NewSPIDriver returns a driver with SCS and SYN idle high.
func NewSPIDriver(bus drivers.SPI, scs, en, syn PinOutput) *SPIDriver {
	d := &SPIDriver{bus: bus, scs: scs, en: en, syn: syn, Sleep: time.Sleep}
	scs(true)
	syn(true)
	return d
}

// Transact performs one frame exchange. SCS is released even if the
// transfer fails.
func (d *SPIDriver) Transact(readAddr, writeAddr byte, value uint16) (uint32, error) {
	d.tx = NewFrame(readAddr, writeAddr, value)

	d.scs(false)
	d.Sleep(SelectSetup)
	err := d.bus.Tx(d.tx[:], d.rx[:])
	d.scs(true)
	if err != nil {
		return 0, errcode.Wrap(errcode.BusFault, "tx", err)
	}
	return checkResponse(d.rx[:])
}

// HardwareReset runs the power-up sequence that leaves the chip in SPI mode
// with registers at their reset values.
func (d *SPIDriver) HardwareReset() error {
	d.syn(true)
	d.en(false)
	d.scs(false)
	d.Sleep(ResetStepDelay)

	d.en(true)
	d.Sleep(ResetStepDelay)

	d.scs(true)
	d.Sleep(ResetSettleDelay)

	for i := 0; i < ResetSyncPulses; i++ {
		d.syn(false)
		d.Sleep(ResetStepDelay)
		d.syn(true)
		d.Sleep(ResetStepDelay)
	}

	d.scs(false)
	d.Sleep(ResetStepDelay)
	d.scs(true)
	return nil
}

// SyncPulse latches the measurement registers.
func (d *SPIDriver) SyncPulse() error {
	d.syn(false)
	d.Sleep(SyncPulseWidth)
	d.syn(true)
	d.Sleep(SyncPulseWidth)
	return nil
}
