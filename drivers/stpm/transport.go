package stpm

import "time"

// AddrNone is the dummy address: as a read address it requests nothing new,
// as a write address it writes nothing.
const AddrNone byte = 0xFF

// Timing of the control lines.
const (
	ResetStepDelay   = 5 * time.Millisecond
	ResetSettleDelay = 35 * time.Millisecond
	ResetSyncPulses  = 3
	SyncPulseWidth   = 10 * time.Microsecond
	SelectSetup      = 1 * time.Microsecond
)

// Transport moves single 5-byte frames to and from the chip and drives the
// reset and latch lines. Transact returns the payload of the response frame,
// which answers the read address of the previous transaction.
type Transport interface {
	Transact(readAddr, writeAddr byte, value uint16) (uint32, error)
	HardwareReset() error
	SyncPulse() error
}
