package stpm

// RawChannelSample is one channel's register snapshot for a single tick.
type RawChannelSample struct {
	VoltageRMS    uint32 // 15-bit code
	CurrentRMS    uint32 // 17-bit code
	PowerActive   int32
	PowerReactive int32
	EnergyActive  uint32 // free-running counter
}

const (
	voltageRMSMask  = 1<<15 - 1
	currentRMSShift = 15
	currentRMSMask  = 1<<17 - 1
)

// splitRMS separates the packed DSP_REG14/15 word into voltage and current codes.
func splitRMS(v uint32) (voltage, current uint32) {
	return v & voltageRMSMask, (v >> currentRMSShift) & currentRMSMask
}

// ReadSamples latches a fresh measurement and reads both channels with a
// single pipelined read. On error out is left partially updated.
func (c *Chip) ReadSamples(out *[2]RawChannelSample) error {
	if err := c.t.SyncPulse(); err != nil {
		return err
	}
	var rms [2]uint32
	ph1, ph2 := &out[0], &out[1]
	err := c.ReadRegisters(
		ReadU32(DSP_REG14, &rms[0]),
		ReadU32(DSP_REG15, &rms[1]),
		ReadU32(PH1_REG1, &ph1.EnergyActive),
		ReadI32(PH1_REG5, &ph1.PowerActive),
		ReadI32(PH1_REG7, &ph1.PowerReactive),
		ReadU32(PH2_REG1, &ph2.EnergyActive),
		ReadI32(PH2_REG5, &ph2.PowerActive),
		ReadI32(PH2_REG7, &ph2.PowerReactive),
	)
	if err != nil {
		return err
	}
	ph1.VoltageRMS, ph1.CurrentRMS = splitRMS(rms[0])
	ph2.VoltageRMS, ph2.CurrentRMS = splitRMS(rms[1])
	return nil
}
