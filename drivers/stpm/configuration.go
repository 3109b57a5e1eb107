package stpm

// CurrentGain selects the current-channel front-end amplification.
type CurrentGain uint8

const (
	GainX2 CurrentGain = iota
	GainX4
	GainX8
	GainX16
)

// Multiplier is the amplification factor of the gain setting.
func (g CurrentGain) Multiplier() uint32 { return 2 << (g & 3) }

func (g CurrentGain) String() string {
	switch g & 3 {
	case GainX2:
		return "x2"
	case GainX4:
		return "x4"
	case GainX8:
		return "x8"
	}
	return "x16"
}

// ParseGain maps a multiplier (2, 4, 8, 16) to its gain code.
func ParseGain(mult int) (CurrentGain, bool) {
	switch mult {
	case 2:
		return GainX2, true
	case 4:
		return GainX4, true
	case 8:
		return GainX8, true
	case 16:
		return GainX16, true
	}
	return GainX2, false
}

// LineFrequency is the nominal mains frequency.
type LineFrequency uint8

const (
	Line50Hz LineFrequency = 0
	Line60Hz LineFrequency = 1
)

// ChannelConfig holds the per-channel DSP settings.
type ChannelConfig struct {
	CurrentGain        CurrentGain
	VoltageCalibration uint16 // 12 bits
	CurrentCalibration uint16 // 12 bits
	VoltagePhaseShift  uint8  // 2 bits
	CurrentPhaseShift  uint16 // 10 bits
	VoltageSwell       uint16 // 10 bits
	VoltageSag         uint16 // 10 bits
	CurrentSwell       uint16 // 10 bits
}

// DefaultChannelConfig returns mid-scale calibration, gain x2 and swell
// thresholds at full scale.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		CurrentGain:        GainX2,
		VoltageCalibration: 0x800,
		CurrentCalibration: 0x800,
		VoltageSwell:       0x3FF,
		CurrentSwell:       0x3FF,
	}
}

// ChipConfig is the full device configuration.
type ChipConfig struct {
	LineFrequency LineFrequency
	Channels      [2]ChannelConfig
}

func DefaultChipConfig() ChipConfig {
	return ChipConfig{
		LineFrequency: Line50Hz,
		Channels:      [2]ChannelConfig{DefaultChannelConfig(), DefaultChannelConfig()},
	}
}

// Fixed register values.
const (
	dspCR1Value = 0x040000A0
	dspCR2Value = 0x240000A0
	dspCR3Base  = 0x000004E0
	dspCR3ZCREn = 1 << 16
	dfeCRBase   = 0x03270327
	dspCRTamper = 0x00000FFF
	usReg1Value = 0x00004007
	usReg2Value = 0x00000683
	usReg3Value = 0x0000
)

func dspCR3(f LineFrequency) uint32 {
	return dspCR3Base | uint32(f&1)<<27 | dspCR3ZCREn
}

// dspCR4 packs the phase compensation of both channels.
func dspCR4(ch0, ch1 ChannelConfig) uint32 {
	return uint32(ch1.CurrentPhaseShift&0x3FF) |
		uint32(ch1.VoltagePhaseShift&0x3)<<10 |
		uint32(ch0.CurrentPhaseShift&0x3FF)<<12 |
		uint32(ch0.VoltagePhaseShift&0x3)<<22
}

// voltageCR packs voltage calibration with swell and sag thresholds.
func voltageCR(c ChannelConfig) uint32 {
	return uint32(c.VoltageCalibration&0xFFF) |
		uint32(c.VoltageSwell&0x3FF)<<12 |
		uint32(c.VoltageSag&0x3FF)<<22
}

// currentCR packs current calibration with the swell threshold.
func currentCR(c ChannelConfig) uint32 {
	return uint32(c.CurrentCalibration&0xFFF) |
		uint32(c.CurrentSwell&0x3FF)<<12
}

func dfeCR(g CurrentGain) uint32 {
	return dfeCRBase | uint32(g&3)<<26
}

// RegisterWrite is one step of the configuration sequence.
type RegisterWrite struct {
	Reg   Reg
	Value uint32
	// LSWOnly writes only the low half.
	LSWOnly bool
}

// Sequence returns the ordered register writes that apply cfg.
func (cfg ChipConfig) Sequence() []RegisterWrite {
	ch0, ch1 := cfg.Channels[0], cfg.Channels[1]
	return []RegisterWrite{
		{Reg: DSP_CR1, Value: dspCR1Value},
		{Reg: DSP_CR2, Value: dspCR2Value},
		{Reg: DSP_CR3, Value: dspCR3(cfg.LineFrequency)},
		{Reg: DSP_CR4, Value: dspCR4(ch0, ch1)},
		{Reg: DSP_CR5, Value: voltageCR(ch0)},
		{Reg: DSP_CR6, Value: currentCR(ch0)},
		{Reg: DSP_CR7, Value: voltageCR(ch1)},
		{Reg: DSP_CR8, Value: currentCR(ch1)},
		{Reg: DSP_CR9, Value: dspCRTamper},
		{Reg: DSP_CR10, Value: dspCRTamper},
		{Reg: DSP_CR11, Value: dspCRTamper},
		{Reg: DSP_CR12, Value: dspCRTamper},
		{Reg: DFE_CR1, Value: dfeCR(ch0.CurrentGain)},
		{Reg: DFE_CR2, Value: dfeCR(ch1.CurrentGain)},
		{Reg: DSP_IRQ1, Value: 0},
		{Reg: DSP_IRQ2, Value: 0},
		{Reg: US_REG1, Value: usReg1Value},
		{Reg: US_REG2, Value: usReg2Value},
		{Reg: US_REG3, Value: usReg3Value, LSWOnly: true},
	}
}
