package stpm

import "github.com/chewxy/math32"

// FixedDecimals is the binary point of the integer scale factors.
const FixedDecimals = 15

// Device constants left at their reset values by Configure.
const (
	voltageReference   float32 = 1.18
	voltageCalibration         = 0x800
	currentCalibration         = 0x800
	voltageGain        float32 = 2
	currentGain        float32 = 1
	integratorGain     float32 = 1
	decimationClock    float32 = 7812.5 // Hz at a 16 MHz oscillator
)

// CalibrationParameters describe the board around the chip.
type CalibrationParameters struct {
	VoltageDivider   float32 // 1 + R2/R1
	CurrentShunt     float32 // ohms
	OscillatorFactor float32 // 1.0 = 16 MHz
}

func DefaultCalibrationParameters() CalibrationParameters {
	return CalibrationParameters{
		VoltageDivider:   1700,
		CurrentShunt:     0.005,
		OscillatorFactor: 1,
	}
}

// FloatScaleFactors is the value of one raw count in physical units.
type FloatScaleFactors struct {
	VoltageRMS float32 // volts
	CurrentRMS float32 // amperes
	Power      float32 // watts
	Energy     float32 // watt-seconds
}

// IntScaleFactors is FloatScaleFactors shifted by FixedDecimals and scaled
// to the decimal resolution of CalibratedSample.
type IntScaleFactors struct {
	VoltageRMS uint32 // mV << FixedDecimals
	CurrentRMS uint32 // 0.1 mA << FixedDecimals
	Power      int32  // mW << FixedDecimals
	Energy     int64  // mWs << FixedDecimals
}

func trimFactor(code uint16) float32 {
	return 0.75 + float32(code)*(0.25/0x1000)
}

// DeriveFloat computes the per-count scale factors from p.
func DeriveFloat(p CalibrationParameters) FloatScaleFactors {
	calV := trimFactor(voltageCalibration)
	calI := trimFactor(currentCalibration)
	dclk := decimationClock * p.OscillatorFactor
	vref2 := voltageReference * voltageReference
	pow := integratorGain * voltageGain * currentGain * p.CurrentShunt * calV * calI

	return FloatScaleFactors{
		VoltageRMS: voltageReference * p.VoltageDivider / (calV * 2 * math32.Ldexp(1, 15)),
		CurrentRMS: voltageReference / (p.CurrentShunt * calI * currentGain * math32.Ldexp(1, 17)),
		Power:      vref2 * p.VoltageDivider / (pow * math32.Ldexp(1, 28)),
		Energy:     vref2 * p.VoltageDivider / (dclk * pow * math32.Ldexp(1, 17)),
	}
}

// DeriveInt converts float factors for integer-only use. Values truncate.
func DeriveInt(f FloatScaleFactors) IntScaleFactors {
	fixed := func(x, scale float32) float32 { return scale * math32.Ldexp(x, FixedDecimals) }
	return IntScaleFactors{
		VoltageRMS: uint32(fixed(f.VoltageRMS, 1e3)),
		CurrentRMS: uint32(fixed(f.CurrentRMS, 1e4)),
		Power:      int32(fixed(f.Power, 1e3)),
		Energy:     int64(fixed(f.Energy, 1e3)),
	}
}

// AccumulatedChannelSample holds window sums for one channel.
type AccumulatedChannelSample struct {
	VoltageRMS    uint64
	CurrentRMS    uint64
	PowerActive   int64
	PowerReactive int64
	EnergyActive  int64
	Samples       uint32
	Gain          CurrentGain
}

// Add folds one raw reading into the sums. EnergyActive is managed
// separately by the caller.
func (a *AccumulatedChannelSample) Add(r RawChannelSample) {
	a.VoltageRMS += uint64(r.VoltageRMS)
	a.CurrentRMS += uint64(r.CurrentRMS)
	a.PowerActive += int64(r.PowerActive)
	a.PowerReactive += int64(r.PowerReactive)
	a.Samples++
}

// CalibratedSample is one channel's averaged result in fixed point.
type CalibratedSample struct {
	VoltageRMS    uint64 // mV
	CurrentRMS    uint64 // 0.1 mA
	PowerActive   int64  // mW
	PowerReactive int64  // mvar
	EnergyActive  int64  // mWs
}

// Apply converts window sums to physical units. Voltage is averaged over
// the sample count; current and power are also divided by the gain
// multiplier; energy is divided by the gain multiplier only. Division
// truncates toward zero.
func (s IntScaleFactors) Apply(a AccumulatedChannelSample) CalibratedSample {
	n := uint64(a.Samples)
	if n == 0 {
		n = 1
	}
	gain := uint64(a.Gain.Multiplier())
	div := n * gain
	return CalibratedSample{
		VoltageRMS:    a.VoltageRMS * uint64(s.VoltageRMS) / n >> FixedDecimals,
		CurrentRMS:    a.CurrentRMS * uint64(s.CurrentRMS) / div >> FixedDecimals,
		PowerActive:   a.PowerActive * int64(s.Power) / int64(div) / (1 << FixedDecimals),
		PowerReactive: a.PowerReactive * int64(s.Power) / int64(div) / (1 << FixedDecimals),
		EnergyActive:  a.EnergyActive * s.Energy / int64(gain) / (1 << FixedDecimals),
	}
}
