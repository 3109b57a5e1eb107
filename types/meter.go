package types

// Meter configuration supplied on topic "config/meter" (retained).

type MeterConfig struct {
	// Number of 50 ms ticks averaged into one emitted sample.
	WindowSize int `yaml:"window_size" json:"window_size"`
	// Mains frequency in Hz: 50 or 60.
	LineFrequency int `yaml:"line_frequency" json:"line_frequency"`
	// Zero crossings averaged by the frequency monitor.
	ZCRDepth int `yaml:"zcr_depth" json:"zcr_depth"`
	// Trim of the MCU capture timer (1.0 = nominal).
	FrequencyZCRAdjust float32 `yaml:"frequency_zcr_adjust" json:"frequency_zcr_adjust"`
	// Trim of the metering chip oscillator (1.0 = 16 MHz).
	FrequencyChipAdjust float32 `yaml:"frequency_chip_adjust" json:"frequency_chip_adjust"`

	Channels [2]ChannelConfig `yaml:"channels" json:"channels"`
}

type ChannelConfig struct {
	Name string `yaml:"name" json:"name"`
	// Current front-end gain multiplier: 2, 4, 8 or 16.
	Gain int `yaml:"gain" json:"gain"`
	// Voltage divider factor (1 + R2/R1).
	Divider float32 `yaml:"divider" json:"divider"`
	// Shunt resistance in ohms.
	Shunt float32 `yaml:"shunt" json:"shunt"`

	Report ReportEnables `yaml:"report" json:"report"`
}

// ReportEnables selects which quantities of a channel are reported.
type ReportEnables struct {
	Frequency     bool `yaml:"frequency" json:"frequency"`
	Voltage       bool `yaml:"voltage" json:"voltage"`
	Current       bool `yaml:"current" json:"current"`
	ActivePower   bool `yaml:"active_power" json:"active_power"`
	ReactivePower bool `yaml:"reactive_power" json:"reactive_power"`
	Energy        bool `yaml:"energy" json:"energy"`
}

const (
	DefaultWindowSize = 20
	MinWindowSize     = 1
	MaxWindowSize     = 1000
	DefaultZCRDepth   = 20
)

// DefaultMeterConfig returns the configuration used when nothing is stored.
func DefaultMeterConfig() MeterConfig {
	ch := func(name string) ChannelConfig {
		return ChannelConfig{
			Name:    name,
			Gain:    2,
			Divider: 1700,
			Shunt:   0.005,
			Report:  ReportEnables{ActivePower: true},
		}
	}
	return MeterConfig{
		WindowSize:          DefaultWindowSize,
		LineFrequency:       50,
		ZCRDepth:            DefaultZCRDepth,
		FrequencyZCRAdjust:  1,
		FrequencyChipAdjust: 1,
		Channels:            [2]ChannelConfig{ch("Channel 1"), ch("Channel 2")},
	}
}

// ---- Engine state (retained on "meter/state") ----

type MeterLevel string

const (
	MeterResetting   MeterLevel = "resetting"
	MeterConfiguring MeterLevel = "configuring"
	MeterSampling    MeterLevel = "sampling"
	MeterFaulted     MeterLevel = "faulted"
)

type MeterState struct {
	Level  MeterLevel `json:"level"`
	Status string     `json:"status,omitempty"` // error code when faulted
	TS     int64      `json:"ts_ms"`
}

// ---- Control ----

// ResetAccumulator is published on "meter/reset" to zero the energy totals.
type ResetAccumulator struct{}
