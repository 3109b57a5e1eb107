package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw YAML bytes for that device
// -----------------------------------------------------------------------------

const cfgPico = `
meter:
  window_size: 20
  line_frequency: 50
  zcr_depth: 20
  frequency_zcr_adjust: 1.0
  frequency_chip_adjust: 1.0
  channels:
    - name: Channel 1
      gain: 2
      divider: 1700
      shunt: 0.005
      report: {frequency: true, voltage: true, current: true, active_power: true, energy: true}
    - name: Channel 2
      gain: 2
      divider: 1700
      shunt: 0.005
      report: {active_power: true}
`

const cfgHost = `
meter:
  window_size: 20
  channels:
    - name: Mains
      report: {frequency: true, voltage: true, current: true, active_power: true, reactive_power: true, energy: true}
    - name: Solar
      report: {active_power: true, energy: true}
`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"host": []byte(cfgHost),
}
