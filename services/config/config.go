package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"energymon-go/bus"
	"energymon-go/types"
	"energymon-go/x/mathx"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	meterKey     = "meter"
	CtxDeviceKey = "device" // context key used for device ID
)

// MeterTopic carries the retained types.MeterConfig.
var MeterTopic = bus.T(configPrefix, meterKey)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// document is the top-level YAML layout.
type document struct {
	Meter types.MeterConfig `yaml:"meter"`
}

// Parse decodes a YAML document over the defaults and validates the result.
// Keys absent from raw keep their default values.
func Parse(raw []byte) (types.MeterConfig, error) {
	doc := document{Meter: types.DefaultMeterConfig()}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return types.MeterConfig{}, fmt.Errorf("parse meter config: %w", err)
	}
	return Validate(doc.Meter), nil
}

// Load reads a YAML file. A missing file yields the defaults.
func Load(path string) (types.MeterConfig, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return types.DefaultMeterConfig(), nil
	}
	if err != nil {
		return types.MeterConfig{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(raw)
}

// Validate clamps or replaces out-of-range values.
func Validate(c types.MeterConfig) types.MeterConfig {
	def := types.DefaultMeterConfig()

	c.WindowSize = mathx.Clamp(c.WindowSize, types.MinWindowSize, types.MaxWindowSize)
	if c.LineFrequency != 50 && c.LineFrequency != 60 {
		c.LineFrequency = def.LineFrequency
	}
	c.ZCRDepth = mathx.ClampPositive(c.ZCRDepth, def.ZCRDepth)
	c.FrequencyZCRAdjust = mathx.ClampPositive(c.FrequencyZCRAdjust, 1)
	c.FrequencyChipAdjust = mathx.ClampPositive(c.FrequencyChipAdjust, 1)
	for i := range c.Channels {
		ch := &c.Channels[i]
		switch ch.Gain {
		case 2, 4, 8, 16:
		default:
			ch.Gain = def.Channels[i].Gain
		}
		ch.Divider = mathx.ClampPositive(ch.Divider, def.Channels[i].Divider)
		ch.Shunt = mathx.ClampPositive(ch.Shunt, def.Channels[i].Shunt)
		if ch.Name == "" {
			ch.Name = def.Channels[i].Name
		}
	}
	return c
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
	Log  *slog.Logger
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName, Log: slog.Default()}
}

// PublishMeter publishes cfg as the retained meter configuration.
func PublishMeter(conn *bus.Connection, cfg types.MeterConfig) {
	conn.Publish(conn.NewMessage(MeterTopic, cfg, true))
}

// publishConfig reads the device config from embedded data and publishes it.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errors.New("missing device ID in context")
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.New("no embedded config for device: " + device)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return err
	}
	PublishMeter(conn, cfg)
	return nil
}

// Start publishes the embedded config for the device named in ctx. On
// failure the defaults are published so the meter can still run.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			s.Log.Warn("using default config", "err", err)
			PublishMeter(conn, types.DefaultMeterConfig())
		}
	}()
}
