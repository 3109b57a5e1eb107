// Package metering runs the sampling loop against the metering chip:
// it accumulates 50 ms readings into averaging windows, tracks the energy
// counters across wraparound, and persists the totals.
package metering

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"energymon-go/drivers/stpm"
	"energymon-go/errcode"
	"energymon-go/services/persist"
	"energymon-go/types"
)

const (
	TickInterval    = 50 * time.Millisecond
	PersistInterval = time.Second
	RestartBackoff  = 500 * time.Millisecond
	ErrorThreshold  = 3
)

// Chip is the part of *stpm.Chip the engine drives.
type Chip interface {
	HardwareReset() error
	Configure(cfg stpm.ChipConfig) error
	ReadSamples(out *[2]stpm.RawChannelSample) error
}

// Batch is emitted once per completed averaging window.
type Batch struct {
	Calibrated [2]stpm.CalibratedSample
	Raw        [2]stpm.AccumulatedChannelSample
	// Mains frequency in 10^-4 Hz at emission time, 0 if unknown.
	Frequency uint64
	TS        int64 // unix ms
}

// Inputs are the external signals the engine waits on alongside its tick.
type Inputs struct {
	Config <-chan types.MeterConfig
	Reset  <-chan struct{}
}

var errReconfigure = errors.New("reconfigure")

// Engine owns the chip for its whole lifetime. It is not safe for
// concurrent use; Run is its only entry point.
type Engine struct {
	chip  Chip
	store persist.Store
	emit  func(Batch)

	Log       *slog.Logger
	Now       func() time.Time
	NewTicker func(d time.Duration) (<-chan time.Time, func())
	// Frequency, if set, stamps each batch.
	Frequency func() uint64
	// OnState, if set, observes state transitions.
	OnState func(types.MeterState)

	cfg     types.MeterConfig
	scale   [2]stpm.IntScaleFactors
	gain    [2]stpm.CurrentGain
	divisor [2]int64

	raw         [2]stpm.RawChannelSample
	acc         [2]stpm.AccumulatedChannelSample
	samples     int
	energy      [2]int64
	energyLast  [2]uint32
	readErrors  int
	lastPersist time.Time
}

// New returns an engine that reads through chip, persists totals to store
// and hands finished windows to emit.
func New(chip Chip, store persist.Store, emit func(Batch)) *Engine {
	e := &Engine{
		chip:      chip,
		store:     store,
		emit:      emit,
		Log:       slog.Default(),
		Now:       time.Now,
		NewTicker: newTicker,
	}
	e.applyConfig(types.DefaultMeterConfig())
	return e
}

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Energy returns the current accumulator values in chip counts scaled to
// gain x16.
func (e *Engine) Energy() [2]int64 { return e.energy }

// gainDivisor brings the energy counter and window sums of a channel to a
// common x16 scale.
// TODO: confirm the x2 -> 8 mapping against a bench reference meter.
func gainDivisor(g stpm.CurrentGain) int64 {
	return 16 / int64(g.Multiplier())
}

func (e *Engine) applyConfig(cfg types.MeterConfig) {
	e.cfg = cfg
	if e.cfg.WindowSize < 1 {
		e.cfg.WindowSize = 1
	}
	for i, ch := range cfg.Channels {
		g, ok := stpm.ParseGain(ch.Gain)
		if !ok {
			e.Log.Warn("invalid gain, using x2", "channel", i, "gain", ch.Gain)
		}
		e.gain[i] = g
		e.divisor[i] = gainDivisor(g)
		e.scale[i] = stpm.DeriveInt(stpm.DeriveFloat(stpm.CalibrationParameters{
			VoltageDivider:   ch.Divider,
			CurrentShunt:     ch.Shunt,
			OscillatorFactor: cfg.FrequencyChipAdjust,
		}))
	}
}

// chipConfig leaves the chip's own calibration at mid-scale; all
// calibration happens in software.
func (e *Engine) chipConfig() stpm.ChipConfig {
	c := stpm.DefaultChipConfig()
	if e.cfg.LineFrequency == 60 {
		c.LineFrequency = stpm.Line60Hz
	}
	for i := range c.Channels {
		c.Channels[i].CurrentGain = e.gain[i]
	}
	return c
}

func (e *Engine) setState(level types.MeterLevel, err error) {
	if e.OnState == nil {
		return
	}
	st := types.MeterState{Level: level, TS: e.Now().UnixMilli()}
	if err != nil {
		st.Status = string(errcode.Of(err))
	}
	e.OnState(st)
}

// latestConfig takes the newest pending configuration without blocking.
func (e *Engine) latestConfig(ch <-chan types.MeterConfig) {
	for {
		select {
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			e.applyConfig(cfg)
		default:
			return
		}
	}
}

// session resets and configures the chip, then samples until the context
// ends or an unrecoverable error occurs. A configuration update re-enters
// at the configure step without resetting the chip.
func (e *Engine) session(ctx context.Context, in Inputs) error {
	e.latestConfig(in.Config)

	e.setState(types.MeterResetting, nil)
	if err := e.chip.HardwareReset(); err != nil {
		e.Log.Error("stpm hardware reset failed", "err", err)
		return err
	}
	e.energyLast = [2]uint32{}

	for {
		e.setState(types.MeterConfiguring, nil)
		if err := e.chip.Configure(e.chipConfig()); err != nil {
			e.Log.Error("stpm configuration failed", "err", err)
			return err
		}
		e.Log.Info("stpm configured", "window", e.cfg.WindowSize,
			"gain1", e.gain[0].String(), "gain2", e.gain[1].String())

		e.resetWindow()
		e.readErrors = 0
		e.lastPersist = e.Now()
		e.setState(types.MeterSampling, nil)

		err := e.sample(ctx, in)
		if err != errReconfigure {
			return err
		}
	}
}

func (e *Engine) sample(ctx context.Context, in Inputs) error {
	ticks, stop := e.NewTicker(TickInterval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cfg, ok := <-in.Config:
			if !ok {
				in.Config = nil
				continue
			}
			e.applyConfig(cfg)
			e.latestConfig(in.Config)
			return errReconfigure
		case _, ok := <-in.Reset:
			if !ok {
				in.Reset = nil
				continue
			}
			e.resetAccumulator()
		case <-ticks:
			if err := e.tick(); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) resetWindow() {
	e.acc = [2]stpm.AccumulatedChannelSample{}
	e.samples = 0
}

// resetAccumulator zeroes the energy totals. The averaging window is kept.
func (e *Engine) resetAccumulator() {
	e.energy = [2]int64{}
	e.Log.Info("energy accumulator reset")
}

// tick processes one sampling period. It returns an error only when the
// read error budget is exhausted.
func (e *Engine) tick() error {
	if err := e.chip.ReadSamples(&e.raw); err != nil {
		// The budget is checked before counting, so a fault needs
		// ErrorThreshold undecayed failures already on the counter.
		if e.readErrors >= ErrorThreshold {
			e.Log.Error("stpm too many read errors, restarting", "err", err, "errors", e.readErrors)
			return &errcode.E{C: errcode.Of(err), Op: "read_samples", Msg: "too many read errors", Err: err}
		}
		e.readErrors++
		e.Log.Warn("stpm read failed", "err", err, "errors", e.readErrors)
		return nil
	}
	if e.readErrors > 0 {
		e.readErrors--
	}

	for i := range e.raw {
		r := e.raw[i]
		e.acc[i].Add(r)
		// Two's-complement difference survives counter wraparound.
		delta := int64(int32(r.EnergyActive - e.energyLast[i]))
		e.energyLast[i] = r.EnergyActive
		e.energy[i] += delta * e.divisor[i]
	}

	e.samples++
	if e.samples >= e.cfg.WindowSize {
		e.emitWindow()
	}

	if now := e.Now(); now.Sub(e.lastPersist) > PersistInterval {
		e.persist()
		e.lastPersist = now
	}
	return nil
}

func (e *Engine) emitWindow() {
	var b Batch
	for i := range e.acc {
		a := e.acc[i]
		a.CurrentRMS *= uint64(e.divisor[i])
		a.PowerActive *= e.divisor[i]
		a.PowerReactive *= e.divisor[i]
		a.EnergyActive = e.energy[i]
		a.Samples = uint32(e.samples)
		a.Gain = e.gain[i]
		b.Raw[i] = a
		b.Calibrated[i] = e.scale[i].Apply(a)
	}
	if e.Frequency != nil {
		b.Frequency = e.Frequency()
	}
	b.TS = e.Now().UnixMilli()
	if e.emit != nil {
		e.emit(b)
	}
	e.resetWindow()
}

func (e *Engine) persist() {
	if e.store == nil {
		return
	}
	if err := e.store.WriteAccumulator(e.energy); err != nil {
		e.Log.Debug("accumulator write failed", "err", err)
	}
}
