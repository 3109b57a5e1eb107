package metering

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energymon-go/drivers/stpm"
	"energymon-go/errcode"
	"energymon-go/services/persist"
	"energymon-go/types"
)

// fakeChip returns scripted readings; a nil entry in fail means success.
type fakeChip struct {
	resets     int
	configures []stpm.ChipConfig
	resetErr   error
	confErr    error
	reads      int
	fail       []bool
	sample     [2]stpm.RawChannelSample
}

func (f *fakeChip) HardwareReset() error { f.resets++; return f.resetErr }

func (f *fakeChip) Configure(cfg stpm.ChipConfig) error {
	f.configures = append(f.configures, cfg)
	return f.confErr
}

func (f *fakeChip) ReadSamples(out *[2]stpm.RawChannelSample) error {
	i := f.reads
	f.reads++
	if i < len(f.fail) && f.fail[i] {
		return errcode.Wrap(errcode.BusFault, "tx", errors.New("boom"))
	}
	*out = f.sample
	return nil
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(chip Chip, store persist.Store) (*Engine, *[]Batch, *clock) {
	var batches []Batch
	e := New(chip, store, func(b Batch) { batches = append(batches, b) })
	e.Log = discardLogger()
	c := &clock{t: time.Unix(1000, 0)}
	e.Now = c.now
	e.lastPersist = c.now()
	return e, &batches, c
}

func TestEnergyDeltaWraparound(t *testing.T) {
	chip := &fakeChip{}
	e, _, _ := newTestEngine(chip, nil)
	e.energyLast = [2]uint32{0xFFFFFFF0, 0}

	chip.sample[0].EnergyActive = 0x00000005
	require.NoError(t, e.tick())
	// 21 counts at gain x2 are scaled by 8.
	assert.Equal(t, int64(21*8), e.energy[0])
	assert.Equal(t, uint32(5), e.energyLast[0])
}

func TestEnergyDeltaNegative(t *testing.T) {
	chip := &fakeChip{}
	e, _, _ := newTestEngine(chip, nil)
	cfg := types.DefaultMeterConfig()
	cfg.Channels[1].Gain = 16
	e.applyConfig(cfg)
	e.energyLast = [2]uint32{0, 100}

	chip.sample[1].EnergyActive = 90
	require.NoError(t, e.tick())
	assert.Equal(t, int64(-10), e.energy[1], "x16 divisor is 1")
}

func TestWindowEmission(t *testing.T) {
	chip := &fakeChip{}
	chip.sample[0] = stpm.RawChannelSample{VoltageRMS: 6575, CurrentRMS: 100, PowerActive: -4, PowerReactive: 2, EnergyActive: 10}
	e, batches, _ := newTestEngine(chip, nil)
	cfg := types.DefaultMeterConfig()
	cfg.WindowSize = 3
	e.applyConfig(cfg)

	for i := 0; i < 2; i++ {
		require.NoError(t, e.tick())
	}
	assert.Empty(t, *batches)

	require.NoError(t, e.tick())
	require.Len(t, *batches, 1)
	b := (*batches)[0]
	raw := b.Raw[0]
	assert.Equal(t, uint64(3*6575), raw.VoltageRMS)
	assert.Equal(t, uint64(3*100*8), raw.CurrentRMS, "current scaled by gain divisor")
	assert.Equal(t, int64(3*-4*8), raw.PowerActive)
	assert.Equal(t, int64(3*2*8), raw.PowerReactive)
	assert.Equal(t, int64(10*8), raw.EnergyActive, "window carries the accumulator")
	assert.Equal(t, uint32(3), raw.Samples)
	assert.Equal(t, stpm.GainX2, raw.Gain)
	assert.Equal(t, e.scale[0].Apply(raw), b.Calibrated[0])
	assert.InDelta(t, 230000, b.Calibrated[0].VoltageRMS, 100)

	// Accumulator restarts from zero.
	assert.Zero(t, e.samples)
	assert.Equal(t, stpm.AccumulatedChannelSample{}, e.acc[0])

	for i := 0; i < 3; i++ {
		require.NoError(t, e.tick())
	}
	assert.Len(t, *batches, 2)
}

func TestBatchFrequencyStamp(t *testing.T) {
	chip := &fakeChip{}
	e, batches, _ := newTestEngine(chip, nil)
	cfg := types.DefaultMeterConfig()
	cfg.WindowSize = 1
	e.applyConfig(cfg)
	e.Frequency = func() uint64 { return 500_123 }

	require.NoError(t, e.tick())
	require.Len(t, *batches, 1)
	assert.Equal(t, uint64(500_123), (*batches)[0].Frequency)
	assert.Equal(t, int64(1_000_000), (*batches)[0].TS)
}

func TestReadErrorPolicy(t *testing.T) {
	cases := []struct {
		name   string
		script []bool // true = read fails
		fault  int    // index of the tick that faults, -1 for none
	}{
		{"three consecutive tolerated", []bool{true, true, true}, -1},
		{"fourth consecutive", []bool{true, true, true, true}, 3},
		{"recovered", []bool{true, true, false, true}, -1},
		{"success decays one step", []bool{true, true, false, true, true}, -1},
		{"decayed budget exhausted", []bool{true, true, false, true, true, true}, 5},
		{"isolated", []bool{true, false, true, false, true, false}, -1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			chip := &fakeChip{fail: c.script}
			e, _, _ := newTestEngine(chip, nil)
			got := -1
			for i := range c.script {
				if err := e.tick(); err != nil {
					got = i
					assert.True(t, errors.Is(err, errcode.BusFault))
					break
				}
			}
			assert.Equal(t, c.fault, got)
		})
	}
}

func TestReadErrorSkipsAccumulation(t *testing.T) {
	chip := &fakeChip{fail: []bool{true}}
	chip.sample[0].VoltageRMS = 10
	e, _, _ := newTestEngine(chip, nil)
	require.NoError(t, e.tick())
	assert.Zero(t, e.samples)
	assert.Equal(t, 1, e.readErrors)
	require.NoError(t, e.tick())
	assert.Equal(t, 1, e.samples)
	assert.Zero(t, e.readErrors, "counter never goes below zero")
}

func TestPersistAtMostOncePerSecond(t *testing.T) {
	chip := &fakeChip{}
	mem := &persist.MemStore{}
	e, _, clk := newTestEngine(chip, mem)

	for i := 0; i < 20; i++ { // one second of ticks
		clk.advance(TickInterval)
		chip.sample[0].EnergyActive += 1
		require.NoError(t, e.tick())
	}
	assert.Zero(t, mem.Writes(), "exactly one second is not enough")

	clk.advance(TickInterval)
	require.NoError(t, e.tick())
	assert.Equal(t, 1, mem.Writes())

	clk.advance(TickInterval)
	require.NoError(t, e.tick())
	assert.Equal(t, 1, mem.Writes())

	acc, err := mem.ReadAccumulator()
	require.NoError(t, err)
	assert.Equal(t, int64(21*8), acc[0])
}

type failingStore struct{ persist.MemStore }

func (*failingStore) WriteAccumulator([2]int64) error { return errors.New("flash busy") }

func TestPersistFailureIsIgnored(t *testing.T) {
	chip := &fakeChip{}
	e, _, clk := newTestEngine(chip, &failingStore{})
	clk.advance(2 * time.Second)
	assert.NoError(t, e.tick())
}

func TestResetAccumulatorKeepsWindow(t *testing.T) {
	chip := &fakeChip{}
	chip.sample[0] = stpm.RawChannelSample{VoltageRMS: 5, EnergyActive: 3}
	e, _, _ := newTestEngine(chip, nil)
	require.NoError(t, e.tick())
	require.NoError(t, e.tick())

	e.resetAccumulator()
	assert.Equal(t, [2]int64{}, e.energy)
	assert.Equal(t, 2, e.samples)
	assert.Equal(t, uint64(10), e.acc[0].VoltageRMS)
}

func TestChipConfigFromMeterConfig(t *testing.T) {
	e, _, _ := newTestEngine(&fakeChip{}, nil)
	cfg := types.DefaultMeterConfig()
	cfg.LineFrequency = 60
	cfg.Channels[0].Gain = 8
	cfg.Channels[1].Gain = 4
	e.applyConfig(cfg)

	cc := e.chipConfig()
	assert.Equal(t, stpm.Line60Hz, cc.LineFrequency)
	assert.Equal(t, stpm.GainX8, cc.Channels[0].CurrentGain)
	assert.Equal(t, stpm.GainX4, cc.Channels[1].CurrentGain)
	assert.Equal(t, uint16(0x800), cc.Channels[0].VoltageCalibration)
	assert.Equal(t, [2]int64{2, 4}, e.divisor)
}

func TestGainDivisorTable(t *testing.T) {
	assert.Equal(t, int64(8), gainDivisor(stpm.GainX2))
	assert.Equal(t, int64(4), gainDivisor(stpm.GainX4))
	assert.Equal(t, int64(2), gainDivisor(stpm.GainX8))
	assert.Equal(t, int64(1), gainDivisor(stpm.GainX16))
}

// manualTicks lets a test drive the sampling loop one tick at a time.
type manualTicks struct {
	ch chan time.Time
}

func (m *manualTicks) newTicker(time.Duration) (<-chan time.Time, func()) {
	return m.ch, func() {}
}

func TestSessionReconfigureDiscardsWindow(t *testing.T) {
	chip := &fakeChip{}
	chip.sample[0].VoltageRMS = 7
	e, batches, _ := newTestEngine(chip, nil)
	ticks := &manualTicks{ch: make(chan time.Time)}
	e.NewTicker = ticks.newTicker

	cfgCh := make(chan types.MeterConfig)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.session(ctx, Inputs{Config: cfgCh}) }()

	// Unbuffered sends complete only once the loop has taken them.
	ticks.ch <- time.Time{}
	ticks.ch <- time.Time{}

	cfg := types.DefaultMeterConfig()
	cfg.WindowSize = 2
	cfgCh <- cfg

	// The next tick belongs to a fresh window.
	ticks.ch <- time.Time{}
	ticks.ch <- time.Time{}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, 1, chip.resets, "reconfigure does not reset the chip")
	assert.Len(t, chip.configures, 2)
	require.Len(t, *batches, 1)
	assert.Equal(t, uint64(14), (*batches)[0].Raw[0].VoltageRMS)
}

func TestSessionResetSignal(t *testing.T) {
	chip := &fakeChip{}
	chip.sample[0].EnergyActive = 50
	e, _, _ := newTestEngine(chip, nil)
	ticks := &manualTicks{ch: make(chan time.Time)}
	e.NewTicker = ticks.newTicker

	resetCh := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.session(ctx, Inputs{Reset: resetCh}) }()

	ticks.ch <- time.Time{}
	resetCh <- struct{}{}
	chip.sample[0].EnergyActive = 53
	ticks.ch <- time.Time{}
	cancel()
	<-done

	assert.Equal(t, int64(3*8), e.energy[0])
	assert.Equal(t, 2, e.samples)
}

func TestSessionFailures(t *testing.T) {
	chip := &fakeChip{resetErr: errors.New("en stuck")}
	e, _, _ := newTestEngine(chip, nil)
	err := e.session(context.Background(), Inputs{})
	assert.EqualError(t, err, "en stuck")
	assert.Empty(t, chip.configures)

	chip = &fakeChip{confErr: errcode.Wrap(errcode.ConfigurationFailure, "DSP_CR1", errors.New("x"))}
	e, _, _ = newTestEngine(chip, nil)
	var states []types.MeterLevel
	e.OnState = func(st types.MeterState) { states = append(states, st.Level) }
	err = e.session(context.Background(), Inputs{})
	assert.True(t, errors.Is(err, errcode.ConfigurationFailure))
	assert.Equal(t, []types.MeterLevel{types.MeterResetting, types.MeterConfiguring}, states)
}

func TestSessionClearsEnergyBaselineOnReset(t *testing.T) {
	chip := &fakeChip{}
	e, _, _ := newTestEngine(chip, nil)
	e.energyLast = [2]uint32{1234, 5678}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = e.session(ctx, Inputs{})
	assert.Equal(t, [2]uint32{}, e.energyLast)
}
