package stpm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energymon-go/errcode"
)

type call struct {
	read, write byte
	value       uint16
}

// pipeTransport answers each frame with the register requested by the
// previous one, the way the chip does.
type pipeTransport struct {
	regs    map[byte]uint32
	calls   []call
	pending byte
	failAt  int // 1-based call index that fails, 0 = never
	syncs   int
	resets  int
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{regs: map[byte]uint32{}, pending: AddrNone}
}

func (p *pipeTransport) Transact(read, write byte, value uint16) (uint32, error) {
	p.calls = append(p.calls, call{read, write, value})
	if p.failAt == len(p.calls) {
		return 0, errcode.Wrap(errcode.BusFault, "tx", errors.New("boom"))
	}
	v := p.regs[p.pending]
	p.pending = read
	return v, nil
}

func (p *pipeTransport) HardwareReset() error { p.resets++; return nil }
func (p *pipeTransport) SyncPulse() error     { p.syncs++; return nil }

func TestReadRegistersPipelining(t *testing.T) {
	tr := newPipeTransport()
	tr.regs[DSP_REG14.Addr()] = 0x11111111
	tr.regs[PH1_REG5.Addr()] = 0xFFFFFFFE
	tr.regs[PH2_REG1.Addr()] = 0x33333333
	c := New(tr)

	var a, b uint32
	var s int32
	err := c.ReadRegisters(
		ReadU32(DSP_REG14, &a),
		ReadI32(PH1_REG5, &s),
		ReadU32(PH2_REG1, &b),
	)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x11111111), a)
	assert.Equal(t, int32(-2), s)
	assert.Equal(t, uint32(0x33333333), b)

	require.Len(t, tr.calls, 4, "N reads take N+1 frames")
	assert.Equal(t, []call{
		{DSP_REG14.Addr(), AddrNone, 0},
		{PH1_REG5.Addr(), AddrNone, 0},
		{PH2_REG1.Addr(), AddrNone, 0},
		{AddrNone, AddrNone, 0},
	}, tr.calls)
}

func TestReadRegistersEmpty(t *testing.T) {
	tr := newPipeTransport()
	require.NoError(t, New(tr).ReadRegisters())
	assert.Empty(t, tr.calls)
}

func TestReadRegistersStopsOnError(t *testing.T) {
	tr := newPipeTransport()
	tr.regs[DSP_REG14.Addr()] = 7
	tr.regs[DSP_REG15.Addr()] = 8
	tr.failAt = 3
	c := New(tr)

	a, b := uint32(100), uint32(200)
	err := c.ReadRegisters(ReadU32(DSP_REG14, &a), ReadU32(DSP_REG15, &b))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.BusFault))
	assert.Equal(t, uint32(7), a)
	assert.Equal(t, uint32(200), b, "unconfirmed destination untouched")
}

func TestReadRegister(t *testing.T) {
	tr := newPipeTransport()
	tr.regs[DSP_SR1.Addr()] = 0xCAFE
	v, err := New(tr).ReadRegister(DSP_SR1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFE), v)
	assert.Len(t, tr.calls, 2)
}

func TestWrite32Order(t *testing.T) {
	tr := newPipeTransport()
	require.NoError(t, New(tr).Write32(DSP_CR2, 0x240000A0))
	assert.Equal(t, []call{
		{AddrNone, 0x02, 0x00A0},
		{AddrNone, 0x03, 0x2400},
	}, tr.calls)
}

func TestConfigureSequence(t *testing.T) {
	tr := newPipeTransport()
	require.NoError(t, New(tr).Configure(DefaultChipConfig()))

	// 18 full registers plus the low half of US_REG3.
	require.Len(t, tr.calls, 37)
	last := tr.calls[len(tr.calls)-1]
	assert.Equal(t, call{AddrNone, US_REG3.Addr(), 0}, last)

	words := map[byte]uint32{}
	for _, c := range tr.calls {
		assert.Equal(t, AddrNone, c.read)
		base := c.write &^ 1
		if c.write&1 == 0 {
			words[base] |= uint32(c.value)
		} else {
			words[base] |= uint32(c.value) << 16
		}
	}
	assert.Equal(t, uint32(0x040000A0), words[DSP_CR1.Addr()])
	assert.Equal(t, uint32(0x240000A0), words[DSP_CR2.Addr()])
	assert.Equal(t, uint32(0x000104E0), words[DSP_CR3.Addr()])
	assert.Equal(t, uint32(0), words[DSP_CR4.Addr()])
	assert.Equal(t, uint32(0x003FF800), words[DSP_CR5.Addr()])
	assert.Equal(t, uint32(0x003FF800), words[DSP_CR6.Addr()])
	assert.Equal(t, uint32(0x00000FFF), words[DSP_CR12.Addr()])
	assert.Equal(t, uint32(0x03270327), words[DFE_CR1.Addr()])
	assert.Equal(t, uint32(0x00004007), words[US_REG1.Addr()])
	assert.Equal(t, uint32(0x00000683), words[US_REG2.Addr()])
}

func TestConfigureFieldPacking(t *testing.T) {
	cfg := DefaultChipConfig()
	cfg.LineFrequency = Line60Hz
	cfg.Channels[0] = ChannelConfig{
		CurrentGain:        GainX16,
		VoltageCalibration: 0xABC,
		CurrentCalibration: 0x123,
		VoltagePhaseShift:  0x2,
		CurrentPhaseShift:  0x155,
		VoltageSwell:       0x2AA,
		VoltageSag:         0x155,
		CurrentSwell:       0x3FF,
	}
	cfg.Channels[1].CurrentGain = GainX4
	cfg.Channels[1].VoltagePhaseShift = 0x1
	cfg.Channels[1].CurrentPhaseShift = 0x3FF

	seq := map[Reg]uint32{}
	for _, w := range cfg.Sequence() {
		seq[w.Reg] = w.Value
	}
	assert.Equal(t, uint32(0x080104E0), seq[DSP_CR3])
	assert.Equal(t, uint32(0x3FF|1<<10|0x155<<12|2<<22), seq[DSP_CR4])
	assert.Equal(t, uint32(0xABC|0x2AA<<12|0x155<<22), seq[DSP_CR5])
	assert.Equal(t, uint32(0x123|0x3FF<<12), seq[DSP_CR6])
	assert.Equal(t, uint32(0x0F270327), seq[DFE_CR1])
	assert.Equal(t, uint32(0x07270327), seq[DFE_CR2])
}

func TestConfigureFieldsMasked(t *testing.T) {
	cfg := DefaultChipConfig()
	cfg.Channels[0].VoltageCalibration = 0xFFFF
	cfg.Channels[0].VoltageSag = 0xFFFF
	cfg.Channels[0].VoltageSwell = 0
	for _, w := range cfg.Sequence() {
		if w.Reg == DSP_CR5 {
			assert.Equal(t, uint32(0xFFF|0x3FF<<22), w.Value)
		}
	}
}

func TestConfigureFailureNamesRegister(t *testing.T) {
	tr := newPipeTransport()
	tr.failAt = 5 // low half of DSP_CR3
	err := New(tr).Configure(DefaultChipConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.ConfigurationFailure))
	assert.True(t, errors.Is(err, errcode.BusFault))

	var e *errcode.E
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "DSP_CR3", e.Op)
	assert.Len(t, tr.calls, 5)
}

func TestGainHelpers(t *testing.T) {
	assert.Equal(t, uint32(2), GainX2.Multiplier())
	assert.Equal(t, uint32(16), GainX16.Multiplier())
	g, ok := ParseGain(8)
	assert.True(t, ok)
	assert.Equal(t, GainX8, g)
	_, ok = ParseGain(3)
	assert.False(t, ok)
}
