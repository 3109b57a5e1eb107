// Package sim is a register-level model of the metering chip that speaks
// the SPI frame protocol. It backs driver tests and the host self-test.
package sim

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"energymon-go/drivers/stpm"
)

// ErrBus is returned by Tx when a bus fault is injected.
var ErrBus = errors.New("sim: injected bus fault")

// Channel is the model behind one measurement channel.
type Channel struct {
	VoltageCode   uint32 // 15 bits
	CurrentCode   uint32 // 17 bits
	PowerActive   int32
	PowerReactive int32
	// EnergyStep is added to the energy counter on every latch.
	EnergyStep uint32
}

// Chip implements drivers.SPI and provides the three control lines.
type Chip struct {
	mu sync.Mutex

	regs    [256]uint16
	pending byte // read address latched by the previous frame
	energy  [2]uint32
	ch      [2]Channel

	syn, en bool
	scsLow  bool

	frames  int
	resets  int
	latches int

	failNext    int
	corruptNext int
	badRequests int
	deselected  int
	writes      []Write
}

// Write records one half-register write seen on the bus.
type Write struct {
	Addr  byte
	Value uint16
}

func New() *Chip {
	return &Chip{pending: stpm.AddrNone, syn: true, en: true}
}

// SetChannel replaces the model of channel i (0 or 1).
func (c *Chip) SetChannel(i int, ch Channel) {
	c.mu.Lock()
	c.ch[i] = ch
	c.mu.Unlock()
}

// SetEnergy sets the free-running energy counter of channel i.
func (c *Chip) SetEnergy(i int, v uint32) {
	c.mu.Lock()
	c.energy[i] = v
	c.mu.Unlock()
}

// FailNext makes the next n transfers fail with ErrBus.
func (c *Chip) FailNext(n int) {
	c.mu.Lock()
	c.failNext = n
	c.mu.Unlock()
}

// CorruptNext flips a checksum bit in the next n responses.
func (c *Chip) CorruptNext(n int) {
	c.mu.Lock()
	c.corruptNext = n
	c.mu.Unlock()
}

// Register returns the 32-bit value at reg.
func (c *Chip) Register(reg stpm.Reg) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.word(reg.Addr())
}

// Writes returns the half-register writes since the last reset.
func (c *Chip) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Write(nil), c.writes...)
}

// Stats returns frame, reset and latch counts plus request frames rejected
// for a bad checksum.
func (c *Chip) Stats() (frames, resets, latches, badRequests int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames, c.resets, c.latches, c.badRequests
}

// Deselected counts frames clocked while chip select was high.
func (c *Chip) Deselected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deselected
}

func (c *Chip) word(addr byte) uint32 {
	return uint32(c.regs[addr]) | uint32(c.regs[addr+1])<<16
}

func (c *Chip) setWord(addr byte, v uint32) {
	c.regs[addr] = uint16(v)
	c.regs[addr+1] = uint16(v >> 16)
}

// Tx exchanges one frame. The response carries the register requested by
// the previous frame. With chip select high the chip ignores the frame and
// MISO reads as all ones.
func (c *Chip) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failNext > 0 {
		c.failNext--
		return ErrBus
	}
	if !c.scsLow {
		c.deselected++
		for i := range r {
			r[i] = 0xFF
		}
		return nil
	}
	c.frames++

	var resp stpm.Frame
	if c.pending != stpm.AddrNone {
		binary.LittleEndian.PutUint32(resp[:4], c.word(c.pending))
	} else {
		binary.LittleEndian.PutUint32(resp[:4], 0xFFFFFFFF)
	}
	resp[4] = stpm.Checksum(resp[:4])
	if c.corruptNext > 0 {
		c.corruptNext--
		resp[4] ^= 0x01
	}
	copy(r, resp[:])

	var req stpm.Frame
	copy(req[:], w)
	if !req.Valid() {
		c.badRequests++
		c.pending = stpm.AddrNone
		return nil
	}
	c.pending = req[0]
	if req[1] != stpm.AddrNone {
		v := binary.LittleEndian.Uint16(req[2:4])
		c.regs[req[1]] = v
		c.writes = append(c.writes, Write{Addr: req[1], Value: v})
	}
	return nil
}

func (c *Chip) Transfer(b byte) (byte, error) {
	return 0, errors.New("sim: single-byte transfer not supported")
}

// SCS drives the chip-select line.
func (c *Chip) SCS(high bool) {
	c.mu.Lock()
	c.scsLow = !high
	c.mu.Unlock()
}

// EN drives the enable line. A rising edge resets the register file.
func (c *Chip) EN(high bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if high && !c.en {
		c.regs = [256]uint16{}
		c.energy = [2]uint32{}
		c.pending = stpm.AddrNone
		c.writes = nil
		c.resets++
	}
	c.en = high
}

// SYN drives the latch line. A rising edge latches the measurement
// registers from the channel models.
func (c *Chip) SYN(high bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if high && !c.syn {
		c.latch()
	}
	c.syn = high
}

func (c *Chip) latch() {
	c.latches++
	rmsRegs := [2]stpm.Reg{stpm.DSP_REG14, stpm.DSP_REG15}
	energyRegs := [2]stpm.Reg{stpm.PH1_REG1, stpm.PH2_REG1}
	activeRegs := [2]stpm.Reg{stpm.PH1_REG5, stpm.PH2_REG5}
	reactiveRegs := [2]stpm.Reg{stpm.PH1_REG7, stpm.PH2_REG7}
	for i, ch := range c.ch {
		c.energy[i] += ch.EnergyStep
		c.setWord(rmsRegs[i].Addr(), ch.VoltageCode&0x7FFF|(ch.CurrentCode&0x1FFFF)<<15)
		c.setWord(energyRegs[i].Addr(), c.energy[i])
		c.setWord(activeRegs[i].Addr(), uint32(ch.PowerActive))
		c.setWord(reactiveRegs[i].Addr(), uint32(ch.PowerReactive))
	}
}

// Driver returns an SPI driver wired to this model with timing disabled.
func (c *Chip) Driver() *stpm.SPIDriver {
	d := stpm.NewSPIDriver(c, c.SCS, c.EN, c.SYN)
	d.Sleep = func(time.Duration) {}
	return d
}
