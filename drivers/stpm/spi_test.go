package stpm

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energymon-go/errcode"
)

type recorder struct {
	events []string
}

func (r *recorder) pin(name string) PinOutput {
	return func(high bool) {
		lvl := "low"
		if high {
			lvl = "high"
		}
		r.events = append(r.events, name+" "+lvl)
	}
}

func (r *recorder) sleep(d time.Duration) { r.events = append(r.events, "wait "+d.String()) }

type fakeSPI struct {
	rec  *recorder
	resp []byte
	err  error
	sent []byte
}

func (f *fakeSPI) Tx(w, r []byte) error {
	f.rec.events = append(f.rec.events, "tx")
	f.sent = append([]byte(nil), w...)
	if f.err != nil {
		return f.err
	}
	copy(r, f.resp)
	return nil
}

func (f *fakeSPI) Transfer(b byte) (byte, error) { return 0, nil }

func newTestDriver(resp []byte, err error) (*SPIDriver, *recorder, *fakeSPI) {
	rec := &recorder{}
	bus := &fakeSPI{rec: rec, resp: resp, err: err}
	d := NewSPIDriver(bus, rec.pin("scs"), rec.pin("en"), rec.pin("syn"))
	d.Sleep = rec.sleep
	rec.events = nil
	return d, rec, bus
}

func TestHardwareResetSequence(t *testing.T) {
	d, rec, _ := newTestDriver(nil, nil)
	require.NoError(t, d.HardwareReset())

	want := []string{
		"syn high",
		"en low", "scs low", "wait 5ms",
		"en high", "wait 5ms",
		"scs high", "wait 35ms",
	}
	for i := 0; i < 3; i++ {
		want = append(want, "syn low", "wait 5ms", "syn high", "wait 5ms")
	}
	want = append(want, "scs low", "wait 5ms", "scs high")
	assert.Equal(t, want, rec.events)
}

func TestSyncPulse(t *testing.T) {
	d, rec, _ := newTestDriver(nil, nil)
	require.NoError(t, d.SyncPulse())
	assert.Equal(t, []string{"syn low", "wait 10µs", "syn high", "wait 10µs"}, rec.events)
}

func TestTransact(t *testing.T) {
	resp := []byte{0x78, 0x56, 0x34, 0x12, 0}
	resp[4] = Checksum(resp[:4])
	d, rec, bus := newTestDriver(resp, nil)

	v, err := d.Transact(PH1_REG1.Addr(), AddrNone, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v)
	assert.Equal(t, []string{"scs low", "wait 1µs", "tx", "scs high"}, rec.events)

	want := NewFrame(PH1_REG1.Addr(), AddrNone, 0)
	assert.Equal(t, want[:], bus.sent)
}

func TestTransactBusFaultReleasesSelect(t *testing.T) {
	d, rec, _ := newTestDriver(nil, errors.New("spi timeout"))
	_, err := d.Transact(AddrNone, AddrNone, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.BusFault))
	assert.Equal(t, "scs high", rec.events[len(rec.events)-1])
}

func TestTransactChecksumMismatch(t *testing.T) {
	resp := []byte{1, 2, 3, 4, 0}
	resp[4] = Checksum(resp[:4]) ^ 0x80
	d, _, _ := newTestDriver(resp, nil)
	_, err := d.Transact(AddrNone, AddrNone, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.ChecksumMismatch))
	assert.Contains(t, err.Error(), fmt.Sprintf("received 0x%x", resp[4]))
}
