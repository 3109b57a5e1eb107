//go:build rp2040

package persist

import (
	"machine"
	"sync"

	"energymon-go/errcode"
)

// FlashStore keeps the record at the start of the flash region left free
// by the firmware image. Wrap it in Throttled to bound erase cycles.
type FlashStore struct {
	mu  sync.Mutex
	buf []byte
	seq uint32
}

func NewFlashStore() *FlashStore {
	return &FlashStore{buf: make([]byte, machine.Flash.EraseBlockSize())}
}

func (f *FlashStore) ReadAccumulator() ([2]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if machine.Flash.Size() < int64(len(f.buf)) {
		return [2]int64{}, ErrNotFound
	}
	if _, err := machine.Flash.ReadAt(f.buf, 0); err != nil {
		return [2]int64{}, errcode.Wrap(errcode.StoreUnavailable, "read", err)
	}
	if f.buf[0] == 0xFF && f.buf[1] == 0xFF {
		return [2]int64{}, ErrNotFound // erased
	}
	r, err := DecodeRecord(f.buf)
	if err != nil {
		return [2]int64{}, err
	}
	f.seq = r.Seq
	return r.Energy, nil
}

func (f *FlashStore) WriteAccumulator(acc [2]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := EncodeRecord(Record{Energy: acc, Seq: f.seq + 1})
	if err != nil {
		return errcode.Wrap(errcode.StoreUnavailable, "encode", err)
	}
	// Writes must cover whole write blocks.
	wb := machine.Flash.WriteBlockSize()
	n := (int64(len(b)) + wb - 1) / wb * wb
	for i := range f.buf[:n] {
		f.buf[i] = 0xFF
	}
	copy(f.buf, b)

	if err := machine.Flash.EraseBlocks(0, 1); err != nil {
		return errcode.Wrap(errcode.StoreUnavailable, "erase", err)
	}
	if _, err := machine.Flash.WriteAt(f.buf[:n], 0); err != nil {
		return errcode.Wrap(errcode.StoreUnavailable, "write", err)
	}
	f.seq++
	return nil
}
