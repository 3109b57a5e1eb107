//go:build !baremetal

package persist

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"energymon-go/errcode"
)

// FileStore keeps the record in a single file, replaced atomically.
type FileStore struct {
	Path string

	mu  sync.Mutex
	seq uint32
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

func (f *FileStore) ReadAccumulator() ([2]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return [2]int64{}, ErrNotFound
	}
	if err != nil {
		return [2]int64{}, errcode.Wrap(errcode.StoreUnavailable, "read", err)
	}
	r, err := DecodeRecord(b)
	if err != nil {
		return [2]int64{}, err
	}
	f.seq = r.Seq
	return r.Energy, nil
}

func (f *FileStore) WriteAccumulator(acc [2]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := EncodeRecord(Record{Energy: acc, Seq: f.seq + 1})
	if err != nil {
		return errcode.Wrap(errcode.StoreUnavailable, "encode", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".accumulator-*.tmp")
	if err != nil {
		return errcode.Wrap(errcode.StoreUnavailable, "create", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errcode.Wrap(errcode.StoreUnavailable, "write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errcode.Wrap(errcode.StoreUnavailable, "close", err)
	}
	if err := os.Rename(tmpPath, f.Path); err != nil {
		os.Remove(tmpPath)
		return errcode.Wrap(errcode.StoreUnavailable, "rename", err)
	}
	f.seq++
	return nil
}
