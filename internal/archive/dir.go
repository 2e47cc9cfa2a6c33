package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// DirSink writes pages as plain files under a root directory.
type DirSink struct {
	root string

	busy atomic.Bool

	mu      sync.Mutex
	written map[string]int64
	closed  bool
	any     bool
}

// NewDirSink creates root if needed.
func NewDirSink(root string) (*DirSink, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return &DirSink{root: root, written: make(map[string]int64)}, nil
}

// Put writes one file atomically.
func (d *DirSink) Put(itemID, relPath string, data []byte) error {
	if !d.busy.CompareAndSwap(false, true) {
		return ErrConcurrentWrite
	}
	defer d.busy.Store(false)

	name, err := cleanEntry(relPath)
	if err != nil {
		return err
	}

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}

	dest := filepath.Join(d.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	tmp := dest + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", name, err)
	}

	d.mu.Lock()
	d.written[itemID] += int64(len(data))
	d.any = true
	d.mu.Unlock()
	return nil
}

// BytesWritten returns the bytes stored for an item.
func (d *DirSink) BytesWritten(itemID string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written[itemID]
}

// Path returns the root directory once something was written.
func (d *DirSink) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.any {
		return ""
	}
	return d.root
}

// Close stops accepting writes. Files already written stay.
func (d *DirSink) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Abort is Close; completed files are kept.
func (d *DirSink) Abort() error {
	return d.Close()
}
