package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pagepack/pagepack/internal/utils"
)

// ZipSink writes every page of a run into one zip file. Output goes to a
// .part file that is renamed into place on Close.
type ZipSink struct {
	path string
	tmp  string

	busy atomic.Bool

	mu      sync.Mutex
	file    *os.File
	zw      *zip.Writer
	written map[string]int64
	owners  map[string]string // Entry name to the item that wrote it
	entries int
	closed  bool
	final   string
}

// NewZipSink creates the .part file next to path.
func NewZipSink(path string) (*ZipSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	return &ZipSink{
		path:    path,
		tmp:     tmp,
		file:    f,
		zw:      zip.NewWriter(f),
		written: make(map[string]int64),
		owners:  make(map[string]string),
	}, nil
}

// Put adds one entry. A name the same item already wrote is skipped, so a
// retried item does not duplicate its pages; a name owned by another item is
// rejected with ErrDuplicateEntry.
func (z *ZipSink) Put(itemID, relPath string, data []byte) error {
	if !z.busy.CompareAndSwap(false, true) {
		return ErrConcurrentWrite
	}
	defer z.busy.Store(false)

	name, err := cleanEntry(relPath)
	if err != nil {
		return err
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return ErrClosed
	}
	if owner, ok := z.owners[name]; ok {
		if owner == itemID {
			utils.Debug("Archive: %s already stored for %s", name, itemID)
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
	}

	w, err := z.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", name, err)
	}
	n, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", name, err)
	}
	z.written[itemID] += int64(n)
	z.owners[name] = itemID
	z.entries++
	return nil
}

// BytesWritten returns the uncompressed bytes stored for an item.
func (z *ZipSink) BytesWritten(itemID string) int64 {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.written[itemID]
}

// Path returns the final zip path once Close has moved it into place.
func (z *ZipSink) Path() string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.final
}

// Close finishes the zip. An archive with no entries is removed.
func (z *ZipSink) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return nil
	}
	z.closed = true

	zipErr := z.zw.Close()
	fileErr := z.file.Close()
	if err := errors.Join(zipErr, fileErr); err != nil {
		_ = os.Remove(z.tmp)
		return fmt.Errorf("finish archive: %w", err)
	}

	if z.entries == 0 {
		utils.Debug("Archive: no entries, removing %s", z.tmp)
		return os.Remove(z.tmp)
	}
	if err := os.Rename(z.tmp, z.path); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	z.final = z.path
	return nil
}

// Abort discards the partial zip.
func (z *ZipSink) Abort() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return nil
	}
	z.closed = true
	_ = z.zw.Close()
	_ = z.file.Close()
	return os.Remove(z.tmp)
}
