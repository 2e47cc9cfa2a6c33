package cmd

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/pagepack/pagepack/internal/config"
	"github.com/pagepack/pagepack/internal/utils"
)

var (
	instanceLock *flock.Flock
	lockMu       sync.Mutex
)

// AcquireLock takes the single-instance lock in the state dir. It returns
// false, without error, when another pagepack process holds it.
func AcquireLock() (bool, error) {
	lockMu.Lock()
	defer lockMu.Unlock()

	if instanceLock != nil {
		return true, nil
	}

	path := config.GetLockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return false, err
	}
	if !locked {
		return false, nil
	}
	instanceLock = fl
	utils.Debug("Acquired instance lock %s", path)
	return true, nil
}

// ReleaseLock releases the lock taken by AcquireLock.
func ReleaseLock() {
	lockMu.Lock()
	defer lockMu.Unlock()

	if instanceLock == nil {
		return
	}
	if err := instanceLock.Unlock(); err != nil {
		utils.Debug("Error releasing lock: %v", err)
	}
	instanceLock = nil
}
