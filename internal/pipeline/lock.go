package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"metapipe/internal/services"
)

// LockFileName is the lock file created inside the storage directory.
const LockFileName = ".metapipe.lock"

// StorageLock is the per-storage-directory run lock.
type StorageLock struct {
	path string
	lock *flock.Flock
}

// AcquireLock takes the storage lock without blocking. A lock held by
// another process yields ErrLocked.
func AcquireLock(storageDir string) (*StorageLock, error) {
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrIO, "pipeline", "create storage dir", storageDir, err)
	}
	path := filepath.Join(storageDir, LockFileName)
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "pipeline", "acquire lock", path, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrLocked, "pipeline", "acquire lock",
			fmt.Sprintf("another run is using %s", storageDir), nil)
	}
	return &StorageLock{path: path, lock: lock}, nil
}

// Path is the lock file location.
func (l *StorageLock) Path() string { return l.path }

// Release unlocks. The lock file itself is left in place.
func (l *StorageLock) Release() error {
	if l == nil {
		return nil
	}
	return l.lock.Unlock()
}
