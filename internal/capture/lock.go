package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrDeviceLocked is returned when another drill holds the microphone.
var ErrDeviceLocked = errors.New("microphone is in use by another drill")

// DeviceLock is an exclusive, process-wide claim on the microphone.
type DeviceLock struct {
	lock *flock.Flock
}

// AcquireDeviceLock takes the lock file at path without blocking.
func AcquireDeviceLock(path string) (*DeviceLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrDeviceLocked
	}
	return &DeviceLock{lock: l}, nil
}

// Release unlocks the device.
func (l *DeviceLock) Release() error {
	if l == nil {
		return nil
	}
	return l.lock.Unlock()
}
