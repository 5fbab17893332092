package fsutil

import (
	"errors"
	"os"
)

type Availability int

const (
	Readable Availability = iota
	LockedOrShared
	AccessDenied
	NotReadable
)

func (a Availability) String() string {
	switch a {
	case Readable:
		return "readable"
	case LockedOrShared:
		return "locked_or_shared"
	case AccessDenied:
		return "access_denied"
	default:
		return "not_readable"
	}
}

// AvailabilityChecker probes whether a local file can be read right now.
type AvailabilityChecker interface {
	Check(path string) Availability
}

// LockProbe opens the file read-only and, where the platform supports it, attempts a
// non-blocking exclusive lock so files held by another writer are reported.
type LockProbe struct{}

func (LockProbe) Check(path string) Availability {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return AccessDenied
		}
		return NotReadable
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return NotReadable
	}

	return probeLock(f)
}
