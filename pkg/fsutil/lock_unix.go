//go:build unix

package fsutil

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func probeLock(f *os.File) Availability {
	fd := int(f.Fd())
	err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
	switch {
	case err == nil:
		_ = unix.Flock(fd, unix.LOCK_UN)
		return Readable
	case errors.Is(err, unix.EWOULDBLOCK):
		return LockedOrShared
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return AccessDenied
	default:
		// Some file systems (NFS without lockd) refuse flock entirely.
		return Readable
	}
}
