//go:build !unix

package fsutil

import "os"

func probeLock(_ *os.File) Availability {
	return Readable
}
