//go:build unix

package verification

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive advisory lock held until unlockFile or close.
func lockFile(f *os.File) error {
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			return err
		}
	}
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
