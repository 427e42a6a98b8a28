//go:build !unix && !windows

package verification

import "os"

// Platforms without file locks only get the in-process mutex.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
