//go:build !unix && !windows

package update

import "os"

// No advisory locking here; only in-process exclusion applies.
func tryLock(f *os.File) (bool, error) { return true, nil }

func unlock(f *os.File) error { return nil }
