//go:build linux

package update

import (
	"errors"

	"golang.org/x/sys/unix"
)

// exchangeSupported reports whether exchangeDirs can work on this platform.
const exchangeSupported = true

// exchangeDirs atomically swaps the directory entries a and b.
// Both paths must exist and live on the same filesystem.
func exchangeDirs(a, b string) error {
	return unix.Renameat2(unix.AT_FDCWD, a, unix.AT_FDCWD, b, unix.RENAME_EXCHANGE)
}

// exchangeUnsupported reports whether err means the kernel or filesystem
// lacks RENAME_EXCHANGE, so the caller should fall back to two renames.
func exchangeUnsupported(err error) bool {
	return errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EOPNOTSUPP)
}
