//go:build !linux

package update

import "errors"

// exchangeSupported reports whether exchangeDirs can work on this platform.
const exchangeSupported = false

func exchangeDirs(a, b string) error {
	return errors.ErrUnsupported
}

func exchangeUnsupported(err error) bool {
	return true
}
