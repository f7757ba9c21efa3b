package update

import (
	"errors"
	"fmt"
)

// FetchError means the manifest was unreachable or malformed.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch manifest %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DownloadError means the archive could not be downloaded.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download archive %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// UnpackError means the archive is corrupt, unsupported, or not a complete bundle.
type UnpackError struct {
	Path string
	Err  error
}

func (e *UnpackError) Error() string {
	return fmt.Sprintf("unpack archive %s: %v", e.Path, e.Err)
}

func (e *UnpackError) Unwrap() error { return e.Err }

// SwapError means the staged bundle could not replace the live one.
// The previous bundle is still in place when this is returned.
type SwapError struct {
	Op  string
	Err error
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("swap bundle (%s): %v", e.Op, e.Err)
}

func (e *SwapError) Unwrap() error { return e.Err }

// Kind classifies err for logging: "fetch", "download", "unpack", "swap",
// or "other". A nil error has kind "".
func Kind(err error) string {
	var (
		fetchErr    *FetchError
		downloadErr *DownloadError
		unpackErr   *UnpackError
		swapErr     *SwapError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &downloadErr):
		return "download"
	case errors.As(err, &unpackErr):
		return "unpack"
	case errors.As(err, &swapErr):
		return "swap"
	default:
		return "other"
	}
}
