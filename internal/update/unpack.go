package update

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFiles is the default cap on entries unpacked from one archive.
const DefaultMaxFiles = 10000

// unpackLimits bounds what a single archive may expand to.
type unpackLimits struct {
	maxFiles int
	maxBytes int64
}

// unpackStats counts what was written.
type unpackStats struct {
	files int
	bytes int64
}

// extractArchive writes every entry of r below dst, which must exist.
func extractArchive(r *zip.Reader, dst string, limits unpackLimits) (unpackStats, error) {
	var stats unpackStats

	for _, f := range r.File {
		name := filepath.FromSlash(strings.TrimSuffix(f.Name, "/"))

		// Finder metadata is never part of a bundle
		if name == "__MACOSX" || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		if name == "" || name == "." {
			continue
		}
		if !filepath.IsLocal(name) {
			return stats, fmt.Errorf("entry %q escapes the bundle directory", f.Name)
		}

		target := filepath.Join(dst, name)
		mode := f.Mode()

		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return stats, fmt.Errorf("failed to create directory %s: %w", name, err)
			}
			continue
		case mode&os.ModeSymlink != 0:
			return stats, fmt.Errorf("entry %q is a symlink", f.Name)
		case !mode.IsRegular():
			return stats, fmt.Errorf("entry %q is not a regular file", f.Name)
		}

		stats.files++
		if limits.maxFiles > 0 && stats.files > limits.maxFiles {
			return stats, fmt.Errorf("archive has more than %d files", limits.maxFiles)
		}

		n, err := extractFile(f, target, limits.maxBytes-stats.bytes)
		stats.bytes += n
		if err != nil {
			return stats, fmt.Errorf("failed to extract %s: %w", name, err)
		}
	}

	return stats, nil
}

// extractFile copies one entry to target, writing at most budget bytes.
func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	if budget <= 0 {
		return 0, errTooLarge
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, io.LimitReader(rc, budget+1))
	if err == nil && n > budget {
		err = errTooLarge
	}
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// bundleRoot finds the directory holding entryFile: dir itself, or the
// single top-level directory of an archive that wraps its content in one.
func bundleRoot(dir, entryFile string) (string, error) {
	if fileExists(filepath.Join(dir, entryFile)) {
		return dir, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		sub := filepath.Join(dir, entries[0].Name())
		if fileExists(filepath.Join(sub, entryFile)) {
			return sub, nil
		}
	}

	return "", fmt.Errorf("entry file %s not found in archive", entryFile)
}

// fileExists reports whether path is an existing regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// dirExists reports whether path is an existing directory.
func dirExists(path string) (bool, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
