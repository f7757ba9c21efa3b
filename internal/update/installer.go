package update

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// DefaultEntryFile is the file the renderer loads from a bundle.
const DefaultEntryFile = "index.html"

// installStep marks a boundary inside Install where a process could die.
type installStep string

const (
	stepDownloaded installStep = "downloaded"
	stepValidated  installStep = "validated"
	stepUnpacked   installStep = "unpacked"
	stepDetached   installStep = "detached" // live moved aside, staged not yet in place
	stepSwapped    installStep = "swapped"
)

// errSimulatedCrash stops Install without any cleanup, as a killed process would.
var errSimulatedCrash = errors.New("simulated crash")

// BundleInstaller downloads a bundle archive and makes it the live bundle.
//
// Layout below root:
//
//	<name>/           live bundle, always one complete generation
//	<name>.old/       previous generation while a two-step swap is in flight
//	.staging/<name>-* per-install work dirs (archive + unpacked content)
//	.lock             advisory lock shared by every process using root
//
// The live directory is replaced by an atomic exchange where the platform
// supports it, and by rename-aside/rename-in otherwise. Recover repairs
// whatever an interrupted install left behind.
type BundleInstaller struct {
	root       string
	name       string
	entryFile  string
	downloader Downloader
	limits     unpackLimits
	logger     *slog.Logger

	// mu keeps EntryPath from observing the gap between the two renames
	mu sync.RWMutex

	useExchange bool
	crashAt     func(step installStep) bool
}

// NewBundleInstaller creates an installer managing root/name
func NewBundleInstaller(root, name string, downloader Downloader) *BundleInstaller {
	return &BundleInstaller{
		root:       root,
		name:       name,
		entryFile:  DefaultEntryFile,
		downloader: downloader,
		limits: unpackLimits{
			maxFiles: DefaultMaxFiles,
			maxBytes: DefaultMaxArchiveBytes,
		},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		useExchange: exchangeSupported,
	}
}

// WithEntryFile sets the file that must exist for a bundle to be complete
func (in *BundleInstaller) WithEntryFile(name string) *BundleInstaller {
	if name != "" {
		in.entryFile = name
	}
	return in
}

// WithLimits caps unpacked file count and total size; zero keeps a default
func (in *BundleInstaller) WithLimits(maxFiles int, maxBytes int64) *BundleInstaller {
	if maxFiles > 0 {
		in.limits.maxFiles = maxFiles
	}
	if maxBytes > 0 {
		in.limits.maxBytes = maxBytes
	}
	return in
}

// WithLogger sets the logger
func (in *BundleInstaller) WithLogger(logger *slog.Logger) *BundleInstaller {
	if logger != nil {
		in.logger = logger
	}
	return in
}

// BundleDir returns the live bundle directory
func (in *BundleInstaller) BundleDir() string {
	return filepath.Join(in.root, in.name)
}

func (in *BundleInstaller) oldDir() string {
	return in.BundleDir() + ".old"
}

func (in *BundleInstaller) stagingRoot() string {
	return filepath.Join(in.root, ".staging")
}

func (in *BundleInstaller) lockPath() string {
	return filepath.Join(in.root, ".lock")
}

// Lock takes the cross-process lock on root, waiting until ctx is done.
// Install does not take it; callers hold it around Install and the state
// write that follows. It must not be taken twice from one process.
func (in *BundleInstaller) Lock(ctx context.Context) (unlock func(), err error) {
	l, err := lockFile(ctx, in.lockPath())
	if err != nil {
		return nil, err
	}
	return l.unlock, nil
}

// EntryPath returns the live entry file if a bundle is installed
func (in *BundleInstaller) EntryPath() (string, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	path := filepath.Join(in.BundleDir(), in.entryFile)
	if !fileExists(path) {
		return "", false
	}
	return path, true
}

// Install downloads archiveURL, unpacks it into a staging directory and
// swaps it in as the live bundle. The live bundle is untouched on any
// error before the swap. Cancelling ctx stops the download and unpack;
// once the swap begins it runs to completion.
func (in *BundleInstaller) Install(ctx context.Context, archiveURL string) (*InstallResult, error) {
	if err := os.MkdirAll(in.stagingRoot(), 0755); err != nil {
		return nil, &DownloadError{URL: archiveURL, Err: fmt.Errorf("failed to create staging area: %w", err)}
	}

	work, err := os.MkdirTemp(in.stagingRoot(), in.name+"-")
	if err != nil {
		return nil, &DownloadError{URL: archiveURL, Err: fmt.Errorf("failed to create work directory: %w", err)}
	}

	crashed := false
	defer func() {
		if !crashed {
			_ = os.RemoveAll(work)
		}
	}()

	// 1. Download to a private location
	archivePath := filepath.Join(work, "archive.zip")
	in.logger.Debug("downloading archive", "url", archiveURL, "dst", archivePath)
	if err := in.downloader.Download(ctx, archiveURL, archivePath); err != nil {
		return nil, &DownloadError{URL: archiveURL, Err: err}
	}
	if in.crash(stepDownloaded) {
		crashed = true
		return nil, errSimulatedCrash
	}

	// 2. Validate it opens as a zip before touching anything live
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, &UnpackError{Path: archiveURL, Err: err}
	}
	defer func() { _ = zr.Close() }()

	if len(zr.File) == 0 {
		return nil, &UnpackError{Path: archiveURL, Err: fmt.Errorf("archive is empty")}
	}
	if in.crash(stepValidated) {
		crashed = true
		return nil, errSimulatedCrash
	}

	// 3. Unpack into staging
	content := filepath.Join(work, "content")
	if err := os.Mkdir(content, 0755); err != nil {
		return nil, &UnpackError{Path: archiveURL, Err: err}
	}

	stats, err := extractArchive(&zr.Reader, content, in.limits)
	if err != nil {
		return nil, &UnpackError{Path: archiveURL, Err: err}
	}

	staged, err := bundleRoot(content, in.entryFile)
	if err != nil {
		return nil, &UnpackError{Path: archiveURL, Err: err}
	}
	if in.crash(stepUnpacked) {
		crashed = true
		return nil, errSimulatedCrash
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("install cancelled before swap: %w", err)
	}

	// 4. Swap; not cancellable from here on
	if err := in.swap(staged); err != nil {
		if errors.Is(err, errSimulatedCrash) {
			crashed = true
		}
		return nil, err
	}

	in.logger.Debug("bundle swapped in", "dir", in.BundleDir(), "files", stats.files, "bytes", stats.bytes)

	return &InstallResult{
		Path:      in.BundleDir(),
		EntryPath: filepath.Join(in.BundleDir(), in.entryFile),
		Files:     stats.files,
		Bytes:     stats.bytes,
	}, nil
}

// swap makes staged the live bundle directory.
func (in *BundleInstaller) swap(staged string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	live := in.BundleDir()

	exists, err := dirExists(live)
	if err != nil {
		return &SwapError{Op: "stat", Err: err}
	}

	// First install: a single rename
	if !exists {
		if err := os.Rename(staged, live); err != nil {
			return &SwapError{Op: "rename", Err: err}
		}
		if in.crash(stepSwapped) {
			return errSimulatedCrash
		}
		return nil
	}

	if in.useExchange {
		err := exchangeDirs(staged, live)
		if err == nil {
			// staged now holds the previous generation and goes away with the work dir
			if in.crash(stepSwapped) {
				return errSimulatedCrash
			}
			return nil
		}
		if !exchangeUnsupported(err) {
			return &SwapError{Op: "exchange", Err: err}
		}
		in.logger.Debug("atomic exchange unsupported, using rename pair", "error", err)
	}

	return in.replace(staged, live)
}

// replace moves live aside, moves staged in, then drops the old copy.
// A crash between the renames is repaired by Recover.
func (in *BundleInstaller) replace(staged, live string) error {
	old := in.oldDir()

	if err := os.RemoveAll(old); err != nil {
		return &SwapError{Op: "clean", Err: err}
	}

	if err := os.Rename(live, old); err != nil {
		return &SwapError{Op: "detach", Err: err}
	}
	if in.crash(stepDetached) {
		return errSimulatedCrash
	}

	if err := os.Rename(staged, live); err != nil {
		if rbErr := os.Rename(old, live); rbErr != nil {
			in.logger.Error("failed to restore previous bundle", "error", rbErr)
		}
		return &SwapError{Op: "attach", Err: err}
	}
	if in.crash(stepSwapped) {
		return errSimulatedCrash
	}

	if err := os.RemoveAll(old); err != nil {
		in.logger.Warn("failed to remove previous bundle", "dir", old, "error", err)
	}
	return nil
}

// Recover repairs the layout after an interrupted install: it restores the
// previous bundle if the live one is missing and removes staging leftovers.
// It must run before any Install. When another process holds the lock it
// has an install in flight, so there is nothing to repair and Recover
// returns without touching the layout.
func (in *BundleInstaller) Recover() error {
	l, err := tryLockFile(in.lockPath())
	if errors.Is(err, errLockHeld) {
		in.logger.Debug("bundle directory locked by another process, skipping recovery", "root", in.root)
		return nil
	}
	if err != nil {
		return err
	}
	defer l.unlock()

	in.mu.Lock()
	defer in.mu.Unlock()

	live := in.BundleDir()
	old := in.oldDir()

	liveExists, err := dirExists(live)
	if err != nil {
		return fmt.Errorf("failed to inspect bundle directory: %w", err)
	}
	oldExists, err := dirExists(old)
	if err != nil {
		return fmt.Errorf("failed to inspect previous bundle: %w", err)
	}

	switch {
	case !liveExists && oldExists:
		if err := os.Rename(old, live); err != nil {
			return fmt.Errorf("failed to restore previous bundle: %w", err)
		}
		in.logger.Info("restored previous bundle after interrupted install", "dir", live)
	case oldExists:
		if err := os.RemoveAll(old); err != nil {
			return fmt.Errorf("failed to remove previous bundle: %w", err)
		}
	}

	if err := os.RemoveAll(in.stagingRoot()); err != nil {
		return fmt.Errorf("failed to clean staging area: %w", err)
	}

	return nil
}

func (in *BundleInstaller) crash(step installStep) bool {
	return in.crashAt != nil && in.crashAt(step)
}
