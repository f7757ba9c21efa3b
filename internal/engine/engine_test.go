package engine

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adamancini/webbundle/internal/notify"
	"github.com/adamancini/webbundle/internal/state"
	"github.com/adamancini/webbundle/internal/types"
	"github.com/adamancini/webbundle/internal/update"
)

// origin is a fake remote serving a manifest and bundle archives.
type origin struct {
	*httptest.Server

	mu       sync.Mutex
	version  string
	archives map[string][]byte
	down     bool

	archiveHits atomic.Int32
}

func newOrigin(t *testing.T) *origin {
	t.Helper()

	o := &origin{archives: make(map[string][]byte)}
	o.Server = httptest.NewServer(http.HandlerFunc(o.serve))
	t.Cleanup(o.Close)
	return o
}

func (o *origin) serve(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	switch {
	case r.URL.Path == "/manifest.json":
		_ = json.NewEncoder(w).Encode(map[string]string{
			"version": o.version,
			"archive": o.URL + "/bundles/" + o.version + ".zip",
		})
	case strings.HasPrefix(r.URL.Path, "/bundles/"):
		o.archiveHits.Add(1)
		v := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/bundles/"), ".zip")
		data, ok := o.archives[v]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// publish makes version the advertised one, served as archive.
func (o *origin) publish(version string, archive []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.version = version
	o.archives[version] = archive
}

func (o *origin) setDown(down bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.down = down
}

func bundleZip(t *testing.T, version string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"index.html":    "<h1>" + version + "</h1>",
		"assets/app.js": "app(" + version + ")",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// harness wires a real installer and file store under one temp root.
type harness struct {
	root      string
	origin    *origin
	store     *state.FileStore
	installer *update.BundleInstaller
	engine    *Engine
	events    []notify.Event
	eventsMu  sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{root: t.TempDir(), origin: newOrigin(t)}
	h.store = state.NewFileStore(filepath.Join(h.root, "state.json"))
	h.reopen(t)
	return h
}

// reopen builds a fresh engine over the same disk state, as a new process would.
func (h *harness) reopen(t *testing.T) {
	t.Helper()

	h.installer = update.NewBundleInstaller(h.root, "CachedWebApp", update.NewHTTPDownloader())
	e, err := New(Options{
		Fetcher:       update.NewManifestFetcher(h.origin.URL + "/manifest.json"),
		Installer:     h.installer,
		Store:         h.store,
		LaunchTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	e.Notifier().OnNewVersionInstalled(func(ev notify.Event) {
		h.eventsMu.Lock()
		defer h.eventsMu.Unlock()
		h.events = append(h.events, ev)
	})
	h.engine = e
}

func (h *harness) eventCount() int {
	h.eventsMu.Lock()
	defer h.eventsMu.Unlock()
	return len(h.events)
}

func (h *harness) versions(t *testing.T) state.Snapshot {
	t.Helper()

	snap, err := h.engine.Versions().Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	return snap
}

func (h *harness) entryContent(t *testing.T) string {
	t.Helper()

	content, err := os.ReadFile(filepath.Join(h.installer.BundleDir(), "index.html"))
	if err != nil {
		t.Fatalf("read entry file: %v", err)
	}
	return string(content)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	fetcher := update.NewManifestFetcher("https://example.com/manifest.json")
	installer := update.NewBundleInstaller(t.TempDir(), "CachedWebApp", update.NewHTTPDownloader())
	store := state.NewMemoryStore()

	tests := []struct {
		name string
		opts Options
	}{
		{"no fetcher", Options{Installer: installer, Store: store}},
		{"no installer", Options{Fetcher: fetcher, Store: store}},
		{"no store", Options{Fetcher: fetcher, Installer: installer}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestNew_RecoversInterruptedInstall(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "CachedWebApp.old")
	if err := os.MkdirAll(old, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(old, "index.html"), []byte("previous"), 0644); err != nil {
		t.Fatal(err)
	}

	installer := update.NewBundleInstaller(root, "CachedWebApp", update.NewHTTPDownloader())
	e, err := New(Options{
		Fetcher:   update.NewManifestFetcher("https://example.com/manifest.json"),
		Installer: installer,
		Store:     state.NewMemoryStore(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, ok := e.LocalIndexPath(); !ok {
		t.Error("previous bundle should be restored by New()")
	}
}

// Fresh install, no prior state, manifest advertises 1.0.
func TestResolve_FreshInstall(t *testing.T) {
	h := newHarness(t)
	h.origin.publish("1.0", bundleZip(t, "1.0"))

	r := h.engine.Resolve(context.Background())

	if r.Path != filepath.Join(h.installer.BundleDir(), "index.html") {
		t.Errorf("Path = %q, want the installed entry file", r.Path)
	}
	if r.Outcome != types.OutcomeInstalled {
		t.Errorf("Outcome = %s, want installed", r.Outcome)
	}
	if r.ContentChanged {
		t.Error("ContentChanged should be false on the first launch")
	}
	if got := h.entryContent(t); got != "<h1>1.0</h1>" {
		t.Errorf("entry content = %q, want 1.0's", got)
	}

	snap := h.versions(t)
	if snap.Installed != "1.0" || snap.LastLaunched != "1.0" {
		t.Errorf("versions = %+v, want both 1.0", snap)
	}

	wantTrace := []types.LaunchState{types.LaunchIdle, types.LaunchCheckingManifest, types.LaunchInstalling, types.LaunchResolved}
	if len(r.Trace) != len(wantTrace) {
		t.Fatalf("Trace = %v, want %v", r.Trace, wantTrace)
	}
	for i := range wantTrace {
		if r.Trace[i] != wantTrace[i] {
			t.Errorf("Trace[%d] = %s, want %s", i, r.Trace[i], wantTrace[i])
		}
		if i > 0 && !r.Trace[i-1].CanTransitionTo(r.Trace[i]) {
			t.Errorf("illegal transition %s -> %s", r.Trace[i-1], r.Trace[i])
		}
	}
}

// Installed 1.0, manifest unchanged: no download, existing path.
func TestResolve_Unchanged(t *testing.T) {
	h := newHarness(t)
	h.origin.publish("1.0", bundleZip(t, "1.0"))
	first := h.engine.Resolve(context.Background())

	h.reopen(t)
	second := h.engine.Resolve(context.Background())
	third := h.engine.Resolve(context.Background())

	if hits := h.origin.archiveHits.Load(); hits != 1 {
		t.Errorf("archive downloaded %d times, want 1", hits)
	}
	for _, r := range []*LaunchResult{second, third} {
		if r.Path != first.Path {
			t.Errorf("Path = %q, want %q", r.Path, first.Path)
		}
		if r.Outcome != types.OutcomeUpToDate {
			t.Errorf("Outcome = %s, want up-to-date", r.Outcome)
		}
		if r.State != types.LaunchResolved {
			t.Errorf("State = %s, want resolved", r.State)
		}
	}
	if snap := h.versions(t); snap.Installed != "1.0" {
		t.Errorf("Installed = %q, want 1.0", snap.Installed)
	}
}

// Background tick sees 2.0: installed moves, last launched stays, one notification.
func TestCheck_BackgroundInstall(t *testing.T) {
	h := newHarness(t)
	h.origin.publish("1.0", bundleZip(t, "1.0"))
	h.engine.Resolve(context.Background())

	h.origin.publish("2.0", bundleZip(t, "2.0"))
	r := h.engine.Check(context.Background())

	if r.Outcome != types.OutcomeInstalled {
		t.Fatalf("Outcome = %s (%s), want installed", r.Outcome, r.Error)
	}
	if r.Previous != "1.0" || r.Version != "2.0" {
		t.Errorf("Previous/Version = %q/%q, want 1.0/2.0", r.Previous, r.Version)
	}

	snap := h.versions(t)
	if snap.Installed != "2.0" {
		t.Errorf("Installed = %q, want 2.0", snap.Installed)
	}
	if snap.LastLaunched != "1.0" {
		t.Errorf("LastLaunched = %q, want 1.0 until next launch", snap.LastLaunched)
	}
	if got := h.entryContent(t); got != "<h1>2.0</h1>" {
		t.Errorf("entry content = %q, want 2.0's", got)
	}
	if n := h.eventCount(); n != 1 {
		t.Errorf("notifier fired %d times, want 1", n)
	}
	if h.events[0].Version != "2.0" || h.events[0].Previous != "1.0" {
		t.Errorf("event = %+v, want 2.0 replacing 1.0", h.events[0])
	}

	// A second tick has nothing to do
	if r := h.engine.Check(context.Background()); r.Outcome != types.OutcomeUpToDate {
		t.Errorf("second Check() Outcome = %s, want up-to-date", r.Outcome)
	}
	if n := h.eventCount(); n != 1 {
		t.Errorf("notifier fired %d times after second tick, want 1", n)
	}

	// The next launch sees the change
	h.reopen(t)
	launch := h.engine.Resolve(context.Background())
	if !launch.ContentChanged {
		t.Error("ContentChanged should be true on the launch after a background install")
	}
	if launch.PreviousLaunchVersion != "1.0" {
		t.Errorf("PreviousLaunchVersion = %q, want 1.0", launch.PreviousLaunchVersion)
	}
	if snap := h.versions(t); snap.LastLaunched != "2.0" {
		t.Errorf("LastLaunched = %q, want 2.0 after relaunch", snap.LastLaunched)
	}
}

// Download succeeds but the archive is corrupt.
func TestCheck_CorruptArchive(t *testing.T) {
	h := newHarness(t)
	h.origin.publish("1.0", bundleZip(t, "1.0"))
	h.engine.Resolve(context.Background())

	h.origin.publish("2.0", []byte("definitely not a zip"))
	r := h.engine.Check(context.Background())

	if r.Outcome != types.OutcomeFailed {
		t.Errorf("Outcome = %s, want failed", r.Outcome)
	}
	var unpackErr *update.UnpackError
	if !errors.As(r.Err, &unpackErr) {
		t.Errorf("Err = %v, want *update.UnpackError", r.Err)
	}
	if snap := h.versions(t); snap.Installed != "1.0" {
		t.Errorf("Installed = %q, want 1.0", snap.Installed)
	}
	if got := h.entryContent(t); got != "<h1>1.0</h1>" {
		t.Errorf("entry content = %q, want 1.0's", got)
	}
	if n := h.eventCount(); n != 0 {
		t.Errorf("notifier fired %d times, want 0", n)
	}
}

func TestResolve_OriginDown(t *testing.T) {
	t.Run("fresh install", func(t *testing.T) {
		h := newHarness(t)
		h.origin.setDown(true)

		r := h.engine.Resolve(context.Background())

		if r.Path != "" {
			t.Errorf("Path = %q, want none", r.Path)
		}
		if r.Outcome != types.OutcomeFailed || r.State != types.LaunchResolved {
			t.Errorf("Outcome/State = %s/%s, want failed/resolved", r.Outcome, r.State)
		}
		if r.String() != "no bundle installed" {
			t.Errorf("String() = %q", r.String())
		}
	})

	t.Run("existing bundle", func(t *testing.T) {
		h := newHarness(t)
		h.origin.publish("1.0", bundleZip(t, "1.0"))
		first := h.engine.Resolve(context.Background())

		h.origin.setDown(true)
		h.reopen(t)
		r := h.engine.Resolve(context.Background())

		if r.Path != first.Path || r.Path == "" {
			t.Errorf("Path = %q, want %q", r.Path, first.Path)
		}
		if r.Version != "1.0" {
			t.Errorf("Version = %q, want 1.0", r.Version)
		}
	})
}

func TestResolve_FailedInstallKeepsExisting(t *testing.T) {
	h := newHarness(t)
	h.origin.publish("1.0", bundleZip(t, "1.0"))
	first := h.engine.Resolve(context.Background())

	h.origin.publish("2.0", []byte("garbage"))
	h.reopen(t)
	r := h.engine.Resolve(context.Background())

	if r.Path != first.Path {
		t.Errorf("Path = %q, want %q", r.Path, first.Path)
	}
	if r.Outcome != types.OutcomeFailed {
		t.Errorf("Outcome = %s, want failed", r.Outcome)
	}
	if !strings.HasPrefix(r.Error, "unpack:") {
		t.Errorf("Error = %q, want an unpack error", r.Error)
	}
	snap := h.versions(t)
	if snap.Installed != "1.0" || snap.LastLaunched != "1.0" {
		t.Errorf("versions = %+v, want both 1.0", snap)
	}
}

func TestResolve_ReinstallsMissingBundle(t *testing.T) {
	h := newHarness(t)
	h.origin.publish("1.0", bundleZip(t, "1.0"))
	h.engine.Resolve(context.Background())

	if err := os.RemoveAll(h.installer.BundleDir()); err != nil {
		t.Fatal(err)
	}

	h.reopen(t)
	r := h.engine.Resolve(context.Background())

	if r.Outcome != types.OutcomeInstalled {
		t.Errorf("Outcome = %s, want installed", r.Outcome)
	}
	if r.Path == "" {
		t.Error("Path should point at the reinstalled bundle")
	}
	if hits := h.origin.archiveHits.Load(); hits != 2 {
		t.Errorf("archive downloaded %d times, want 2", hits)
	}
}

// slowFetcher blocks until its context ends.
type slowFetcher struct{}

func (slowFetcher) Fetch(ctx context.Context) (*update.Manifest, error) {
	<-ctx.Done()
	return nil, &update.FetchError{URL: "slow", Err: ctx.Err()}
}

func TestResolve_BoundedByLaunchTimeout(t *testing.T) {
	e, err := New(Options{
		Fetcher:       slowFetcher{},
		Installer:     update.NewBundleInstaller(t.TempDir(), "CachedWebApp", update.NewHTTPDownloader()),
		Store:         state.NewMemoryStore(),
		LaunchTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	start := time.Now()
	r := e.Resolve(context.Background())
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Errorf("Resolve() took %v, want about the launch timeout", elapsed)
	}
	if r.Outcome != types.OutcomeFailed || r.Path != "" {
		t.Errorf("Resolve() = %+v, want failed with no path", r)
	}
}

func TestNew_SkipRecover(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "CachedWebApp.old")
	if err := os.MkdirAll(old, 0755); err != nil {
		t.Fatal(err)
	}

	_, err := New(Options{
		Fetcher:     update.NewManifestFetcher("https://example.com/manifest.json"),
		Installer:   update.NewBundleInstaller(root, "CachedWebApp", update.NewHTTPDownloader()),
		Store:       state.NewMemoryStore(),
		SkipRecover: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := os.Stat(old); err != nil {
		t.Errorf("previous bundle should be left alone: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "CachedWebApp")); !os.IsNotExist(err) {
		t.Errorf("live bundle should not be restored, stat error = %v", err)
	}
}

func TestLaunchResult_AdvanceRejectsIllegalStep(t *testing.T) {
	r := &LaunchResult{State: types.LaunchIdle, Trace: []types.LaunchState{types.LaunchIdle}}

	if err := r.advance(types.LaunchInstalling); err == nil {
		t.Error("idle -> installing should be rejected")
	}
	if r.State != types.LaunchIdle || len(r.Trace) != 1 {
		t.Errorf("rejected step changed the result: state %s, trace %v", r.State, r.Trace)
	}

	for _, next := range []types.LaunchState{types.LaunchCheckingManifest, types.LaunchUpToDate, types.LaunchResolved} {
		if err := r.advance(next); err != nil {
			t.Fatalf("advance(%s) error = %v", next, err)
		}
	}

	if err := r.advance(types.LaunchCheckingManifest); err == nil {
		t.Error("a resolved launch should not advance")
	}
	if r.State != types.LaunchResolved {
		t.Errorf("State = %s, want resolved", r.State)
	}
}

// A second process installs 2.0 while this one waits on the directory lock.
// Once the lock is free this process sees 2.0 and does not install again.
func TestCheck_WaitsForOtherProcessInstall(t *testing.T) {
	h := newHarness(t)
	h.origin.publish("1.0", bundleZip(t, "1.0"))
	h.engine.Resolve(context.Background())
	h.origin.publish("2.0", bundleZip(t, "2.0"))

	other := update.NewBundleInstaller(h.root, "CachedWebApp", update.NewHTTPDownloader())
	otherStore := state.NewFileStore(h.store.Path())

	unlock, err := other.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	done := make(chan *CheckResult, 1)
	go func() { done <- h.engine.Check(context.Background()) }()

	select {
	case r := <-done:
		t.Fatalf("Check finished while another process held the lock: %s", r)
	case <-time.After(150 * time.Millisecond):
	}

	if _, err := other.Install(context.Background(), h.origin.URL+"/bundles/2.0.zip"); err != nil {
		t.Fatalf("other Install() error = %v", err)
	}
	if err := state.NewVersions(otherStore).SetInstalled("2.0"); err != nil {
		t.Fatal(err)
	}
	unlock()

	var r *CheckResult
	select {
	case r = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Check still blocked after the lock was released")
	}

	if r.Outcome != types.OutcomeUpToDate {
		t.Errorf("Outcome = %s, want up-to-date", r.Outcome)
	}
	if hits := h.origin.archiveHits.Load(); hits != 2 {
		t.Errorf("archive downloaded %d times, want 2 (1.0 once, 2.0 once)", hits)
	}
	if n := h.eventCount(); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
	if got := h.entryContent(t); got != "<h1>2.0</h1>" {
		t.Errorf("entry content = %q, want 2.0's", got)
	}
}

func TestCheck_LockWaitCancelled(t *testing.T) {
	h := newHarness(t)
	h.origin.publish("1.0", bundleZip(t, "1.0"))

	other := update.NewBundleInstaller(h.root, "CachedWebApp", update.NewHTTPDownloader())
	unlock, err := other.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	r := h.engine.Check(ctx)
	if r.Outcome != types.OutcomeFailed {
		t.Errorf("Outcome = %s, want failed", r.Outcome)
	}
	if !errors.Is(r.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want deadline exceeded", r.Err)
	}
	if hits := h.origin.archiveHits.Load(); hits != 0 {
		t.Errorf("archive downloaded %d times, want 0", hits)
	}
}

func TestReset_NextResolveReinstalls(t *testing.T) {
	h := newHarness(t)
	h.origin.publish("1.0", bundleZip(t, "1.0"))
	h.engine.Resolve(context.Background())

	cleared, err := h.engine.Reset(context.Background())
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if len(cleared) != 2 {
		t.Errorf("cleared = %v, want both version facts", cleared)
	}
	if snap := h.versions(t); snap.Installed != "" || snap.LastLaunched != "" {
		t.Errorf("versions after Reset = %+v, want empty", snap)
	}
	if _, ok := h.engine.LocalIndexPath(); !ok {
		t.Error("Reset should leave the bundle on disk")
	}

	r := h.engine.Resolve(context.Background())
	if r.Outcome != types.OutcomeInstalled {
		t.Errorf("Outcome = %s, want installed", r.Outcome)
	}
	if hits := h.origin.archiveHits.Load(); hits != 2 {
		t.Errorf("archive downloaded %d times, want 2", hits)
	}
	if snap := h.versions(t); snap.Installed != "1.0" {
		t.Errorf("Installed = %q, want 1.0", snap.Installed)
	}
}
