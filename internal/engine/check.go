package engine

import (
	"context"
	"fmt"

	"github.com/adamancini/webbundle/internal/notify"
	"github.com/adamancini/webbundle/internal/types"
	"github.com/adamancini/webbundle/internal/update"
)

// CheckResult reports one background fetch/compare/install pass.
type CheckResult struct {
	Outcome  types.CheckOutcome    `json:"outcome" yaml:"outcome"`
	Version  string                `json:"version,omitempty" yaml:"version,omitempty"`   // Remote version, if fetched
	Previous string                `json:"previous,omitempty" yaml:"previous,omitempty"` // Installed version before the pass
	Install  *update.InstallResult `json:"install,omitempty" yaml:"install,omitempty"`
	Error    string                `json:"error,omitempty" yaml:"error,omitempty"`

	Err error `json:"-" yaml:"-"`
}

// String implements fmt.Stringer for text output.
func (r *CheckResult) String() string {
	switch r.Outcome {
	case types.OutcomeInstalled:
		return fmt.Sprintf("installed %s (was %q); takes effect on next launch", r.Version, r.Previous)
	case types.OutcomeUpToDate:
		return fmt.Sprintf("up to date at %s", r.Version)
	case types.OutcomeSkipped:
		return "skipped: another check is in progress"
	default:
		return fmt.Sprintf("check failed: %s", r.Error)
	}
}

// Check runs one background pass: fetch the manifest, compare it with the
// installed version and install if it differs. LastLaunchedVersion is left
// alone because the user has not relaunched yet. A successful install is
// reported to the notifier. Failures are returned in the result, never
// surfaced elsewhere.
func (e *Engine) Check(ctx context.Context) *CheckResult {
	installed, err := e.installedVersion()
	if err != nil {
		return e.checkFailed(&CheckResult{}, err)
	}
	r := &CheckResult{Previous: installed}

	manifest, err := e.fetcher.Fetch(ctx)
	if err != nil {
		return e.checkFailed(r, err)
	}
	r.Version = manifest.Version

	if manifest.Version == installed {
		r.Outcome = types.OutcomeUpToDate
		e.logger.Debug("bundle up to date", "version", installed)
		return r
	}

	out, err := e.install(ctx, manifest)
	if err != nil {
		return e.checkFailed(r, err)
	}

	r.Outcome = types.OutcomeUpToDate
	if out.installed {
		r.Outcome = types.OutcomeInstalled
	}
	if !r.Outcome.Changed() {
		return r
	}

	r.Previous = out.previous
	r.Install = out.result

	e.notifier.Notify(notify.Event{
		Version:     manifest.Version,
		Previous:    out.previous,
		InstalledAt: e.now(),
	})
	return r
}

func (e *Engine) checkFailed(r *CheckResult, err error) *CheckResult {
	e.logger.Warn("background check failed", "kind", update.Kind(err), "error", err)
	r.Outcome = types.OutcomeFailed
	r.Err = err
	r.Error = fmt.Sprintf("%s: %v", update.Kind(err), err)
	return r
}
