// Package release drives one application's Helm release through the
// install-or-upgrade decision, invokes the health prober, and triggers
// rollback on failure. Every field it touches has already passed
// internal/validate at config-load time; this package trusts its input.
package release

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nimbusdeploy/gitops-sync/internal/config"
	"github.com/nimbusdeploy/gitops-sync/internal/health"
	"github.com/nimbusdeploy/gitops-sync/internal/procexec"
)

// Action names a release action taken for one application.
type Action string

const (
	ActionInstall Action = "install"
	ActionUpgrade Action = "upgrade"
	ActionSkip    Action = "skip"
	ActionNone    Action = "none"
)

// Phase names the step during which a ReleaseError occurred.
type Phase string

const (
	PhaseStatus   Phase = "status"
	PhaseInstall  Phase = "install"
	PhaseUpgrade  Phase = "upgrade"
	PhaseRollback Phase = "rollback"
)

// Error reports a failed release-tool invocation.
type Error struct {
	Phase Phase
	App   string
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("release: %s %s: %v", e.App, e.Phase, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

const (
	statusTimeout   = 10 * time.Second
	installTimeout  = 5 * time.Minute
	rollbackTimeout = 2 * time.Minute
)

// Result is the sealed outcome of one application's sync.
type Result struct {
	AppID      string
	Success    bool
	Action     Action
	Err        error
	RolledBack bool
	StartedAt  time.Time
	EndedAt    time.Time
}

// Driver applies one application's desired release state with the
// configured workspace root, release tool binary, and sync-wide flags.
type Driver struct {
	Runner        procexec.Runner
	Binary        string
	WorkspaceRoot string
	AutoRollback  bool
	DryRun        bool
	Prober        *health.Prober
	HealthEnabled bool
}

// NewDriver builds a Driver. binary is normally "helm".
func NewDriver(runner procexec.Runner, binary, workspaceRoot string, autoRollback, dryRun bool, prober *health.Prober, healthEnabled bool) *Driver {
	return &Driver{
		Runner:        runner,
		Binary:        binary,
		WorkspaceRoot: workspaceRoot,
		AutoRollback:  autoRollback,
		DryRun:        dryRun,
		Prober:        prober,
		HealthEnabled: healthEnabled,
	}
}

// Sync applies app's desired state and returns the sealed SyncResult.
func (d *Driver) Sync(ctx context.Context, app config.ApplicationSpec) Result {
	start := time.Now()
	res := Result{AppID: app.ID, StartedAt: start}

	if !app.Enabled || !app.AutoSync {
		res.Success = true
		res.Action = ActionSkip
		res.EndedAt = time.Now()
		return res
	}

	priorRelease, statusErr := d.releaseExists(ctx, app)
	if statusErr != nil {
		res.Err = &Error{Phase: PhaseStatus, App: app.ID, cause: statusErr}
		res.EndedAt = time.Now()
		return res
	}

	action := ActionUpgrade
	if !priorRelease {
		action = ActionInstall
	}
	res.Action = action

	applyErr := d.apply(ctx, app, action)
	if applyErr == nil && d.HealthEnabled && !d.DryRun {
		if err := d.Prober.Probe(ctx, health.Target{AppID: app.ID, Namespace: app.Namespace}); err != nil {
			applyErr = err
		}
	}

	if applyErr != nil {
		res.Err = applyErr
		if priorRelease && d.AutoRollback && !d.DryRun {
			if rbErr := d.rollback(ctx, app); rbErr != nil {
				res.Err = fmt.Errorf("%w (rollback also failed: %s)", applyErr, rbErr.Error())
			} else {
				res.RolledBack = true
			}
		}
		res.EndedAt = time.Now()
		return res
	}

	res.Success = true
	res.EndedAt = time.Now()
	return res
}

// releaseExists queries whether a release named app.ID exists in
// app.Namespace. A nonzero exit from the status command is the tool's
// convention for "release absent", not an error.
func (d *Driver) releaseExists(ctx context.Context, app config.ApplicationSpec) (bool, error) {
	_, err := d.Runner.Run(ctx, procexec.Spec{
		Binary:  d.Binary,
		Args:    []string{"status", app.ID, "-n", app.Namespace},
		Timeout: statusTimeout,
		Capture: true,
	})
	if err == nil {
		return true, nil
	}
	var execErr *procexec.Error
	if errors.As(err, &execErr) && execErr.Reason == procexec.ReasonExit {
		return false, nil
	}
	return false, err
}

func (d *Driver) apply(ctx context.Context, app config.ApplicationSpec, action Action) error {
	chartPath := filepath.Join(d.WorkspaceRoot, app.Path)

	args := []string{string(action), app.ID, chartPath, "-n", app.Namespace}
	for _, vf := range app.ValueFiles {
		args = append(args, "-f", filepath.Join(chartPath, vf))
	}
	if action == ActionInstall {
		args = append(args, "--create-namespace")
	}
	if d.DryRun {
		args = append(args, "--dry-run")
	}
	args = append(args, "--wait")

	_, err := d.Runner.Run(ctx, procexec.Spec{
		Binary:  d.Binary,
		Args:    args,
		Timeout: installTimeout,
		Capture: true,
	})
	if err != nil {
		phase := PhaseInstall
		if action == ActionUpgrade {
			phase = PhaseUpgrade
		}
		return &Error{Phase: phase, App: app.ID, cause: err}
	}
	return nil
}

func (d *Driver) rollback(ctx context.Context, app config.ApplicationSpec) error {
	_, err := d.Runner.Run(ctx, procexec.Spec{
		Binary:  d.Binary,
		Args:    []string{"rollback", app.ID, "-n", app.Namespace},
		Timeout: rollbackTimeout,
		Capture: true,
	})
	if err != nil {
		return &Error{Phase: PhaseRollback, App: app.ID, cause: err}
	}
	return nil
}
