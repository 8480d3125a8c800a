// Package engine runs the reconciliation loop: refresh the git workspace,
// detect commit changes, fan out per-application syncs under a bounded
// concurrency gate, and aggregate the results into one cycle summary.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nimbusdeploy/gitops-sync/internal/config"
	"github.com/nimbusdeploy/gitops-sync/internal/gitrepo"
	"github.com/nimbusdeploy/gitops-sync/internal/release"
)

// State names a phase of the per-cycle state machine.
type State string

const (
	StateIdle       State = "idle"
	StateRefreshing State = "refreshing"
	StateDetecting  State = "detecting"
	StateScheduling State = "scheduling"
	StateDraining   State = "draining"
)

// Error reports a cycle-level failure (only git failures, during the
// refresh or the HEAD read, abort a whole cycle; per-application failures
// never do).
type Error struct {
	cause error
}

func (e *Error) Error() string { return fmt.Sprintf("engine: cycle aborted: %v", e.cause) }
func (e *Error) Unwrap() error { return e.cause }

// CycleSummary is the sealed aggregate of one reconciliation cycle.
type CycleSummary struct {
	CycleID    uuid.UUID
	Results    []release.Result
	StartedAt  time.Time
	EndedAt    time.Time
	Successful int
	Failed     int
	Skipped    int
	SkippedAll bool
	Aborted    bool
	AbortErr   error
}

// Engine is the process-scoped reconciliation driver. It owns Workspace
// State and Engine State (current config, workspace, last-applied commit,
// cycleInProgress) exclusively.
type Engine struct {
	cfg       *config.Config
	workspace *gitrepo.Workspace
	driver    *release.Driver

	mu              sync.Mutex
	cycleInProgress bool
	lastCommit      string

	onDrop func()
}

// New builds an Engine bound to one loaded config, git workspace, and
// release driver.
func New(cfg *config.Config, workspace *gitrepo.Workspace, driver *release.Driver) *Engine {
	return &Engine{
		cfg:       cfg,
		workspace: workspace,
		driver:    driver,
	}
}

// OnDrop installs a callback invoked whenever a tick is dropped because
// the engine is not idle. Used by internal/report to log the warning
// invariant 3 requires.
func (e *Engine) OnDrop(fn func()) { e.onDrop = fn }

// LastCommit returns the last-applied commit hash, or "" if none yet.
func (e *Engine) LastCommit() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCommit
}

// Tick runs one reconciliation cycle, or drops it if a cycle is already
// in progress (non-reentrancy, invariant 3).
func (e *Engine) Tick(ctx context.Context) *CycleSummary {
	e.mu.Lock()
	if e.cycleInProgress {
		e.mu.Unlock()
		if e.onDrop != nil {
			e.onDrop()
		}
		return nil
	}
	e.cycleInProgress = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.cycleInProgress = false
		e.mu.Unlock()
	}()

	return e.runCycle(ctx)
}

func (e *Engine) runCycle(ctx context.Context) *CycleSummary {
	summary := &CycleSummary{CycleID: uuid.New(), StartedAt: time.Now()}

	if err := e.workspace.Refresh(ctx); err != nil {
		summary.Aborted = true
		summary.AbortErr = &Error{cause: err}
		summary.EndedAt = time.Now()
		return summary
	}

	commit, err := e.workspace.CurrentCommit(ctx)
	if err != nil {
		summary.Aborted = true
		summary.AbortErr = &Error{cause: err}
		summary.EndedAt = time.Now()
		return summary
	}

	e.mu.Lock()
	last := e.lastCommit
	e.mu.Unlock()

	if last != "" && commit == last {
		summary.SkippedAll = true
		summary.EndedAt = time.Now()
		return summary
	}

	results := e.schedule(ctx)
	summary.Results = results
	for _, r := range results {
		switch {
		case r.Action == release.ActionSkip:
			summary.Skipped++
		case r.Success:
			summary.Successful++
		default:
			summary.Failed++
		}
	}

	// Commit advance is unconditional even when some applications failed
	// (see the design decision recorded for this Open Question): it
	// happens-after every dispatched task has returned.
	e.mu.Lock()
	e.lastCommit = commit
	e.mu.Unlock()

	summary.EndedAt = time.Now()
	return summary
}

// schedule fans out one release.Driver.Sync task per application, bounded
// to e.cfg.Sync.Concurrency in-flight at a time, and waits for all of them
// before returning (invariant 4).
func (e *Engine) schedule(ctx context.Context) []release.Result {
	apps := e.cfg.Applications
	results := make([]release.Result, len(apps))

	sem := semaphore.NewWeighted(int64(e.cfg.Sync.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for i, app := range apps {
		i, app := i, app
		g.Go(func() (err error) {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = cancelledResult(app.ID)
				return nil
			}
			defer sem.Release(1)

			defer func() {
				if rec := recover(); rec != nil {
					results[i] = release.Result{
						AppID: "unknown",
						Err:   fmt.Errorf("panic in sync task for %s: %v", app.ID, rec),
					}
				}
			}()

			if ctx.Err() != nil {
				results[i] = cancelledResult(app.ID)
				return nil
			}

			results[i] = e.driver.Sync(ctx, app)
			return nil
		})
	}

	// Tasks never terminate the cycle (invariant in §4.7 "Aggregate"); the
	// errgroup's own error is always nil by construction above, so this
	// wait only blocks for drain.
	_ = g.Wait()
	return results
}

func cancelledResult(appID string) release.Result {
	now := time.Now()
	return release.Result{
		AppID:     appID,
		Success:   false,
		Err:       context.Canceled,
		StartedAt: now,
		EndedAt:   now,
	}
}
