// Package gitrepo drives a local checkout of one Git repository at a pinned
// branch: clone it if it doesn't exist, otherwise hard-reset it to the
// remote's tip. Every invocation is routed through internal/procexec so the
// repository URL, branch, and local path never reach a shell.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nimbusdeploy/gitops-sync/internal/procexec"
)

// Error wraps a failed git invocation with the operation that triggered it.
type Error struct {
	Op    string
	cause error
}

func (e *Error) Error() string { return fmt.Sprintf("gitrepo: %s: %v", e.Op, e.cause) }
func (e *Error) Unwrap() error { return e.cause }

// Workspace is a local checkout of repoURL at branch, rooted at path.
type Workspace struct {
	runner  procexec.Runner
	repoURL string
	branch  string
	path    string
	timeout time.Duration
}

// New builds a Workspace. branch is assumed to have already passed
// internal/validate; repoURL is only checked for presence at config load.
// This package does not validate either of them.
func New(runner procexec.Runner, repoURL, branch, path string, timeout time.Duration) *Workspace {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Workspace{
		runner:  runner,
		repoURL: repoURL,
		branch:  branch,
		path:    path,
		timeout: timeout,
	}
}

// Path returns the absolute local checkout path.
func (w *Workspace) Path() string { return w.path }

func (w *Workspace) run(ctx context.Context, dir string, args ...string) (procexec.Result, error) {
	res, err := w.runner.Run(ctx, procexec.Spec{
		Binary:  "git",
		Args:    args,
		Dir:     dir,
		Timeout: w.timeout,
		Capture: true,
	})
	if err != nil {
		return procexec.Result{}, &Error{Op: strings.Join(args, " "), cause: err}
	}
	return res, nil
}

// Ensure clones the repository into path at branch if path does not yet
// exist; the fresh clone is not refreshed again. If path already exists,
// Ensure only refreshes.
func (w *Workspace) Ensure(ctx context.Context) error {
	if _, err := os.Stat(w.path); os.IsNotExist(err) {
		if err := w.clone(ctx); err != nil {
			return err
		}
		return nil
	}
	return w.Refresh(ctx)
}

func (w *Workspace) clone(ctx context.Context) error {
	if _, err := w.run(ctx, "", "clone", "--branch", w.branch, w.repoURL, w.path); err != nil {
		return err
	}
	return nil
}

// Refresh fetches branch from origin and hard-resets the working tree to
// origin/<branch>, then removes untracked files. This is chosen over a
// merge/pull to guarantee a deterministic working tree even after local
// corruption.
func (w *Workspace) Refresh(ctx context.Context) error {
	if _, err := w.run(ctx, w.path, "fetch", "origin", w.branch); err != nil {
		return err
	}
	target := "origin/" + w.branch
	if _, err := w.run(ctx, w.path, "reset", "--hard", target); err != nil {
		return err
	}
	if _, err := w.run(ctx, w.path, "clean", "-fdx"); err != nil {
		return err
	}
	return nil
}

// CurrentCommit returns HEAD as a hex string.
func (w *Workspace) CurrentCommit(ctx context.Context) (string, error) {
	res, err := w.run(ctx, w.path, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}
