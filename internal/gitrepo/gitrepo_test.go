package gitrepo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdeploy/gitops-sync/internal/procexec"
)

type fakeRunner struct {
	calls [][]string
	fail  map[string]error
	stdout map[string]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		fail:   map[string]error{},
		stdout: map[string]string{},
	}
}

func (f *fakeRunner) Run(_ context.Context, spec procexec.Spec) (procexec.Result, error) {
	f.calls = append(f.calls, spec.Args)
	key := spec.Args[0]
	if err, ok := f.fail[key]; ok {
		return procexec.Result{}, err
	}
	return procexec.Result{Stdout: f.stdout[key], ExitCode: 0}, nil
}

func TestEnsureClonesWhenAbsent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkout")
	r := newFakeRunner()
	ws := New(r, "https://example.com/repo.git", "main", dir, 0)

	require.NoError(t, ws.Ensure(context.Background()))
	require.Len(t, r.calls, 1)
	assert.Equal(t, []string{"clone", "--branch", "main", "https://example.com/repo.git", dir}, r.calls[0])
}

func TestEnsureRefreshesWhenPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	r := newFakeRunner()
	ws := New(r, "https://example.com/repo.git", "main", dir, 0)

	require.NoError(t, ws.Ensure(context.Background()))
	require.Len(t, r.calls, 3)
	assert.Equal(t, []string{"fetch", "origin", "main"}, r.calls[0])
	assert.Equal(t, []string{"reset", "--hard", "origin/main"}, r.calls[1])
	assert.Equal(t, []string{"clean", "-fdx"}, r.calls[2])
}

func TestRefreshPropagatesFailure(t *testing.T) {
	r := newFakeRunner()
	r.fail["fetch"] = &procexec.Error{Reason: procexec.ReasonExit, Binary: "git"}
	ws := New(r, "https://example.com/repo.git", "main", t.TempDir(), 0)

	err := ws.Refresh(context.Background())
	require.Error(t, err)
	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "fetch origin main", gerr.Op)
}

func TestCurrentCommit(t *testing.T) {
	r := newFakeRunner()
	r.stdout["rev-parse"] = "abc123def456\n"
	ws := New(r, "https://example.com/repo.git", "main", t.TempDir(), 0)

	commit, err := ws.CurrentCommit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123def456", commit)
}
