package procexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerSuccess(t *testing.T) {
	r := NewExecRunner()
	res, err := r.Run(context.Background(), Spec{
		Binary:  "echo",
		Args:    []string{"hello"},
		Capture: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecRunnerNonzeroExit(t *testing.T) {
	r := NewExecRunner()
	_, err := r.Run(context.Background(), Spec{
		Binary:  "sh",
		Args:    []string{"-c", "echo oops 1>&2; exit 3"},
		Capture: true,
	})
	require.Error(t, err)
	var execErr *Error
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ReasonExit, execErr.Reason)
	assert.Equal(t, 3, execErr.Code)
	assert.Contains(t, execErr.Stderr, "oops")
}

func TestExecRunnerTimeout(t *testing.T) {
	r := NewExecRunner()
	_, err := r.Run(context.Background(), Spec{
		Binary:  "sleep",
		Args:    []string{"5"},
		Timeout: 50 * time.Millisecond,
		Capture: true,
	})
	require.Error(t, err)
	var execErr *Error
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ReasonTimeout, execErr.Reason)
}

func TestExecRunnerSpawnFailure(t *testing.T) {
	r := NewExecRunner()
	_, err := r.Run(context.Background(), Spec{
		Binary: "this-binary-does-not-exist-anywhere",
		Args:   []string{},
	})
	require.Error(t, err)
	var execErr *Error
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ReasonSpawn, execErr.Reason)
}

func TestExecRunnerCancellation(t *testing.T) {
	r := NewExecRunner()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err := r.Run(ctx, Spec{
		Binary: "sleep",
		Args:   []string{"5"},
	})
	require.Error(t, err)
	var execErr *Error
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ReasonTimeout, execErr.Reason)
	assert.True(t, errors.Is(execErr.Unwrap(), context.Canceled))
}
