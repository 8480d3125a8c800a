// Package health waits for a workload to become available after a release
// action, retrying a blocking wait primitive with a deterministic
// exponential backoff between attempts.
package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nimbusdeploy/gitops-sync/internal/procexec"
)

const defaultWaitTimeout = 30 * time.Second

// Error reports that a workload did not become available. Attempts is the
// number of wait attempts actually made, which is fewer than the configured
// retries when the probe was cancelled between attempts.
type Error struct {
	AppID    string
	Attempts int
	cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("health: %s: unavailable after %d attempts: %v", e.AppID, e.Attempts, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Target identifies the workload being probed.
type Target struct {
	AppID     string
	Namespace string
}

// Policy is the bounded-retry backoff policy.
type Policy struct {
	Retries        int
	InitialDelayMs int
	BackoffFactor  float64
	MaxDelayMs     int
	WaitTimeout    time.Duration
}

// Prober waits for a target's deployments to report Available.
type Prober struct {
	Runner procexec.Runner
	Binary string
	Policy Policy
	Sleep  func(ctx context.Context, d time.Duration) error
}

// NewProber builds a Prober. binary is normally "kubectl".
func NewProber(runner procexec.Runner, binary string, p Policy) *Prober {
	if p.WaitTimeout <= 0 {
		p.WaitTimeout = defaultWaitTimeout
	}
	return &Prober{
		Runner: runner,
		Binary: binary,
		Policy: p,
		Sleep:  sleepCtx,
	}
}

// Probe blocks until target reports Available, retrying up to
// p.Policy.Retries times with exponential backoff between attempts.
func (p *Prober) Probe(ctx context.Context, target Target) error {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.Policy.Retries; attempt++ {
		attempts = attempt
		_, err := p.Runner.Run(ctx, procexec.Spec{
			Binary: p.Binary,
			Args: []string{
				"wait",
				"--for=condition=Available",
				"deployment",
				"-l", "app=" + target.AppID,
				"-n", target.Namespace,
				fmt.Sprintf("--timeout=%ds", int(p.Policy.WaitTimeout/time.Second)),
			},
			Timeout: p.Policy.WaitTimeout + 5*time.Second,
			Capture: true,
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == p.Policy.Retries {
			break
		}
		if sleepErr := p.Sleep(ctx, Backoff(attempt, p.Policy)); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}
	return &Error{AppID: target.AppID, Attempts: attempts, cause: lastErr}
}

// Backoff computes the kth inter-attempt sleep (k indexed from 1):
// min(initialDelay * backoffFactor^(k-1), maxDelay). No jitter — the
// schedule must be exactly reproducible.
func Backoff(attempt int, p Policy) time.Duration {
	initial := float64(p.InitialDelayMs)
	factor := math.Pow(p.BackoffFactor, float64(attempt-1))
	ms := initial * factor
	if maxMs := float64(p.MaxDelayMs); ms > maxMs {
		ms = maxMs
	}
	return time.Duration(ms) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
