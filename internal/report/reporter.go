package report

import (
	"fmt"
	"strconv"

	"github.com/nimbusdeploy/gitops-sync/internal/engine"
	"github.com/nimbusdeploy/gitops-sync/internal/release"
)

// Reporter turns engine output into log records and metric observations.
type Reporter struct {
	log     *Logger
	metrics *Metrics
}

// NewReporter builds a Reporter.
func NewReporter(log *Logger, metrics *Metrics) *Reporter {
	return &Reporter{log: log, metrics: metrics}
}

// TickDropped logs and counts a tick dropped for non-reentrancy.
func (r *Reporter) TickDropped() {
	r.log.Warn("tick dropped: cycle already in progress")
	if r.metrics != nil {
		r.metrics.ticksDropped.Inc()
	}
}

// Cycle emits the per-application detail records, the per-cycle summary
// line, and the corresponding metric observations for one sealed
// CycleSummary.
func (r *Reporter) Cycle(summary *engine.CycleSummary) {
	if summary == nil {
		return
	}

	if summary.Aborted {
		r.log.Error("sync cycle aborted",
			"cycle_id", summary.CycleID.String(),
			"error", summary.AbortErr.Error(),
		)
		if r.metrics != nil {
			r.metrics.cyclesTotal.WithLabelValues("aborted").Inc()
		}
		return
	}

	if summary.SkippedAll {
		r.log.Info("sync cycle no-op: commit unchanged", "cycle_id", summary.CycleID.String())
		if r.metrics != nil {
			r.metrics.cyclesTotal.WithLabelValues("noop").Inc()
		}
		return
	}

	for _, res := range summary.Results {
		r.application(summary.CycleID.String(), res)
	}

	seconds := summary.EndedAt.Sub(summary.StartedAt).Seconds()
	r.log.Info(fmt.Sprintf(
		"Sync completed: %d/%d succeeded, %d failed, %d skipped (%.0fs)",
		summary.Successful, len(summary.Results), summary.Failed, summary.Skipped, seconds,
	), "cycle_id", summary.CycleID.String())

	if r.metrics != nil {
		r.metrics.cyclesTotal.WithLabelValues("completed").Inc()
		r.metrics.cycleDuration.Observe(seconds)
	}
}

func (r *Reporter) application(cycleID string, res release.Result) {
	if r.metrics != nil {
		r.metrics.syncResultsTotal.WithLabelValues(string(res.Action), strconv.FormatBool(res.Success)).Inc()
	}

	if res.Success {
		r.log.Info("application sync succeeded",
			"cycle_id", cycleID,
			"app", res.AppID,
			"action", string(res.Action),
			"duration_ms", res.EndedAt.Sub(res.StartedAt).Milliseconds(),
		)
		return
	}

	args := []any{
		"cycle_id", cycleID,
		"app", res.AppID,
		"action", string(res.Action),
		"rolled_back", res.RolledBack,
	}
	if res.Err != nil {
		args = append(args, "error", res.Err.Error())
	}
	r.log.Error("application sync failed", args...)
}
