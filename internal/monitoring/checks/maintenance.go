package checks

import (
	"context"
	"strings"
	"time"

	"github.com/kartheek-penagamuri/stride-sub000/internal/monitoring"
)

const defaultMaintenanceMaxAge = 6 * time.Hour

// Maintenance reports DOWN when a job keeps failing and DEGRADED when its last run is older
// than maxAge. Jobs that have not run yet are reported but do not fail the probe.
func Maintenance(tracker *monitoring.JobTracker, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(context.Context) monitoring.ProbeResult {
		if tracker == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no maintenance jobs registered"}
		}
		jobs := tracker.Snapshot()
		if len(jobs) == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no maintenance runs recorded"}
		}

		now := tracker.Now()
		status := monitoring.StatusUp
		var problems []string
		for _, job := range jobs {
			switch {
			case job.ConsecutiveFailures > 1:
				status = monitoring.Worse(status, monitoring.StatusDown)
				problems = append(problems, job.Job+": consecutive failures: "+job.LastError)
			case job.ConsecutiveFailures == 1:
				status = monitoring.Worse(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+": last run failed: "+job.LastError)
			}
			if now.Sub(job.LastRunAt) > maxAge {
				status = monitoring.Worse(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+": stale run "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}
		return monitoring.ProbeResult{Status: status, Details: strings.Join(problems, "; ")}
	})
}
