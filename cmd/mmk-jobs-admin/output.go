package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/target/mmk-jobs/internal/domain/model"
	"github.com/target/mmk-jobs/internal/migrate"
	"github.com/target/mmk-jobs/internal/util"
)

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}

func printMigrationStatus(w io.Writer, migrations []migrate.Migration) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "VERSION\tAPPLIED"); err != nil {
		return err
	}
	for _, m := range migrations {
		state := "no"
		if m.Applied {
			state = "yes"
		}
		if err := writef(tw, "%s\t%s\n", m.Version, state); err != nil {
			return err
		}
	}
	return tw.Flush()
}

var statsOrder = []model.JobStatus{
	model.JobStatusPending,
	model.JobStatusQueued,
	model.JobStatusRunning,
	model.JobStatusPendingRetry,
	model.JobStatusCompleted,
	model.JobStatusFailed,
}

func printStats(w io.Writer, stats model.JobStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "STATUS\tJOBS"); err != nil {
		return err
	}
	total := 0
	for _, status := range statsOrder {
		n := stats[status]
		total += n
		if err := writef(tw, "%s\t%d\n", status, n); err != nil {
			return err
		}
	}
	if err := writef(tw, "total\t%d\n", total); err != nil {
		return err
	}
	return tw.Flush()
}

func printStaleJobs(w io.Writer, jobs []*model.Job, now time.Time) error {
	if len(jobs) == 0 {
		return writeln(w, "no running jobs")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "ID\tSESSION\tTYPE\tPROGRESS\tRUNNING FOR"); err != nil {
		return err
	}
	for _, j := range jobs {
		var age time.Duration
		if j.StartedAt != nil {
			age = now.Sub(*j.StartedAt)
		}
		if err := writef(tw, "%s\t%s\t%s\t%d%%\t%s\n",
			j.ID, j.SessionID, j.Type, j.Progress, util.FormatElapsed(age),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printEvent(w io.Writer, evt model.JobEvent) error {
	line := fmt.Sprintf("%s  %-9s job=%s type=%s status=%s attempt=%d",
		evt.Timestamp.UTC().Format(time.RFC3339), evt.Type, evt.JobID, evt.JobType, evt.Status, evt.Attempt)
	if evt.Message != "" {
		line += fmt.Sprintf(" message=%q", evt.Message)
	}
	return writeln(w, line)
}
