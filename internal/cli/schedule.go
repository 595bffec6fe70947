package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Taskflow/internal/scheduler"
)

// NewScheduleCmd создаёт группу команд для проверки cron расписаний.
func NewScheduleCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect cron schedules",
	}

	cmd.AddCommand(
		newScheduleNextCmd(outputFn),
		newScheduleParseCmd(outputFn),
	)

	return cmd
}

func newScheduleNextCmd(outputFn func() *Output) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "next CRON_EXPR",
		Short: "Show upcoming fire times of a cron expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return errors.New("--count must be positive")
			}

			times, err := nextRuns(args[0], time.Now(), count)
			if err != nil {
				return err
			}

			rows := make([][]string, len(times))
			for i, t := range times {
				rows[i] = []string{t.Format(time.RFC3339)}
			}

			outputFn().Print([]string{"NEXT_RUN"}, rows, times)
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 5, "Number of fire times to show")

	return cmd
}

func newScheduleParseCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "parse SCHEDULES",
		Short: "Parse a TASKFLOW_SCHEDULES value (flowID=cron;...)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := scheduler.ParseEntries(args[0])
			if err != nil {
				return err
			}

			now := time.Now()
			rows := make([][]string, len(entries))
			for i, e := range entries {
				next, err := scheduler.NextRun(e.Spec, now)
				if err != nil {
					return err
				}
				rows[i] = []string{e.FlowID, e.Spec, next.Format(time.RFC3339)}
			}

			outputFn().Print([]string{"FLOW_ID", "CRON", "NEXT_RUN"}, rows, entries)
			return nil
		},
	}
}

// nextRuns возвращает count следующих срабатываний выражения после from.
func nextRuns(expr string, from time.Time, count int) ([]time.Time, error) {
	times := make([]time.Time, 0, count)
	t := from
	for range count {
		next, err := scheduler.NextRun(expr, t)
		if err != nil {
			return nil, err
		}
		if next.IsZero() {
			break
		}
		times = append(times, next)
		t = next
	}
	return times, nil
}
