package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/remotepilot/daemon/internal/config"
	"github.com/remotepilot/daemon/internal/scheduler"
)

// NewScheduleCommand returns the schedule subcommand.
func NewScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:   "schedule",
		Usage:  "List cron-scheduled goals",
		Action: runScheduleList,
	}
}

func runScheduleList(_ context.Context, _ *cli.Command) error {
	store := scheduler.NewStore(config.ScheduleDir())
	entries, err := store.List()
	if err != nil {
		return fmt.Errorf("list schedule: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No scheduled goals found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGOAL\tCRON\tLAST RUN\tRUN COUNT")
	for _, e := range entries {
		lastRun := "-"
		if e.LastRunAt != nil {
			lastRun = e.LastRunAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", e.ID, e.Goal, e.Cron, lastRun, e.RunCount)
	}
	return w.Flush()
}
