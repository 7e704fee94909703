package cmd

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/jzx17/gometer/pkg/stats"
)

// renderSnapshots prints one row per task
func renderSnapshots(out io.Writer, snaps []stats.Snapshot) error {
	if len(snaps) == 0 {
		_, err := io.WriteString(out, "No timers recorded\n")
		return err
	}

	table := tablewriter.NewWriter(out)
	table.Header("Task", "Count", "Total", "Min", "Max", "Average")
	for _, s := range snaps {
		if err := table.Append(
			s.Task,
			strconv.FormatInt(s.Count, 10),
			round(s.Total),
			round(s.Min),
			round(s.Max),
			round(s.Average()),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func round(d time.Duration) string {
	return d.Round(time.Microsecond).String()
}
