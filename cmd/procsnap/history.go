package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/spin-stack/procsnap/internal/history"
	"github.com/spin-stack/procsnap/internal/paths"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded snapshot operations, newest first",
	Args:  cobra.NoArgs,
	RunE:  listHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of operations to list, 0 for all")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print records as JSON lines")
}

func listHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := history.OpenBoltStore[history.Record](paths.HistoryDBPath(cfg.Paths), history.Bucket)
	recs, err := history.NewJournal(store, 0).List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		enc := json.NewEncoder(out)
		for _, r := range recs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}
	renderHistory(out, recs)
	return nil
}

// renderHistory renders a table with one row per recorded operation.
func renderHistory(w io.Writer, recs []history.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Started", "PID", "Status", "Sections", "Written", "Duration", "Directory"})
	t.SetStyle(table.StyleLight)

	for _, r := range recs {
		var (
			names []string
			bytes int64
		)
		for _, s := range r.Sections {
			name := s.Section
			if s.Error != "" {
				name += " (" + s.Kind + ")"
			}
			names = append(names, name)
			bytes += s.Bytes
		}
		status := r.Status
		if r.Error != "" {
			status += ": " + r.Error
		}
		dir := r.Directory
		if dir == "" {
			dir = "."
		}
		t.AppendRow(table.Row{
			humanize.Time(r.Started),
			r.TargetID,
			status,
			strings.Join(names, ", "),
			humanize.IBytes(uint64(bytes)),
			r.Duration.Round(time.Microsecond),
			dir,
		})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d operations", len(recs))})
	t.Render()
}
