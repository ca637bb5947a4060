package orchestrator

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Render writes the report as a table, one row per stage.
func (r Report) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Cluster", "Stage", "Result"})

	for _, result := range r.Results {
		cluster := result.Cluster
		if cluster == "" {
			cluster = "-"
		}
		outcome := "ok"
		if result.Err != nil {
			outcome = result.Err.Error()
		}
		t.AppendRow(table.Row{cluster, result.Stage, outcome})
	}
	t.AppendFooter(table.Row{"", "failures", len(r.Failures())})
	t.Render()
}
