package cycle

import (
	"io"
	"time"

	"github.com/brevis-network/brevis-iv-quickstart/store"
	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteSummary renders a cycle record as a two column table.
func WriteSummary(w io.Writer, rec *store.CycleRecord) {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"field", "value"})
	t.AppendRows([]table.Row{
		{"id", rec.ID},
		{"status", rec.Status},
		{"started", rec.StartedAt.Format(time.RFC3339)},
		{"updated", rec.UpdatedAt.Format(time.RFC3339)},
		{"from block", rec.FromBlock},
		{"head block", rec.HeadBlock},
		{"swaps found", rec.SwapsFound},
		{"swaps selected", rec.SwapsSelected},
		{"total volume", rec.TotalVolume},
	})
	optional := []struct {
		name, value string
	}{
		{"expected output", rec.ExpectedOutput},
		{"query hash", rec.QueryHash},
		{"fee", rec.Fee},
		{"tx", rec.TxHash},
		{"error", rec.Err},
	}
	for _, o := range optional {
		if o.value != "" {
			t.AppendRow(table.Row{o.name, o.value})
		}
	}
	if rec.QueryHash != "" {
		t.AppendRow(table.Row{"nonce", rec.Nonce})
	}
	t.Render()
}
