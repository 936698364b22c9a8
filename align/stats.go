package align

import (
	"io"

	"github.com/jedib0t/go-pretty/table"
)

// WriteStatsTable renders one row per pairwise alignment, for operators
// judging whether the key coverage of a run was good enough.
func WriteStatsTable(w io.Writer, stats ...Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	t.AppendHeader(table.Row{
		"source", "target", "source records", "indexable", "target records",
		"aligned", "source only", "target only",
	})

	for _, s := range stats {
		t.AppendRow(table.Row{
			string(s.Source),
			string(s.Target),
			s.SourceTotal,
			s.SourceIndexable,
			s.TargetTotal,
			s.Aligned,
			s.NonAlignedFromSource,
			s.NonAlignedFromTarget,
		})
	}

	t.Render()
}

// WriteTable renders this alignment's counters.
func (s Stats) WriteTable(w io.Writer) {
	WriteStatsTable(w, s)
}
