package train

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/cortml/cort/metrics"
)

// EpochLogs sind die zusammengefuehrten Logs einer abgeschlossenen Epoche
type EpochLogs struct {
	Epoch int
	Logs  metrics.Logs
}

// Summary schreibt eine Tabelle mit einer Zeile pro Epoche und den Spalten columns
func Summary(w io.Writer, history []EpochLogs, columns []string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(append([]string{"EPOCH"}, columns...))
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoFormatHeaders(false)

	for _, e := range history {
		row := []string{strconv.Itoa(e.Epoch + 1)}
		for _, c := range columns {
			if v, ok := e.Logs[c]; ok {
				row = append(row, strconv.FormatFloat(v, 'f', 4, 64))
			} else {
				row = append(row, "-")
			}
		}
		table.Append(row)
	}

	table.Render()
}
