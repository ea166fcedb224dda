package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/skillerious/torn-target-tracker/pkg/torn"
)

// csvHeader is the exported column set, in display order.
var csvHeader = []string{
	"Name", "ID", "Level", "Status", "Details", "Until",
	"Faction", "Last Action", "Error",
}

// ExportCSV writes the snapshot to w as CSV, one row per record in snapshot
// order.
func ExportCSV(w io.Writer, records []torn.TargetRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		level := ""
		if rec.Level > 0 {
			level = strconv.Itoa(rec.Level)
		}
		row := []string{
			rec.Name,
			strconv.FormatInt(rec.ID, 10),
			level,
			rec.StatusChip(),
			rec.StatusDescription,
			rec.UntilHuman(),
			rec.Faction,
			rec.LastActionRelative,
			rec.Error,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for %d: %w", rec.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
