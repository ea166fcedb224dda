package store

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/skillerious/torn-target-tracker/pkg/torn"
)

func TestExportCSV(t *testing.T) {
	until := time.Date(2026, 5, 1, 12, 30, 0, 0, time.Local).Unix()
	records := []torn.TargetRecord{
		{
			ID: 1, Name: "Alice", Level: 42,
			StatusState: "Hospital", StatusDescription: "In hospital for 2 hrs",
			StatusUntil: until, Faction: "Cartel [99]", LastActionRelative: "1 hour ago",
		},
		{ID: 2, Error: "User not found"},
	}

	var buf strings.Builder
	if err := ExportCSV(&buf, records); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2 records", len(rows))
	}

	wantHeader := "Name,ID,Level,Status,Details,Until,Faction,Last Action,Error"
	if got := strings.Join(rows[0], ","); got != wantHeader {
		t.Errorf("header = %q, want %q", got, wantHeader)
	}

	alice := rows[1]
	if alice[0] != "Alice" || alice[1] != "1" || alice[2] != "42" {
		t.Errorf("row = %v, want Alice/1/42 leading columns", alice)
	}
	if alice[3] != "Hospital" {
		t.Errorf("status column = %q, want Hospital", alice[3])
	}
	if alice[5] != "2026-05-01 12:30" {
		t.Errorf("until column = %q, want formatted local time", alice[5])
	}

	failed := rows[2]
	if failed[1] != "2" || failed[2] != "" || failed[8] != "User not found" {
		t.Errorf("failed row = %v, want empty level and error message", failed)
	}
}

func TestExportCSV_Empty(t *testing.T) {
	var buf strings.Builder
	if err := ExportCSV(&buf, nil); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Errorf("got %d lines for empty snapshot, want header only", len(lines))
	}
}
