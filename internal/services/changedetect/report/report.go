// Package report implements the audit report sink (C9): aggregates
// AuditRows into counts for a console summary and writes the full row
// stream to a CSV file.
package report

import (
	"context"
	"encoding/csv"
	"os"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/domain"

	"github.com/rs/zerolog"
)

// CSVSink writes audit rows to a CSV file at Path, one row per
// resource, header row first, and logs an aggregated summary.
type CSVSink struct {
	Path string
	Log  zerolog.Logger
}

// Write implements domain.AuditSink.
func (s CSVSink) Write(ctx context.Context, rows []domain.AuditRow) error {
	counts := Aggregate(rows)
	s.Log.Info().Int("resources", len(rows)).Int("distinct_rows", len(counts)).Msg("sweep audit summary")
	for _, rc := range counts {
		s.Log.Debug().Strs("row", rc.Row.Values()).Int("count", rc.Count).Msg("audit row group")
	}

	if s.Path == "" {
		return nil
	}

	f, err := os.Create(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := append([]string{"Resource ID"}, domain.Keys()...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := append([]string{row.ResourceID}, row.Values()...)
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

// RowCount pairs a deduplicated row shape (resource ID blanked out) with
// how many resources produced it.
type RowCount struct {
	Row   domain.AuditRow
	Count int
}

// Aggregate groups identical rows (ignoring ResourceID) into counts,
// in first-seen order.
func Aggregate(rows []domain.AuditRow) []RowCount {
	type key = [20]string // len(domain.Keys())

	index := make(map[key]int)
	var out []RowCount

	for _, row := range rows {
		var k key
		copy(k[:], row.Values())

		if i, ok := index[k]; ok {
			out[i].Count++
			continue
		}
		blanked := row
		blanked.ResourceID = ""
		index[k] = len(out)
		out = append(out, RowCount{Row: blanked, Count: 1})
	}
	return out
}
