// Package history provides file and database backed historical demand feeds.
package history

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	core "github.com/kilianp07/atmcast/core/history"
	"github.com/kilianp07/atmcast/core/model"
)

// CSVSource reads a CSV file with a header row containing atm_id, date and
// demand columns, in any order. The file is read on every call so updates
// by the upstream exporter are picked up.
type CSVSource struct {
	Path string
}

var _ core.Source = CSVSource{}

// Records implements core.Source.
func (c CSVSource) Records(ctx context.Context, q core.Query) ([]model.HistoricalRecord, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	recs, err := ReadCSV(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Path, err)
	}
	out := recs[:0]
	for _, r := range recs {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	core.Sort(out)
	return out, nil
}

// ReadCSV parses demand records from r.
func ReadCSV(ctx context.Context, r io.Reader) ([]model.HistoricalRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	col := func(names ...string) (int, error) {
		for _, n := range names {
			if i, ok := idx[n]; ok {
				return i, nil
			}
		}
		return 0, fmt.Errorf("missing column %q", names[0])
	}
	atmCol, err := col("atm_id", "atm")
	if err != nil {
		return nil, err
	}
	dateCol, err := col("date", "ds")
	if err != nil {
		return nil, err
	}
	demandCol, err := col("demand", "withdrawals", "y")
	if err != nil {
		return nil, err
	}

	var out []model.HistoricalRecord
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		d, err := model.ParseDate(strings.TrimSpace(row[dateCol]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[demandCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, model.HistoricalRecord{ATMID: strings.TrimSpace(row[atmCol]), Date: d, Demand: v})
	}
	return out, nil
}
