// Package export renders dashboard data as CSV or JSON tables.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/kilianp07/atmcast/core/dashboard"
	"github.com/kilianp07/atmcast/core/fleet"
	"github.com/kilianp07/atmcast/core/model"
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
)

// ParseFormat accepts table, csv or json.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, FormatCSV, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// WriteJSON writes v to w as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteForecastCSV writes the forecast table. Historical fit values are
// included and marked. Every row carries status; an empty window still gets
// one row so the status is never lost.
func WriteForecastCSV(w io.Writer, win model.ForecastWindow, status dashboard.Status) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"atm_id", "date", "yhat", "yhat_lower", "yhat_upper", "historical", "status"}); err != nil {
		return err
	}
	for _, p := range win.Points {
		rec := []string{
			win.ATMID,
			p.Date.Format(model.DateLayout),
			formatFloat(p.Yhat),
			formatFloat(p.Lower),
			formatFloat(p.Upper),
			strconv.FormatBool(p.Historical),
			string(status),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	if len(win.Points) == 0 {
		if err := cw.Write([]string{win.ATMID, "", "", "", "", "", string(status)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteHeatmapCSV writes one row per ATM with a column per weekday. Cells
// without data are left empty.
func WriteHeatmapCSV(w io.Writer, h fleet.Heatmap) error {
	cw := csv.NewWriter(w)
	header := append([]string{"atm_id"}, h.Days[:]...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range h.Rows {
		rec := make([]string, 0, 8)
		rec = append(rec, r.ATMID)
		for _, c := range r.Cells {
			if c.HasData {
				rec = append(rec, formatFloat(c.Value))
			} else {
				rec = append(rec, "")
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSnapshotTable prints the status line, the future forecast rows and
// the verdict for terminal use.
func WriteSnapshotTable(w io.Writer, s dashboard.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ATM %s\tstatus: %s\n", s.ATMID, s.Status)
	if s.Diagnostic != "" {
		fmt.Fprintf(tw, "note:\t%s\n", s.Diagnostic)
	}
	fmt.Fprintln(tw, "DATE\tFORECAST\tLOWER\tUPPER")
	for _, p := range s.Window.Future() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Date.Format(model.DateLayout), formatFloat(p.Yhat), formatFloat(p.Lower), formatFloat(p.Upper))
	}
	if v := s.Verdict; v != nil {
		verdict := "SAFE"
		if v.IsAlert {
			verdict = "ALERT"
		}
		fmt.Fprintf(tw, "%s\tmax %s vs threshold %s\n", verdict, formatFloat(v.MaxPredicted), formatFloat(v.Threshold))
	}
	return tw.Flush()
}

// WriteSnapshot writes the snapshot in format f. CSV output carries the
// forecast table with the snapshot status on every row.
func WriteSnapshot(w io.Writer, s dashboard.Snapshot, f Format) error {
	switch f {
	case FormatCSV:
		win := s.Window
		if win.ATMID == "" {
			win.ATMID = s.ATMID
		}
		return WriteForecastCSV(w, win, s.Status)
	case FormatTable:
		return WriteSnapshotTable(w, s)
	}
	return WriteJSON(w, s)
}

// WriteHeatmap writes the heatmap snapshot in format f. The table format
// uses the CSV layout.
func WriteHeatmap(w io.Writer, h dashboard.HeatmapSnapshot, f Format) error {
	if f == FormatJSON {
		return WriteJSON(w, h)
	}
	return WriteHeatmapCSV(w, h.Heatmap)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
