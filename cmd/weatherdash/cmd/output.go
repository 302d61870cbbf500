package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/nfrund/weatherdash/internal/domain"
)

// recordsSnapshot is the JSON shape of one printed list.
type recordsSnapshot struct {
	City    string                 `json:"city"`
	Version uint64                 `json:"version,omitempty"`
	Cause   string                 `json:"cause,omitempty"`
	Records []domain.WeatherRecord `json:"records"`
}

func printRecords(w io.Writer, format string, snap recordsSnapshot) error {
	if format == "json" {
		if snap.Records == nil {
			snap.Records = []domain.WeatherRecord{}
		}
		return json.NewEncoder(w).Encode(snap)
	}

	if snap.Cause != "" {
		fmt.Fprintf(w, "== %s: %d readings (v%d, %s)\n", snap.City, len(snap.Records), snap.Version, snap.Cause)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tCITY\tTEMP\tFEELS\tHUMIDITY\tPRESSURE\tDESCRIPTION")
	if len(snap.Records) == 0 {
		fmt.Fprintln(tw, "No readings found")
	}
	for _, r := range snap.Records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Timestamp,
			r.CityName,
			num(r.Temperature),
			num(r.FeelsLike),
			num(r.Humidity),
			num(r.Pressure),
			truncateString(r.Description, 40))
	}
	return tw.Flush()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncateString(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
