package components

import (
	"strconv"
	"time"

	cmp "maragu.dev/gomponents"
	hx "maragu.dev/gomponents-htmx"
	g "maragu.dev/gomponents/html"

	"github.com/nfrund/weatherdash/internal/domain"
)

// RegionData is what the records region renders.
type RegionData struct {
	MountID string
	Records []domain.WeatherRecord
	Version uint64
}

// RecordsRegion holds the charts and the table. Pushes re-send it with
// oob set so the websocket extension swaps it in place.
func RecordsRegion(d RegionData, oob bool) cmp.Node {
	return g.Section(
		g.ID("records-region"),
		cmp.If(oob, hx.SwapOOB("true")),
		Charts(d.Records, d.Version),
		RecordTable(d.MountID, d.Records),
	)
}

// RecordTable lists records; each row opens the edit panel.
func RecordTable(mountID string, records []domain.WeatherRecord) cmp.Node {
	if len(records) == 0 {
		return g.P(g.Class("empty"), cmp.Text("No readings for this selection."))
	}
	return g.Table(
		g.Class("records"),
		g.THead(g.Tr(
			g.Th(cmp.Text("Time")),
			g.Th(cmp.Text("City")),
			g.Th(cmp.Text("Temp")),
			g.Th(cmp.Text("Feels like")),
			g.Th(cmp.Text("Humidity")),
			g.Th(cmp.Text("Pressure")),
			g.Th(cmp.Text("Description")),
			g.Th(),
		)),
		g.TBody(cmp.Map(records, func(r domain.WeatherRecord) cmp.Node {
			return g.Tr(
				g.ID("record-"+strconv.Itoa(r.ID)),
				g.Td(cmp.Text(displayTime(r))),
				g.Td(cmp.Text(r.CityName)),
				g.Td(cmp.Textf("%.1f °C", r.Temperature)),
				g.Td(cmp.Textf("%.1f °C", r.FeelsLike)),
				g.Td(cmp.Textf("%.0f %%", r.Humidity)),
				g.Td(cmp.Textf("%.0f hPa", r.Pressure)),
				g.Td(cmp.Text(r.Description)),
				g.Td(g.Button(
					g.Type("button"),
					g.Class("link"),
					hx.Get("/dashboard/records/"+strconv.Itoa(r.ID)+"/edit?mount="+mountID),
					hx.Target("#edit-panel"),
					hx.Swap("outerHTML"),
					cmp.Text("Edit"),
				)),
			)
		})),
	)
}

func displayTime(r domain.WeatherRecord) string {
	if t, ok := r.Time(); ok {
		return t.UTC().Format(time.DateTime)
	}
	return r.Timestamp
}
