package components

import (
	"math"
	"strconv"
	"strings"

	cmp "maragu.dev/gomponents"
	g "maragu.dev/gomponents/html"

	"github.com/nfrund/weatherdash/internal/domain"
)

const (
	chartWidth  = 320
	chartHeight = 120
	chartPad    = 8
)

// Charts draws one line chart per reading. The wrapper carries the list
// version so a re-render always replaces the previous drawing.
func Charts(records []domain.WeatherRecord, version uint64) cmp.Node {
	series := func(pick func(domain.WeatherRecord) float64) []float64 {
		out := make([]float64, len(records))
		for i, r := range records {
			out[i] = pick(r)
		}
		return out
	}

	return g.Div(
		g.ID("charts"),
		g.Class("charts"),
		g.Data("version", strconv.FormatUint(version, 10)),
		LineChart("Temperature", "°C", series(func(r domain.WeatherRecord) float64 { return r.Temperature })),
		LineChart("Feels like", "°C", series(func(r domain.WeatherRecord) float64 { return r.FeelsLike })),
		LineChart("Humidity", "%", series(func(r domain.WeatherRecord) float64 { return r.Humidity })),
		LineChart("Pressure", "hPa", series(func(r domain.WeatherRecord) float64 { return r.Pressure })),
	)
}

// LineChart renders values as an SVG polyline scaled to the chart box.
func LineChart(title, unit string, values []float64) cmp.Node {
	return g.Figure(
		g.Class("chart"),
		g.FigCaption(cmp.Text(title+" ("+unit+")")),
		cmp.If(len(values) == 0, g.P(g.Class("chart-empty"), cmp.Text("No data"))),
		cmp.If(len(values) > 0, cmp.El("svg",
			cmp.Attr("viewBox", "0 0 "+strconv.Itoa(chartWidth)+" "+strconv.Itoa(chartHeight)),
			cmp.Attr("role", "img"),
			cmp.Attr("aria-label", title),
			cmp.El("polyline",
				cmp.Attr("fill", "none"),
				cmp.Attr("stroke", "currentColor"),
				cmp.Attr("stroke-width", "2"),
				cmp.Attr("points", Points(values, chartWidth, chartHeight, chartPad)),
			),
		)),
	)
}

// Points maps values onto an SVG coordinate box, left to right, with the
// largest value at the top. A single value or a flat series sits mid-height.
func Points(values []float64, width, height, pad int) string {
	if len(values) == 0 {
		return ""
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	innerW := float64(width - 2*pad)
	innerH := float64(height - 2*pad)
	step := 0.0
	if len(values) > 1 {
		step = innerW / float64(len(values)-1)
	}

	pts := make([]string, len(values))
	for i, v := range values {
		x := float64(pad) + step*float64(i)
		y := float64(pad) + innerH/2
		if hi > lo {
			y = float64(pad) + innerH*(hi-v)/(hi-lo)
		}
		pts[i] = strconv.FormatFloat(x, 'f', 1, 64) + "," + strconv.FormatFloat(y, 'f', 1, 64)
	}
	return strings.Join(pts, " ")
}
