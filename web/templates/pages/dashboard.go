package pages

import (
	cmp "maragu.dev/gomponents"
	hx "maragu.dev/gomponents-htmx"
	g "maragu.dev/gomponents/html"

	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/forms"
	"github.com/nfrund/weatherdash/internal/view"
	"github.com/nfrund/weatherdash/web/templates/components"
	"github.com/nfrund/weatherdash/web/templates/layouts"
)

// DashboardPage is the data of the dashboard.
type DashboardPage struct {
	User    *domain.User
	Flashes view.FlashData
	MountID string
	Filter  domain.Filter
	Records []domain.WeatherRecord
	Version uint64
}

// Dashboard renders the filters, charts, table and forms of one mount. The
// websocket connection it opens keeps the mount alive.
func Dashboard(p DashboardPage) cmp.Node {
	return layouts.Base("Dashboard", p.User, p.Flashes,
		g.Div(
			g.ID("dashboard"),
			hx.Ext("ws"),
			cmp.Attr("ws-connect", "/dashboard/ws?mount="+p.MountID),
			g.Div(
				g.Class("toolbar"),
				components.FilterBar(p.MountID, p.Filter),
				components.CreateDialog(forms.WeatherForm{CityName: p.Filter.City}, nil),
			),
			components.RecordsRegion(components.RegionData{MountID: p.MountID, Records: p.Records, Version: p.Version}, false),
			components.ClosedEditPanel(),
		),
	)
}

// Loading is shown while the session restore has not finished. It polls
// path until the guard can decide.
func Loading(path string) cmp.Node {
	return layouts.Base("Loading", nil, view.FlashData{},
		g.Div(
			g.Class("loading"),
			hx.Get(path),
			hx.Trigger("load delay:1s"),
			hx.Target("body"),
			hx.Swap("outerHTML"),
			cmp.Text("Loading..."),
		),
	)
}
