// Package layouts holds the page shell shared by every full-page render.
package layouts

import (
	cmp "maragu.dev/gomponents"
	gc "maragu.dev/gomponents/components"
	g "maragu.dev/gomponents/html"

	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/view"
	"github.com/nfrund/weatherdash/web/templates/components"
)

const (
	htmxScript   = "https://unpkg.com/htmx.org@1.9.12"
	htmxWSScript = "https://unpkg.com/htmx.org@1.9.12/dist/ext/ws.js"
)

// CalculateTitle builds the document title.
func CalculateTitle(title string) string {
	if title != "" {
		return title + " - Weather Dashboard"
	}
	return "Weather Dashboard"
}

// Base wraps body in the HTML document. The header is shown when user is set.
func Base(title string, user *domain.User, flashes view.FlashData, body ...cmp.Node) cmp.Node {
	return gc.HTML5(gc.HTML5Props{
		Title:    CalculateTitle(title),
		Language: "en",
		Head: []cmp.Node{
			g.Meta(g.Name("viewport"), g.Content("width=device-width, initial-scale=1")),
			g.Link(g.Rel("stylesheet"), g.Href("/static/app.css")),
			g.Script(g.Src(htmxScript)),
			g.Script(g.Src(htmxWSScript)),
		},
		Body: []cmp.Node{
			g.Class("min-h-screen bg-slate-50"),
			cmp.Iff(user != nil, func() cmp.Node { return components.Header(user) }),
			g.Main(
				g.Class("container"),
				components.Flashes(flashes),
				cmp.Group(body),
			),
			g.Div(g.ID("toasts"), g.Class("toasts")),
		},
	})
}
