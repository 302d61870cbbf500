// Package components holds the fragments pages are built from. Fragments
// that the server re-sends over HTMX or the websocket carry stable ids.
package components

import (
	cmp "maragu.dev/gomponents"
	g "maragu.dev/gomponents/html"

	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/view"
)

// Header shows the signed-in user and the logout link.
func Header(user *domain.User) cmp.Node {
	return g.Header(
		g.Class("app-header"),
		g.A(g.Href("/dashboard"), g.Class("brand"), cmp.Text("Weather Dashboard")),
		g.Div(
			g.Class("user"),
			Avatar(user),
			g.Span(g.Class("subject"), cmp.Text(user.Subject)),
			g.A(g.Href("/logout"), g.Class("logout"), cmp.Text("Log out")),
		),
	)
}

// Avatar renders the user's picture, or their initial when there is none.
func Avatar(user *domain.User) cmp.Node {
	if user.Avatar != "" {
		return g.Img(g.Class("avatar"), g.Src(user.Avatar), g.Alt(user.Subject))
	}
	return g.Span(g.Class("avatar avatar-initial"), cmp.Text(user.Initial()))
}

// Flashes renders one-shot messages queued by a redirect.
func Flashes(f view.FlashData) cmp.Node {
	if f.Empty() {
		return nil
	}
	return g.Div(
		g.ID("flashes"),
		cmp.Map(f.Success, func(msg string) cmp.Node {
			return view.AdaptTemplToGomponent(ToastItem("success", msg))
		}),
		cmp.Map(f.Error, func(msg string) cmp.Node {
			return view.AdaptTemplToGomponent(ToastItem("error", msg))
		}),
	)
}
