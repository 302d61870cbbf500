// Package pages holds the full-page views.
package pages

import (
	cmp "maragu.dev/gomponents"
	g "maragu.dev/gomponents/html"

	"github.com/nfrund/weatherdash/internal/forms"
	"github.com/nfrund/weatherdash/internal/view"
	"github.com/nfrund/weatherdash/web/templates/components"
	"github.com/nfrund/weatherdash/web/templates/layouts"
)

// AuthPage is the data of the login and signup pages.
type AuthPage struct {
	Form    forms.LoginForm
	Errors  map[string]string
	Flashes view.FlashData
}

// Login is the public landing page.
func Login(p AuthPage) cmp.Node {
	return authPage("Log in", "/login", "Log in", p,
		g.P(cmp.Text("No account yet? "), g.A(g.Href("/signup"), cmp.Text("Sign up"))))
}

// Signup mirrors Login and posts to /signup.
func Signup(p AuthPage) cmp.Node {
	return authPage("Sign up", "/signup", "Create account", p,
		g.P(cmp.Text("Already registered? "), g.A(g.Href("/"), cmp.Text("Log in"))))
}

func authPage(title, action, submit string, p AuthPage, footer cmp.Node) cmp.Node {
	return layouts.Base(title, nil, p.Flashes,
		g.Div(
			g.Class("card auth"),
			g.H1(cmp.Text(title)),
			g.Form(
				g.Method("post"),
				g.Action(action),
				components.Field("username", "Username", p.Form.Username, p.Errors["username"],
					cmp.Attr("autocomplete", "username"), g.Required()),
				g.Div(
					g.Class("field"),
					g.Label(g.For("password"), cmp.Text("Password")),
					g.Input(g.ID("password"), g.Name("password"), g.Type("password"), g.Required(),
						cmp.Attr("autocomplete", "current-password")),
					cmp.If(p.Errors["password"] != "", g.P(g.Class("field-error"), cmp.Text(p.Errors["password"]))),
				),
				g.Button(g.Type("submit"), g.Class("primary"), cmp.Text(submit)),
			),
			footer,
		),
	)
}
