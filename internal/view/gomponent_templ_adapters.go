// Package view holds rendering glue shared by handlers and templates: flash
// messages and the bridge that lets templ components sit in gomponents pages.
package view

import (
	"context"
	"io"

	"github.com/a-h/templ"
	"maragu.dev/gomponents"
)

// TemplToGomponentAdapter lets a templ.Component sit inside a gomponents tree.
type TemplToGomponentAdapter struct {
	Component templ.Component
	// Ctx is passed to the component; gomponents rendering carries none.
	Ctx context.Context
}

// Render implements gomponents.Node.
func (a *TemplToGomponentAdapter) Render(w io.Writer) error {
	ctx := a.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return a.Component.Render(ctx, w)
}

// AdaptTemplToGomponent wraps component as a gomponents.Node.
func AdaptTemplToGomponent(component templ.Component) gomponents.Node {
	return &TemplToGomponentAdapter{Component: component}
}
