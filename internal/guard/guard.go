// Package guard decides whether a route renders or redirects based on the
// current auth state.
package guard

import "github.com/nfrund/weatherdash/internal/auth"

// Route paths the guards redirect to.
const (
	LoginPath     = "/"
	DashboardPath = "/dashboard"
)

// Outcome is what a guard decided to do with a navigation.
type Outcome int

const (
	// Render lets the nested content render.
	Render Outcome = iota
	// Redirect sends the client to Decision.Target.
	Redirect
	// Loading renders a placeholder; no decision has been made yet.
	Loading
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	case Loading:
		return "loading"
	default:
		return "unknown"
	}
}

// Decision is the result of evaluating a guard.
type Decision struct {
	Outcome Outcome
	Target  string
}

// Public gates pages only anonymous users should see. A present user is
// redirected to the dashboard whether or not loading has finished.
func Public(s auth.State) Decision {
	if s.Authenticated() {
		return Decision{Outcome: Redirect, Target: DashboardPath}
	}
	return Decision{Outcome: Render}
}

// Private gates pages that need a user. While loading it decides nothing.
func Private(s auth.State) Decision {
	if s.Loading {
		return Decision{Outcome: Loading}
	}
	if !s.Authenticated() {
		return Decision{Outcome: Redirect, Target: LoginPath}
	}
	return Decision{Outcome: Render}
}
