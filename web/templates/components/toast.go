package components

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// ToastItem is one dismissable notification. Flashes and pushed toasts both
// render through it.
func ToastItem(level, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="toast toast-%s" role="status">%s<button type="button" class="toast-close" aria-label="Dismiss" onclick="this.parentElement.remove()">&times;</button></div>`,
			templ.EscapeString(level), templ.EscapeString(message))
		return err
	})
}

// Toast appends a ToastItem to the page's #toasts container. It is swapped
// out-of-band, so it can ride along with any response or push.
func Toast(level, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div id="toasts" hx-swap-oob="beforeend">`); err != nil {
			return err
		}
		if err := ToastItem(level, message).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}
