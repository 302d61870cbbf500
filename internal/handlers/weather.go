package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/weatherdash/internal/auth"
	"github.com/nfrund/weatherdash/internal/backend"
	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/forms"
	"github.com/nfrund/weatherdash/internal/livesync"
	"github.com/nfrund/weatherdash/internal/metrics"
	"github.com/nfrund/weatherdash/web/templates/components"
)

// RecordWriter performs record mutations on the backend.
type RecordWriter interface {
	CreateRecord(ctx context.Context, token string, req backend.CreateRecordRequest) (domain.WeatherRecord, error)
	EditRecord(ctx context.Context, token string, req backend.EditRecordRequest) (domain.WeatherRecord, error)
	DeleteRecord(ctx context.Context, token string, id int) error
}

// WeatherHandler serves the create, edit and delete forms. It never touches
// a dashboard's list: the change arrives through the event stream.
type WeatherHandler struct {
	api RecordWriter
}

// NewWeatherHandler creates a new WeatherHandler.
func NewWeatherHandler(api RecordWriter) *WeatherHandler {
	return &WeatherHandler{api: api}
}

// Create handles POST /weather from the create dialog.
func (h *WeatherHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var form forms.WeatherForm
	if err := c.Bind(&form); err != nil {
		return h.rejected(c, "create", components.CreateForm(form, nil), "Invalid form submission.")
	}

	body, err := form.CreatePayload()
	if err != nil {
		metrics.FormSubmissionsTotal.WithLabelValues("create", "invalid").Inc()
		return render(c, http.StatusOK, components.CreateForm(form.Normalize(), forms.FieldErrors(err)))
	}

	if _, err := h.api.CreateRecord(ctx, auth.FromContext(ctx).Token(ctx), body); err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			return expireSession(c)
		}
		logger(c).Warn("Create record failed", "city", body.CityName, "error", err)
		return h.rejected(c, "create", components.CreateForm(form.Normalize(), nil), backend.Message(err))
	}

	metrics.FormSubmissionsTotal.WithLabelValues("create", "ok").Inc()
	c.Response().Header().Set("HX-Trigger", components.RecordSavedEvent)
	return render(c, http.StatusOK, []any{
		components.CreateForm(forms.WeatherForm{CityName: body.CityName}, nil),
		components.Toast(string(livesync.LevelSuccess), "Reading saved."),
	})
}

// Edit handles POST /weather/:id from the edit panel.
func (h *WeatherHandler) Edit(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := forms.RecordID(c.Param("id"))
	if err != nil {
		return h.rejected(c, "edit", components.ClosedEditPanel(), "That reading does not exist.")
	}

	var form forms.WeatherForm
	if err := c.Bind(&form); err != nil {
		return h.rejected(c, "edit", components.EditPanel(id, form, nil), "Invalid form submission.")
	}

	body, err := form.EditPayload(id)
	if err != nil {
		metrics.FormSubmissionsTotal.WithLabelValues("edit", "invalid").Inc()
		return render(c, http.StatusOK, components.EditPanel(id, form.Normalize(), forms.FieldErrors(err)))
	}

	if _, err := h.api.EditRecord(ctx, auth.FromContext(ctx).Token(ctx), body); err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			return expireSession(c)
		}
		logger(c).Warn("Edit record failed", "id", id, "error", err)
		return h.rejected(c, "edit", components.EditPanel(id, form.Normalize(), nil), backend.Message(err))
	}

	metrics.FormSubmissionsTotal.WithLabelValues("edit", "ok").Inc()
	return render(c, http.StatusOK, []any{
		components.ClosedEditPanel(),
		components.Toast(string(livesync.LevelSuccess), "Reading updated."),
	})
}

// Delete handles POST /weather/:id/delete.
func (h *WeatherHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := forms.RecordID(c.Param("id"))
	if err != nil {
		return h.rejected(c, "delete", components.ClosedEditPanel(), "That reading does not exist.")
	}

	if err := h.api.DeleteRecord(ctx, auth.FromContext(ctx).Token(ctx), id); err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			return expireSession(c)
		}
		logger(c).Warn("Delete record failed", "id", id, "error", err)
		return h.rejected(c, "delete", components.ClosedEditPanel(), backend.Message(err))
	}

	metrics.FormSubmissionsTotal.WithLabelValues("delete", "ok").Inc()
	return render(c, http.StatusOK, []any{
		components.ClosedEditPanel(),
		components.Toast(string(livesync.LevelSuccess), "Reading deleted."),
	})
}

// rejected answers with the fragment to swap in plus an error toast.
func (h *WeatherHandler) rejected(c echo.Context, form string, fragment any, message string) error {
	metrics.FormSubmissionsTotal.WithLabelValues(form, "failed").Inc()
	return render(c, http.StatusOK, []any{
		fragment,
		components.Toast(string(livesync.LevelError), message),
	})
}
