package components

import (
	"strconv"
	"time"

	cmp "maragu.dev/gomponents"
	hx "maragu.dev/gomponents-htmx"
	g "maragu.dev/gomponents/html"

	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/forms"
)

// DateTimeLocal is the layout of datetime-local inputs.
const DateTimeLocal = "2006-01-02T15:04"

// RecordSavedEvent is sent as HX-Trigger after a successful create.
const RecordSavedEvent = "record-saved"

// Field is a labelled text input with its validation message.
func Field(name, label, value, errMsg string, extra ...cmp.Node) cmp.Node {
	return g.Div(
		g.Class("field"),
		g.Label(g.For(name), cmp.Text(label)),
		g.Input(g.ID(name), g.Name(name), g.Type("text"), g.Value(value), cmp.Group(extra)),
		cmp.If(errMsg != "", g.P(g.Class("field-error"), cmp.Text(errMsg))),
	)
}

func citySelect(name, selected, errMsg string, extra ...cmp.Node) cmp.Node {
	return g.Div(
		g.Class("field"),
		g.Label(g.For(name), cmp.Text("City")),
		g.Select(
			g.ID(name), g.Name(name), cmp.Group(extra),
			cmp.Map(domain.CityNames(), func(city string) cmp.Node {
				return g.Option(g.Value(city), cmp.If(city == selected, g.Selected()), cmp.Text(city))
			}),
		),
		cmp.If(errMsg != "", g.P(g.Class("field-error"), cmp.Text(errMsg))),
	)
}

// FilterBar changes the dashboard's city and time window.
func FilterBar(mountID string, f domain.Filter) cmp.Node {
	return g.Form(
		g.ID("filters"),
		g.Class("filters"),
		hx.Get("/dashboard/records"),
		hx.Trigger("change"),
		hx.Target("#records-region"),
		hx.Swap("outerHTML"),
		g.Input(g.Type("hidden"), g.Name("mount"), g.Value(mountID)),
		citySelect("city", f.City, ""),
		g.Div(g.Class("field"),
			g.Label(g.For("start"), cmp.Text("From")),
			g.Input(g.ID("start"), g.Name("start"), g.Type("datetime-local"), g.Value(formatLocal(f.Start))),
		),
		g.Div(g.Class("field"),
			g.Label(g.For("end"), cmp.Text("To")),
			g.Input(g.ID("end"), g.Name("end"), g.Type("datetime-local"), g.Value(formatLocal(f.End))),
		),
	)
}

func formatLocal(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(DateTimeLocal)
}

func weatherFields(f forms.WeatherForm, errs map[string]string) cmp.Node {
	numeric := cmp.Attr("inputmode", "decimal")
	return cmp.Group{
		citySelect("city_name", f.CityName, errs["city_name"]),
		Field("temperature", "Temperature (°C)", f.Temperature, errs["temperature"], numeric),
		Field("feels_like", "Feels like (°C)", f.FeelsLike, errs["feels_like"], numeric),
		Field("humidity", "Humidity (%)", f.Humidity, errs["humidity"], numeric),
		Field("pressure", "Pressure (hPa)", f.Pressure, errs["pressure"], numeric),
		Field("description", "Description", f.Description, errs["description"]),
	}
}

// CreateDialog is the modal holding the create form. It closes itself when
// the server answers with RecordSavedEvent.
func CreateDialog(f forms.WeatherForm, errs map[string]string) cmp.Node {
	return g.Div(
		g.Button(
			g.Type("button"),
			g.Class("primary"),
			cmp.Attr("onclick", "document.getElementById('create-dialog').showModal()"),
			cmp.Text("Add reading"),
		),
		cmp.El("dialog",
			g.ID("create-dialog"),
			cmp.Attr("hx-on:"+RecordSavedEvent, "this.close()"),
			g.H2(cmp.Text("New reading")),
			CreateForm(f, errs),
			g.Button(g.Type("button"), cmp.Attr("onclick", "this.closest('dialog').close()"), cmp.Text("Cancel")),
		),
	)
}

// CreateForm posts a new record and is replaced by the server's answer.
func CreateForm(f forms.WeatherForm, errs map[string]string) cmp.Node {
	return g.Form(
		g.ID("create-form"),
		hx.Post("/weather"),
		hx.Target("this"),
		hx.Swap("outerHTML"),
		weatherFields(f, errs),
		g.Button(g.Type("submit"), g.Class("primary"), cmp.Text("Save")),
	)
}

// EditPanel edits or deletes one record. Opening it is purely local.
func EditPanel(id int, f forms.WeatherForm, errs map[string]string) cmp.Node {
	recordURL := "/weather/" + strconv.Itoa(id)
	return g.Aside(
		g.ID("edit-panel"),
		g.Class("edit-panel open"),
		g.H2(cmp.Textf("Edit reading #%d", id)),
		g.Form(
			hx.Post(recordURL),
			hx.Target("#edit-panel"),
			hx.Swap("outerHTML"),
			weatherFields(f, errs),
			cmp.If(errs["id"] != "", g.P(g.Class("field-error"), cmp.Text(errs["id"]))),
			g.Button(g.Type("submit"), g.Class("primary"), cmp.Text("Save changes")),
		),
		g.Button(
			g.Type("button"),
			g.Class("danger"),
			hx.Post(recordURL+"/delete"),
			hx.Target("#edit-panel"),
			hx.Swap("outerHTML"),
			hx.Confirm("Delete this reading?"),
			cmp.Text("Delete"),
		),
		g.Button(
			g.Type("button"),
			cmp.Attr("onclick", "this.closest('aside').replaceChildren()"),
			cmp.Text("Close"),
		),
	)
}

// ClosedEditPanel is the empty placeholder the panel collapses to.
func ClosedEditPanel() cmp.Node {
	return g.Aside(g.ID("edit-panel"), g.Class("edit-panel"))
}
