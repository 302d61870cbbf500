package components

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cmp "maragu.dev/gomponents"

	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/forms"
	"github.com/nfrund/weatherdash/internal/view"
)

func render(t *testing.T, n cmp.Node) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, n.Render(&buf))
	return buf.String()
}

func TestPoints(t *testing.T) {
	assert.Equal(t, "", Points(nil, 100, 50, 0))
	assert.Equal(t, "0.0,25.0", Points([]float64{7}, 100, 50, 0))
	assert.Equal(t, "0.0,50.0 50.0,0.0 100.0,25.0", Points([]float64{0, 10, 5}, 100, 50, 0))
	assert.Equal(t, "10.0,25.0 90.0,25.0", Points([]float64{3, 3}, 100, 50, 10))
}

func TestRecordsRegion(t *testing.T) {
	records := []domain.WeatherRecord{{ID: 4, CityName: "Tokyo", Temperature: 21.5, Timestamp: "2024-03-06T12:30:00Z"}}

	html := render(t, RecordsRegion(RegionData{MountID: "m1", Records: records, Version: 3}, true))
	assert.Contains(t, html, `id="records-region"`)
	assert.Contains(t, html, `hx-swap-oob="true"`)
	assert.Contains(t, html, `data-version="3"`)
	assert.Contains(t, html, `hx-get="/dashboard/records/4/edit?mount=m1"`)
	assert.Contains(t, html, "2024-03-06 12:30:00")
	assert.Contains(t, html, "21.5 °C")
	assert.Equal(t, 4, strings.Count(html, "<polyline"))

	empty := render(t, RecordsRegion(RegionData{MountID: "m1"}, false))
	assert.NotContains(t, empty, "hx-swap-oob")
	assert.Contains(t, empty, "No readings for this selection.")
}

func TestForms(t *testing.T) {
	html := render(t, EditPanel(9, forms.WeatherForm{CityName: "Tokyo", Temperature: "21.5"}, map[string]string{"humidity": "humidity is required"}))
	assert.Contains(t, html, `hx-post="/weather/9"`)
	assert.Contains(t, html, `hx-post="/weather/9/delete"`)
	assert.Contains(t, html, `<option value="Tokyo" selected>Tokyo</option>`)
	assert.Contains(t, html, "humidity is required")

	create := render(t, CreateDialog(forms.WeatherForm{}, nil))
	assert.Contains(t, create, `hx-on:record-saved="this.close()"`)
	assert.Contains(t, create, `id="create-form"`)
}

func TestToastEscapes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Toast("error", "<script>x</script>").Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), `hx-swap-oob="beforeend"`)
	assert.Contains(t, buf.String(), "&lt;script&gt;")
	assert.NotContains(t, buf.String(), "<script>")
}

func TestFlashesRenderAsToasts(t *testing.T) {
	html := render(t, Flashes(view.FlashData{
		Success: []string{"You have been logged out."},
		Error:   []string{"Invalid <credentials>"},
	}))
	assert.Contains(t, html, `id="flashes"`)
	assert.Contains(t, html, `class="toast toast-success"`)
	assert.Contains(t, html, `class="toast toast-error"`)
	assert.Contains(t, html, "Invalid &lt;credentials&gt;")
	assert.NotContains(t, html, "hx-swap-oob", "flashes are part of the page, not an out-of-band swap")

	assert.Nil(t, Flashes(view.FlashData{}))
}

func TestAvatar(t *testing.T) {
	assert.Contains(t, render(t, Avatar(&domain.User{Subject: "alice"})), ">A<")
	assert.Contains(t, render(t, Avatar(&domain.User{Subject: "alice", Avatar: "https://x/a.png"})), `src="https://x/a.png"`)
}
