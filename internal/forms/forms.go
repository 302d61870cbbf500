// Package forms holds the schemas of the login, signup and record forms and
// turns valid submissions into backend requests. Nothing here talks to the
// network or touches a dashboard's list.
package forms

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nfrund/weatherdash/internal/backend"
	"github.com/nfrund/weatherdash/internal/domain"
)

// ErrUnknownCity is wrapped by validation errors for a city missing from the
// static table.
var ErrUnknownCity = domain.ErrUnknownCity

// LoginForm is shared by the login and signup pages.
type LoginForm struct {
	Username string `form:"username" validate:"required,min=2,max=50"`
	Password string `form:"password" validate:"required,min=8,max=50"`
}

// WeatherForm is shared by the create and edit forms. Readings stay strings
// and are sent as typed; the backend coerces them.
type WeatherForm struct {
	CityName    string `form:"city_name" validate:"required"`
	Temperature string `form:"temperature" validate:"required,numeric"`
	FeelsLike   string `form:"feels_like" validate:"required,numeric"`
	Humidity    string `form:"humidity" validate:"required,numeric"`
	Pressure    string `form:"pressure" validate:"required,numeric"`
	Description string `form:"description" validate:"max=200"`
}

// ValidationError maps form field names to the message shown beside them.
type ValidationError struct {
	Fields map[string]string
	cause  error
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return e.cause }

// FieldErrors returns the per-field messages of err, or nil when err is not
// a validation error.
func FieldErrors(err error) map[string]string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks a form struct and returns a *ValidationError on failure.
func Validate(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = fieldError(fe)
		}
	}
	return &ValidationError{Fields: fields}
}

// fieldError converts a single FieldError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	label := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "numeric":
		return label + " must be a number"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", label, fe.Tag())
	}
}

// Normalize trims the login fields.
func (f LoginForm) Normalize() LoginForm {
	f.Username = strings.TrimSpace(f.Username)
	return f
}

// Credentials validates the form and returns the backend body.
func (f LoginForm) Credentials() (backend.Credentials, error) {
	f = f.Normalize()
	if err := Validate(f); err != nil {
		return backend.Credentials{}, err
	}
	return backend.Credentials{Username: f.Username, Password: f.Password}, nil
}

var cityCaser = cases.Title(language.English)

// Normalize trims every field and title-cases the city so "new york"
// matches the table entry "New York".
func (f WeatherForm) Normalize() WeatherForm {
	f.CityName = cityCaser.String(strings.Join(strings.Fields(f.CityName), " "))
	f.Temperature = strings.TrimSpace(f.Temperature)
	f.FeelsLike = strings.TrimSpace(f.FeelsLike)
	f.Humidity = strings.TrimSpace(f.Humidity)
	f.Pressure = strings.TrimSpace(f.Pressure)
	f.Description = strings.TrimSpace(f.Description)
	return f
}

// CreatePayload validates the form and resolves the city's coordinates.
func (f WeatherForm) CreatePayload() (backend.CreateRecordRequest, error) {
	f = f.Normalize()
	if err := Validate(f); err != nil {
		return backend.CreateRecordRequest{}, err
	}

	city, ok := domain.LookupCity(f.CityName)
	if !ok {
		return backend.CreateRecordRequest{}, &ValidationError{
			Fields: map[string]string{"city_name": fmt.Sprintf("%q is not a known city", f.CityName)},
			cause:  ErrUnknownCity,
		}
	}

	return backend.CreateRecordRequest{
		CityName:    city.Name,
		Temperature: f.Temperature,
		FeelsLike:   f.FeelsLike,
		Humidity:    f.Humidity,
		Pressure:    f.Pressure,
		Description: f.Description,
		Latitude:    city.Latitude,
		Longitude:   city.Longitude,
	}, nil
}

// EditPayload is CreatePayload plus the id of the record being edited.
func (f WeatherForm) EditPayload(id int) (backend.EditRecordRequest, error) {
	if id <= 0 {
		return backend.EditRecordRequest{}, &ValidationError{Fields: map[string]string{"id": "invalid record id"}}
	}
	body, err := f.CreatePayload()
	if err != nil {
		return backend.EditRecordRequest{}, err
	}
	return backend.EditRecordRequest{ID: id, CreateRecordRequest: body}, nil
}

// RecordID parses the id of a record to delete or edit.
func RecordID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, &ValidationError{Fields: map[string]string{"id": "invalid record id"}}
	}
	return id, nil
}

// FromRecord prefills the edit form with a record's current values.
func FromRecord(r domain.WeatherRecord) WeatherForm {
	return WeatherForm{
		CityName:    r.CityName,
		Temperature: formatFloat(r.Temperature),
		FeelsLike:   formatFloat(r.FeelsLike),
		Humidity:    formatFloat(r.Humidity),
		Pressure:    formatFloat(r.Pressure),
		Description: r.Description,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
