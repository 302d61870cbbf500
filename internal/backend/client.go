// Package backend is the REST client for the weather API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nfrund/weatherdash/internal/domain"
)

// Credentials is the body of /login and /signup.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateRecordRequest is the body of POST /weather. Numeric readings are
// sent as the strings the user typed; the backend coerces them.
type CreateRecordRequest struct {
	CityName    string  `json:"city_name"`
	Temperature string  `json:"temperature"`
	FeelsLike   string  `json:"feels_like"`
	Humidity    string  `json:"humidity"`
	Pressure    string  `json:"pressure"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// EditRecordRequest is the body of PATCH /weather.
type EditRecordRequest struct {
	ID int `json:"id"`
	CreateRecordRequest
}

// Client talks to the weather backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for baseURL with its own http.Client.
func New(baseURL string, timeout time.Duration) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient creates a Client using hc for all requests.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	return c.exchange(ctx, "/login", creds)
}

// Signup creates an account and returns its access token.
func (c *Client) Signup(ctx context.Context, creds Credentials) (string, error) {
	return c.exchange(ctx, "/signup", creds)
}

func (c *Client) exchange(ctx context.Context, path string, creds Credentials) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, http.MethodPost, path, "", creds, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &APIError{Status: http.StatusOK, Message: "The server did not return an access token."}
	}
	return out.AccessToken, nil
}

// FetchRecords returns the records for f.City, bounded by f.Start/f.End when set.
func (c *Client) FetchRecords(ctx context.Context, token string, f domain.Filter) ([]domain.WeatherRecord, error) {
	path := "/weather/city/" + url.PathEscape(f.City)

	q := url.Values{}
	if f.Start != nil {
		q.Set("start_time", isoTime(*f.Start))
	}
	if f.End != nil {
		q.Set("end_time", isoTime(*f.End))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var records []domain.WeatherRecord
	if err := c.do(ctx, http.MethodGet, path, token, nil, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.WeatherRecord{}
	}
	return records, nil
}

// CreateRecord posts a new record.
func (c *Client) CreateRecord(ctx context.Context, token string, req CreateRecordRequest) (domain.WeatherRecord, error) {
	var rec domain.WeatherRecord
	err := c.do(ctx, http.MethodPost, "/weather", token, req, &rec)
	return rec, err
}

// EditRecord patches an existing record.
func (c *Client) EditRecord(ctx context.Context, token string, req EditRecordRequest) (domain.WeatherRecord, error) {
	var rec domain.WeatherRecord
	err := c.do(ctx, http.MethodPatch, "/weather", token, req, &rec)
	return rec, err
}

// DeleteRecord removes the record with id.
func (c *Client) DeleteRecord(ctx context.Context, token string, id int) error {
	return c.do(ctx, http.MethodDelete, "/weather/"+strconv.Itoa(id), token, nil, nil)
}

// isoTime matches the browser's Date.toISOString output.
func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &APIError{Status: res.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage pulls the message out of an error body. The auth routes use
// "message", the record routes use "msg".
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Msg != "" {
			return body.Msg
		}
	}
	return GenericFailure
}
