// Package dexcom imports continuous glucose monitor readings from the Dexcom
// Share service.
package dexcom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jwulff/guardian-go/internal/health"
)

// Dexcom Share API endpoints (US region)
const (
	BaseURL = "https://share2.dexcom.com/ShareWebServices/Services"
	AppID   = "d89443d2-327c-4a6f-89e5-496bbb0317db"
)

var timestampPattern = regexp.MustCompile(`Date\((\d+)(?:[+-]\d{4})?\)`)

// Client is an HTTP client for the Dexcom Share API.
type Client struct {
	Username   string
	Password   string
	BaseURL    string
	HTTPClient *http.Client
	sessionID  string
}

// NewClient creates a new Dexcom API client.
func NewClient(username, password string) *Client {
	return &Client{
		Username: username,
		Password: password,
		BaseURL:  BaseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Reading represents a glucose reading from Dexcom.
type Reading struct {
	WT    string // Timestamp like "Date(1234567890000)"
	ST    string // System time
	DT    string // Display time
	Value int    // Glucose in mg/dL
	Trend string // Trend direction
}

// trendArrows maps Dexcom trend names to text arrows.
var trendArrows = map[string]string{
	"doubleup":      "^^",
	"singleup":      "^",
	"fortyfiveup":   "/",
	"flat":          "-",
	"fortyfivedown": "\\",
	"singledown":    "v",
	"doubledown":    "vv",
}

// Arrow converts the trend to a display arrow.
func (r Reading) Arrow() string {
	if arrow, ok := trendArrows[strings.ToLower(r.Trend)]; ok {
		return arrow
	}
	return "?"
}

// Time returns the reading instant, or the zero time if WT is malformed.
func (r Reading) Time() time.Time {
	ms := ParseTimestamp(r.WT)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Glucose converts the reading to a log entry. CGM values carry no meal
// context, so the timing is always TimingOther.
func (r Reading) Glucose() (health.Glucose, error) {
	g := health.Glucose{
		Timestamp: r.Time(),
		Value:     float64(r.Value),
		Timing:    health.TimingOther,
	}
	if err := health.ValidateReading(g); err != nil {
		return health.Glucose{}, fmt.Errorf("dexcom reading %q: %w", r.WT, err)
	}
	return g, nil
}

func (c *Client) post(ctx context.Context, url string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// StatusError is a non-200 response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dexcom returned status %d: %s", e.Code, e.Body)
}

// authenticate gets a session ID from Dexcom.
func (c *Client) authenticate(ctx context.Context) error {
	var accountID string
	err := c.post(ctx, c.BaseURL+"/General/AuthenticatePublisherAccount", map[string]string{
		"accountName":   c.Username,
		"password":      c.Password,
		"applicationId": AppID,
	}, &accountID)
	if err != nil {
		return fmt.Errorf("auth failed: %w", err)
	}

	err = c.post(ctx, c.BaseURL+"/General/LoginPublisherAccountById", map[string]string{
		"accountId":     accountID,
		"password":      c.Password,
		"applicationId": AppID,
	}, &c.sessionID)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return nil
}

// FetchReadings fetches up to maxCount readings from the last minutes.
// An expired session is renewed once.
func (c *Client) FetchReadings(ctx context.Context, maxCount, minutes int) ([]Reading, error) {
	renewed := false
	if c.sessionID == "" {
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
		renewed = true
	}

	for {
		url := fmt.Sprintf("%s/Publisher/ReadPublisherLatestGlucoseValues?sessionId=%s&minutes=%d&maxCount=%d",
			c.BaseURL, c.sessionID, minutes, maxCount)

		var readings []Reading
		err := c.post(ctx, url, nil, &readings)
		if err == nil {
			return readings, nil
		}
		if _, ok := err.(*StatusError); !ok || renewed {
			return nil, fmt.Errorf("fetch failed: %w", err)
		}

		c.sessionID = ""
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
		renewed = true
	}
}

// FetchGlucose fetches readings and converts the valid ones.
func (c *Client) FetchGlucose(ctx context.Context, maxCount, minutes int) ([]health.Glucose, error) {
	rs, err := c.FetchReadings(ctx, maxCount, minutes)
	if err != nil {
		return nil, err
	}
	return ToGlucose(rs), nil
}

// ToGlucose converts readings, dropping any that fail validation.
func ToGlucose(rs []Reading) []health.Glucose {
	out := make([]health.Glucose, 0, len(rs))
	for _, r := range rs {
		g, err := r.Glucose()
		if err != nil {
			continue
		}
		out = append(out, g)
	}
	return out
}

// ParseTimestamp parses a Dexcom timestamp "Date(1234567890000)" to Unix milliseconds.
func ParseTimestamp(wt string) int64 {
	matches := timestampPattern.FindStringSubmatch(wt)
	if len(matches) < 2 {
		return 0
	}
	ms, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0
	}
	return ms
}
