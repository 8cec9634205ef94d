// Package exchange holds the per-venue adapters and their shared plumbing.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fundarb/internal/domain/fault"
)

// HTTPClient wraps an http.Client with JSON decoding and fault tagging.
type HTTPClient struct {
	client *http.Client
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// GetJSON fetches url (+params) and decodes the body into out.
func (c *HTTPClient) GetJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	endpoint := rawURL
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fault.Wrap(fault.KindInternal, err, "build request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return ClassifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fault.Wrap(fault.KindTransient, err, "read body")
	}
	if resp.StatusCode != http.StatusOK {
		return ClassifyStatus(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fault.Wrap(fault.KindInternal, err, "decode response")
	}
	return nil
}

// Do executes a prepared request and returns the raw body, tagging errors.
func (c *HTTPClient) Do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ClassifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.KindTransient, err, "read body")
	}
	if resp.StatusCode != http.StatusOK {
		return body, ClassifyStatus(resp.StatusCode, body)
	}
	return body, nil
}

// ClassifyTransport tags network-level failures. Timeouts and connection
// resets are transient.
func ClassifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.KindTransient, err, "request timed out")
	}
	return fault.Wrap(fault.KindTransient, err, "request failed")
}

// ClassifyStatus maps an HTTP status to the error taxonomy.
func ClassifyStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fault.New(fault.KindAuth, "http %d: %s", status, msg)
	case status == http.StatusNotFound:
		return fault.New(fault.KindNotSupported, "http %d: %s", status, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return fault.New(fault.KindTransient, "http %d: %s", status, msg)
	case status >= 400:
		return fault.New(fault.KindValidation, "http %d: %s", status, msg)
	default:
		return fault.New(fault.KindInternal, "http %d: %s", status, msg)
	}
}

// ParseFloat converts a venue string number; empty strings yield nil.
func ParseFloat(value string) *float64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &n
}

// ParseMillis converts an epoch-milliseconds string to UTC; zero and
// unparsable values yield nil.
func ParseMillis(value string) *time.Time {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// MillisToTime converts a numeric epoch-milliseconds value.
func MillisToTime(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// SecondsToTime converts a numeric epoch-seconds value.
func SecondsToTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// FormatQty renders a base-asset or contract quantity for a venue API.
func FormatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// WantedSet builds a membership set of canonical symbols; empty input means
// "no restriction".
func WantedSet(symbols []string) map[string]struct{} {
	if len(symbols) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	return set
}

// Wanted reports whether symbol passes the restriction set.
func Wanted(set map[string]struct{}, symbol string) bool {
	if set == nil {
		return true
	}
	_, ok := set[symbol]
	return ok
}

// ErrEmptyResult marks a venue returning zero rows; the provider treats it
// as a failure since it normally indicates throttling.
var ErrEmptyResult = fault.New(fault.KindTransient, "venue returned zero rows")

// SymbolNotFound builds the canonical not_supported error for a symbol.
func SymbolNotFound(exchange, symbol string) error {
	return fault.New(fault.KindNotSupported, "%s: symbol %q not available", exchange, symbol)
}
