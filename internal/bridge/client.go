// Package bridge is the HTTP client for the local request-executor process
// ("the bridge") that performs search and checkout calls against the
// marketplace on the engine's behalf.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Error codes returned by the bridge. The engine interprets these; any other
// code is passed through to the caller unmodified.
const (
	CodeRateLimited       = "RATE_LIMITED"
	CodeForbidden         = "FORBIDDEN"
	CodeSessionExpired    = "SESSION_EXPIRED"
	CodeMissingCookie     = "MISSING_COOKIE"
	CodeBridgeUnreachable = "BRIDGE_UNREACHABLE"
	CodeChallenge         = "DATADOME_CHALLENGE"
	CodeParseError        = "PARSE_ERROR"
)

// Retry policy for rate-limited responses: up to 3 attempts with exponential
// backoff starting at 2 seconds. Any other failure returns immediately.
const (
	maxAttempts    = 3
	initialBackoff = 2 * time.Second
)

// Error is the structured failure shape shared by every bridge call.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("bridge: %s: %s", e.Code, e.Message)
}

// IsSessionExpired reports whether the error is one of the two codes that
// raise the session-expired signal.
func IsSessionExpired(err *Error) bool {
	return err != nil && (err.Code == CodeSessionExpired || err.Code == CodeMissingCookie)
}

// IsProxyPenalty reports whether the error should count as a strike against
// the proxy that carried the request.
func IsProxyPenalty(err *Error) bool {
	return err != nil && (err.Code == CodeForbidden || err.Code == CodeChallenge)
}

// SessionProvider supplies the current marketplace auth cookie. An empty
// cookie surfaces as MISSING_COOKIE without touching the bridge.
type SessionProvider interface {
	Cookie() string
}

// StaticSession is a fixed-cookie SessionProvider, used when the cookie
// comes from configuration.
type StaticSession string

// Cookie implements SessionProvider.
func (s StaticSession) Cookie() string { return string(s) }

// envelope is the bridge's uniform response wrapper:
// {ok: true, data: ...} or {ok: false, code, message}.
type envelope struct {
	OK      bool            `json:"ok"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client calls the bridge over loopback HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	session SessionProvider

	// sleep is the backoff wait, injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a bridge client. The 30 second timeout bounds every
// individual upstream call, including hung checkout steps.
func NewClient(baseURL string, session SessionProvider) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		session: session,
		sleep:   sleepCtx,
	}
}

// SetSleep overrides the backoff wait. Tests only.
func (c *Client) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	c.sleep = fn
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Health probes the bridge process.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil, false)
	return err
}

// Search fetches catalog items for one search endpoint URL through the
// given proxy (empty for direct).
func (c *Client) Search(ctx context.Context, endpointURL string, page int, proxyURL string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("url", endpointURL)
	q.Set("page", strconv.Itoa(page))
	if proxyURL != "" {
		q.Set("proxy", proxyURL)
	}
	return c.do(ctx, http.MethodGet, "/search?"+q.Encode(), nil, true)
}

// CheckoutBuild initiates the purchase transaction and returns the raw
// checkout state.
func (c *Client) CheckoutBuild(ctx context.Context, orderID int64, proxyURL string) (json.RawMessage, error) {
	body := map[string]any{"order_id": orderID}
	return c.do(ctx, http.MethodPost, "/checkout/build"+proxyQuery(proxyURL), body, true)
}

// CheckoutPut submits a checkout components payload (delivery, verification,
// payment) for an open purchase.
func (c *Client) CheckoutPut(ctx context.Context, purchaseID string, components map[string]any, proxyURL string) (json.RawMessage, error) {
	body := map[string]any{"components": components}
	path := "/checkout/" + url.PathEscape(purchaseID) + proxyQuery(proxyURL)
	return c.do(ctx, http.MethodPut, path, body, true)
}

// NearbyPickupPoints fetches drop-off candidates around the configured
// coordinates for a shipping order.
func (c *Client) NearbyPickupPoints(ctx context.Context, shippingOrderID int64, lat, lon float64, countryCode, proxyURL string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("shipping_order_id", strconv.FormatInt(shippingOrderID, 10))
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("country_code", countryCode)
	if proxyURL != "" {
		q.Set("proxy", proxyURL)
	}
	return c.do(ctx, http.MethodGet, "/checkout/nearby_pickup_points?"+q.Encode(), nil, true)
}

func proxyQuery(proxyURL string) string {
	if proxyURL == "" {
		return ""
	}
	return "?proxy=" + url.QueryEscape(proxyURL)
}

// do performs one bridge request with the bounded rate-limit retry loop.
// needsSession adds the session cookie header and short-circuits with
// MISSING_COOKIE when no cookie is available.
func (c *Client) do(ctx context.Context, method, path string, body any, needsSession bool) (json.RawMessage, error) {
	var cookie string
	if needsSession {
		cookie = c.session.Cookie()
		if cookie == "" {
			return nil, &Error{Code: CodeMissingCookie, Message: "no session cookie configured"}
		}
	}

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		data, err := c.once(ctx, method, path, body, cookie)
		if err == nil {
			return data, nil
		}

		bErr, ok := err.(*Error)
		if !ok || bErr.Code != CodeRateLimited || attempt >= maxAttempts {
			return nil, err
		}

		slog.Warn("bridge_rate_limited",
			"path", path,
			"attempt", attempt,
			"backoff", backoff,
		)
		if serr := c.sleep(ctx, backoff); serr != nil {
			return nil, &Error{Code: CodeRateLimited, Message: "rate limited; retry cancelled: " + serr.Error()}
		}
		backoff *= 2
	}
}

func (c *Client) once(ctx context.Context, method, path string, body any, cookie string) (json.RawMessage, error) {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Code: CodeParseError, Message: "encode request: " + err.Error()}
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, &Error{Code: CodeParseError, Message: "build request: " + err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.Header.Set("X-Session-Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// A transport failure to loopback means the bridge process is not
		// running; this is distinct from an upstream request failure and
		// must never penalize a proxy.
		return nil, &Error{
			Code:    CodeBridgeUnreachable,
			Message: fmt.Sprintf("bridge unreachable at %s, is the bridge process running? (%v)", c.baseURL, err),
		}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &Error{Code: CodeParseError, Message: "decode response: " + err.Error(), Status: resp.StatusCode}
	}

	if !env.OK {
		code := env.Code
		if code == "" {
			code = CodeParseError
		}
		return nil, &Error{Code: code, Message: env.Message, Status: resp.StatusCode}
	}

	return env.Data, nil
}
