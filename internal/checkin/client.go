package checkin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"autocheck/internal/logging"
	"autocheck/internal/profile"
	"autocheck/internal/services"
)

const maxBodyBytes = 1 << 20

// HTTPDoer describes the HTTP client used by the check-in client. It must not
// follow redirects, since a redirect to the login page is an auth signal.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client performs check-ins. It is safe for concurrent use.
type Client struct {
	opts   Options
	http   HTTPDoer
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New constructs a Client. A nil doer gets an http.Client that stops at the
// first redirect.
func New(opts Options, doer HTTPDoer, logger *slog.Logger) *Client {
	if doer == nil {
		doer = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if strings.TrimSpace(opts.MessageSelector) == "" {
		opts.MessageSelector = "title"
	}
	return &Client{
		opts:   opts,
		http:   doer,
		logger: logging.NewComponentLogger(logger, "checkin"),
		sleep:  sleepContext,
	}
}

type coordinates struct {
	lat, lng, acc string
}

// Attempt runs one check-in for account at location and always returns an
// outcome; failures are carried in the outcome, never as an error.
func (c *Client) Attempt(ctx context.Context, account profile.Account, location profile.Location) Outcome {
	out := Outcome{AccountName: account.Name, LocationName: location.Name, Status: StatusFailure}

	coords, err := parseCoordinates(location)
	if err != nil {
		out.Detail = errorDetail(err)
		out.Class = services.ClassValidation
		return out
	}
	if c.opts.BaseURL == "" {
		err := services.Wrap(services.ErrConfiguration, "checkin", "attempt", "checkin.base_url is not configured", nil)
		out.Detail = errorDetail(err)
		out.Class = services.ClassConfiguration
		return out
	}

	logger := logging.WithContext(ctx, c.logger).With(
		logging.String(logging.FieldAccount, account.Name),
		logging.String(logging.FieldLocation, location.Name),
	)

	cookie := account.Cookie
	for {
		result := c.submitWithRetry(ctx, logger, account, coords, cookie, &out.Attempts)
		switch result.verdict {
		case verdictSuccess:
			out.Status = StatusSuccess
			out.Detail = result.message
			if out.Detail == "" {
				out.Detail = DetailCheckedIn
			}
			out.Class = services.ClassNone
			return out
		case verdictAlready:
			out.Status = StatusSuccess
			out.Detail = DetailAlreadyCheckedIn
			out.Class = services.ClassNone
			return out
		case verdictRejected:
			out.Detail = result.message
			out.Class = services.ClassRejected
			return out
		case verdictTransport:
			out.Detail = errorDetail(result.err)
			out.Class = services.ClassTransport
			return out
		case verdictAuth:
			out.Class = services.ClassAuth
			if out.Reauthed {
				out.Detail = DetailReauthFailed
				return out
			}
			if strings.TrimSpace(account.Pwd) == "" {
				out.Detail = DetailNoCredential
				return out
			}
			fresh, err := c.login(ctx, account, cookie)
			out.Reauthed = true
			if err != nil {
				logger.Warn("re-authentication failed",
					logging.String(logging.FieldEventType, "checkin_reauth_failed"),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "update the account cookie or password"),
					logging.String(logging.FieldImpact, "task reported as failed"),
				)
				out.Detail = DetailReauthFailed
				return out
			}
			logger.Info("session refreshed", logging.String(logging.FieldEventType, "checkin_reauth"))
			cookie = fresh
		}
	}
}

// submitWithRetry submits once plus up to RetryAttempts more times while the
// failure is a transport failure. attempts counts every request sent.
func (c *Client) submitWithRetry(ctx context.Context, logger *slog.Logger, account profile.Account, coords coordinates, cookie string, attempts *int) classification {
	var result classification
	for try := 0; try <= c.opts.RetryAttempts; try++ {
		if try > 0 {
			delay := c.opts.RetryBackoff * time.Duration(try)
			logger.Debug("retrying check-in",
				logging.Int("attempt", try+1),
				logging.Duration("backoff", delay),
				logging.Error(result.err),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return classification{
					verdict: verdictTransport,
					err:     services.Wrap(services.ErrTransport, "checkin", "submit", "cancelled during backoff", err),
				}
			}
		}
		*attempts++
		result = c.submit(ctx, account, coords, cookie)
		logger.Debug("check-in attempt",
			logging.String(logging.FieldEventType, "checkin_attempt"),
			logging.Int("attempt", try+1),
			logging.String("verdict", result.verdict.String()),
		)
		if result.verdict != verdictTransport || ctx.Err() != nil {
			return result
		}
	}
	return result
}

func (c *Client) submit(ctx context.Context, account profile.Account, coords coordinates, cookie string) classification {
	form := url.Values{}
	form.Set("class_id", account.ClassID)
	form.Set("lat", coords.lat)
	form.Set("lng", coords.lng)
	form.Set("acc", coords.acc)

	path := strings.ReplaceAll(c.opts.CheckInPath, "{class_id}", url.PathEscape(account.ClassID))
	resp, body, err := c.post(ctx, c.opts.BaseURL+path, form, cookie)
	if err != nil {
		return classification{verdict: verdictTransport, err: err}
	}
	return c.classify(resp, body)
}

// post sends a form with a per-attempt timeout and returns the drained body.
func (c *Client) post(ctx context.Context, target string, form url.Values, cookie string) (*http.Response, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, services.Wrap(services.ErrConfiguration, "checkin", "build request", target, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if cookie = strings.TrimSpace(cookie); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, transportError(attemptCtx, c.opts.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, transportError(attemptCtx, c.opts.Timeout, err)
	}
	return resp, body, nil
}

func transportError(ctx context.Context, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "checkin", "submit", fmt.Sprintf("no response within %s", timeout), nil)
	}
	return services.Wrap(services.ErrTransport, "checkin", "submit", "request failed", err)
}

func parseCoordinates(location profile.Location) (coordinates, error) {
	acc := strings.TrimSpace(location.Acc)
	if acc == "" {
		acc = profile.DefaultAccuracy
	}
	fields := []struct {
		name  string
		value string
	}{
		{"lat", strings.TrimSpace(location.Lat)},
		{"lng", strings.TrimSpace(location.Lng)},
		{"acc", acc},
	}
	for _, field := range fields {
		v, err := strconv.ParseFloat(field.value, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return coordinates{}, services.Wrap(services.ErrValidation, "", "",
				fmt.Sprintf("invalid %s %q for location %q", field.name, field.value, location.Name), nil)
		}
	}
	return coordinates{lat: fields[0].value, lng: fields[1].value, acc: fields[2].value}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
