package checkin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"autocheck/internal/services"
)

type verdict int

const (
	verdictSuccess verdict = iota
	verdictAlready
	verdictRejected
	verdictAuth
	verdictTransport
)

func (v verdict) String() string {
	switch v {
	case verdictSuccess:
		return "success"
	case verdictAlready:
		return "already"
	case verdictRejected:
		return "rejected"
	case verdictAuth:
		return "auth"
	default:
		return "transport"
	}
}

type classification struct {
	verdict verdict
	message string
	err     error
}

const maxMessageLen = 160

// classify maps an HTTP response onto a verdict. body has already been read.
func (c *Client) classify(resp *http.Response, body []byte) classification {
	status := resp.StatusCode
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return classification{verdict: verdictAuth, message: fmt.Sprintf("HTTP %d", status)}
	case status >= 300 && status < 400:
		location := resp.Header.Get("Location")
		if c.isLoginRedirect(location) {
			return classification{verdict: verdictAuth, message: "redirected to login"}
		}
		return classification{
			verdict: verdictTransport,
			err:     services.Wrap(services.ErrTransport, "checkin", "submit", fmt.Sprintf("unexpected redirect to %s", location), nil),
		}
	case status >= 500 || status == http.StatusTooManyRequests:
		return classification{
			verdict: verdictTransport,
			err:     services.Wrap(services.ErrTransport, "checkin", "submit", fmt.Sprintf("HTTP %d", status), nil),
		}
	case status >= 400:
		return classification{verdict: verdictRejected, message: fmt.Sprintf("HTTP %d", status)}
	}

	if isJSON(resp.Header.Get("Content-Type")) {
		return c.classifyJSON(body)
	}
	return c.classifyHTML(body)
}

func (c *Client) classifyJSON(body []byte) classification {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return classification{
			verdict: verdictTransport,
			err:     services.Wrap(services.ErrTransport, "checkin", "decode", "unreadable JSON response", err),
		}
	}
	var texts []string
	for _, key := range []string{"msg", "message", "errmsg", "info", "data"} {
		if value, ok := payload[key].(string); ok && strings.TrimSpace(value) != "" {
			texts = append(texts, strings.TrimSpace(value))
		}
	}
	if code, ok := payload["code"].(float64); ok && (code == 401 || code == 403) {
		return classification{verdict: verdictAuth, message: firstOr(texts, "session rejected")}
	}
	return c.matchMarkers(texts)
}

func (c *Client) classifyHTML(body []byte) classification {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return classification{
			verdict: verdictTransport,
			err:     services.Wrap(services.ErrTransport, "checkin", "decode", "unreadable HTML response", err),
		}
	}
	if doc.Find(`input[type="password"]`).Length() > 0 {
		return classification{verdict: verdictAuth, message: "login page returned"}
	}

	var texts []string
	doc.Find(c.opts.MessageSelector).Each(func(_ int, sel *goquery.Selection) {
		if text := collapseSpace(sel.Text()); text != "" {
			texts = append(texts, text)
		}
	})
	if len(texts) == 0 {
		if text := collapseSpace(doc.Find("body").Text()); text != "" {
			texts = append(texts, text)
		}
	}
	return c.matchMarkers(texts)
}

// matchMarkers checks already-markers before success-markers so a page
// saying "already checked in" never reads as a first check-in.
func (c *Client) matchMarkers(texts []string) classification {
	if len(texts) == 0 {
		return classification{
			verdict: verdictTransport,
			err:     services.Wrap(services.ErrTransport, "checkin", "decode", "empty response", nil),
		}
	}
	for _, text := range texts {
		if containsAny(text, c.opts.AlreadyMarkers) {
			return classification{verdict: verdictAlready, message: truncate(text)}
		}
	}
	for _, text := range texts {
		if containsAny(text, c.opts.SuccessMarkers) {
			return classification{verdict: verdictSuccess, message: truncate(text)}
		}
	}
	return classification{verdict: verdictRejected, message: truncate(texts[0])}
}

func (c *Client) isLoginRedirect(location string) bool {
	location = strings.TrimSpace(location)
	if location == "" {
		return false
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return strings.Contains(location, c.opts.LoginPath)
	}
	return strings.HasPrefix(parsed.Path, c.opts.LoginPath) || strings.Contains(strings.ToLower(parsed.Path), "login")
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func containsAny(text string, markers []string) bool {
	lowered := strings.ToLower(text)
	for _, marker := range markers {
		if marker != "" && strings.Contains(lowered, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxMessageLen {
		return s
	}
	return string(runes[:maxMessageLen]) + "..."
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}

// errorDetail renders err for an outcome without repeating the marker text.
func errorDetail(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{
		services.ErrValidation,
		services.ErrAuth,
		services.ErrRejected,
		services.ErrTransport,
		services.ErrNotFound,
		services.ErrConfiguration,
	} {
		if errors.Is(err, marker) {
			if trimmed, ok := strings.CutPrefix(msg, marker.Error()+": "); ok {
				return trimmed
			}
		}
	}
	return msg
}
