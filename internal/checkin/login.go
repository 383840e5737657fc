package checkin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"autocheck/internal/profile"
	"autocheck/internal/services"
)

// login exchanges the account password for a fresh session and returns the
// merged cookie header. The account itself is not modified.
func (c *Client) login(ctx context.Context, account profile.Account, previous string) (string, error) {
	form := url.Values{}
	form.Set("username", account.Name)
	form.Set("password", account.Pwd)
	form.Set("class_id", account.ClassID)

	resp, _, err := c.post(ctx, c.opts.BaseURL+c.opts.LoginPath, form, "")
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", services.Wrap(services.ErrAuth, "checkin", "login", fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}
	fresh := resp.Cookies()
	if len(fresh) == 0 {
		return "", services.Wrap(services.ErrAuth, "checkin", "login", "no session cookie issued", nil)
	}
	return mergeCookies(previous, fresh), nil
}

// mergeCookies overlays fresh cookies onto a Cookie header value.
func mergeCookies(header string, fresh []*http.Cookie) string {
	var order []string
	values := make(map[string]string)
	if existing, err := http.ParseCookie(strings.TrimSpace(header)); err == nil {
		for _, cookie := range existing {
			if _, seen := values[cookie.Name]; !seen {
				order = append(order, cookie.Name)
			}
			values[cookie.Name] = cookie.Value
		}
	}
	for _, cookie := range fresh {
		if _, seen := values[cookie.Name]; !seen {
			order = append(order, cookie.Name)
		}
		values[cookie.Name] = cookie.Value
	}
	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, name+"="+values[name])
	}
	return strings.Join(parts, "; ")
}
