package checkin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"autocheck/internal/profile"
	"autocheck/internal/services"
)

func testOptions(baseURL string) Options {
	return Options{
		BaseURL:         baseURL,
		CheckInPath:     "/punch/{class_id}",
		LoginPath:       "/login",
		MessageSelector: ".msg, title",
		SuccessMarkers:  []string{"签到成功", "success"},
		AlreadyMarkers:  []string{"已签到", "already"},
		Timeout:         2 * time.Second,
		RetryAttempts:   2,
	}
}

var (
	alice = profile.Account{Name: "alice", ClassID: "42", Cookie: "sid=old"}
	lab   = profile.Location{Name: "lab", Lat: "30.25", Lng: "120.16", Acc: "10"}
)

func TestAttemptSuccessSendsForm(t *testing.T) {
	var gotPath, gotCookie string
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCookie = r.Header.Get("Cookie")
		_ = r.ParseForm()
		gotForm = map[string]string{
			"class_id": r.PostFormValue("class_id"),
			"lat":      r.PostFormValue("lat"),
			"lng":      r.PostFormValue("lng"),
			"acc":      r.PostFormValue("acc"),
		}
		_, _ = w.Write([]byte(`<html><head><title>Punch</title></head><body><div class="msg"> 签到成功 </div></body></html>`))
	}))
	defer srv.Close()

	out := New(testOptions(srv.URL), nil, nil).Attempt(context.Background(), alice, lab)
	if !out.Succeeded() {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Detail != "签到成功" {
		t.Fatalf("unexpected detail %q", out.Detail)
	}
	if gotPath != "/punch/42" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotCookie != "sid=old" {
		t.Fatalf("unexpected cookie %q", gotCookie)
	}
	want := map[string]string{"class_id": "42", "lat": "30.25", "lng": "120.16", "acc": "10"}
	for k, v := range want {
		if gotForm[k] != v {
			t.Fatalf("form %s = %q, want %q", k, gotForm[k], v)
		}
	}
	if out.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", out.Attempts)
	}
}

func TestAttemptAlreadyCheckedInIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<div class="msg">您今天已签到</div>`))
	}))
	defer srv.Close()

	client := New(testOptions(srv.URL), nil, nil)
	for range 2 {
		out := client.Attempt(context.Background(), alice, lab)
		if !out.Succeeded() || out.Detail != DetailAlreadyCheckedIn {
			t.Fatalf("expected already-checked-in success, got %+v", out)
		}
	}
}

func TestAttemptJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"code": 0, "msg": "success"}`))
	}))
	defer srv.Close()

	out := New(testOptions(srv.URL), nil, nil).Attempt(context.Background(), alice, lab)
	if !out.Succeeded() {
		t.Fatalf("expected success, got %+v", out)
	}
}

func TestAttemptUnknownMessageIsRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`<div class="msg">不在签到范围内</div>`))
	}))
	defer srv.Close()

	out := New(testOptions(srv.URL), nil, nil).Attempt(context.Background(), alice, lab)
	if out.Succeeded() || out.Class != services.ClassRejected {
		t.Fatalf("expected rejection, got %+v", out)
	}
	if out.Detail != "不在签到范围内" {
		t.Fatalf("unexpected detail %q", out.Detail)
	}
	if calls.Load() != 1 {
		t.Fatalf("rejection must not be retried, got %d calls", calls.Load())
	}
}

func TestAttemptRetriesTransportFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.RetryAttempts = 2
	client := New(opts, nil, nil)
	var delays []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	client.opts.RetryBackoff = 100 * time.Millisecond

	out := client.Attempt(context.Background(), alice, lab)
	if out.Succeeded() || out.Class != services.ClassTransport {
		t.Fatalf("expected transport failure, got %+v", out)
	}
	if calls.Load() != 3 || out.Attempts != 3 {
		t.Fatalf("expected exactly 3 calls, got server=%d outcome=%d", calls.Load(), out.Attempts)
	}
	if len(delays) != 2 || delays[0] != 100*time.Millisecond || delays[1] != 200*time.Millisecond {
		t.Fatalf("expected linear backoff, got %v", delays)
	}
}

func TestAttemptRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`<div class="msg">success</div>`))
	}))
	defer srv.Close()

	out := New(testOptions(srv.URL), nil, nil).Attempt(context.Background(), alice, lab)
	if !out.Succeeded() || out.Attempts != 2 {
		t.Fatalf("expected success on second attempt, got %+v", out)
	}
}

func TestAttemptEmptyBodyIsRetried(t *testing.T) {
	for _, body := range []string{"", "<html><body>  </body></html>"} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(body))
		}))

		out := New(testOptions(srv.URL), nil, nil).Attempt(context.Background(), alice, lab)
		srv.Close()
		if out.Succeeded() || out.Class != services.ClassTransport {
			t.Fatalf("body %q: expected transport failure, got %+v", body, out)
		}
		if !strings.Contains(out.Detail, "empty response") {
			t.Fatalf("body %q: unexpected detail %q", body, out.Detail)
		}
		if calls.Load() != 3 || out.Attempts != 3 {
			t.Fatalf("body %q: expected 3 calls, got server=%d outcome=%d", body, calls.Load(), out.Attempts)
		}
	}
}

func TestAttemptForeignRedirectIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Redirect(w, r, "/maintenance", http.StatusFound)
	}))
	defer srv.Close()

	out := New(testOptions(srv.URL), nil, nil).Attempt(context.Background(), alice, lab)
	if out.Succeeded() || out.Class != services.ClassTransport {
		t.Fatalf("expected transport failure, got %+v", out)
	}
	if !strings.Contains(out.Detail, "unexpected redirect to /maintenance") {
		t.Fatalf("unexpected detail %q", out.Detail)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestAttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	opts := testOptions(srv.URL)
	opts.Timeout = 50 * time.Millisecond
	opts.RetryAttempts = 0
	out := New(opts, nil, nil).Attempt(context.Background(), alice, lab)
	if out.Succeeded() || out.Class != services.ClassTransport {
		t.Fatalf("expected timeout failure, got %+v", out)
	}
	if !strings.Contains(out.Detail, "timeout") {
		t.Fatalf("expected timeout detail, got %q", out.Detail)
	}
}

func TestAttemptInvalidCoordinatesMakeNoCalls(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client := New(testOptions(srv.URL), nil, nil)
	for _, loc := range []profile.Location{
		{Name: "bad", Lat: "north", Lng: "1"},
		{Name: "nan", Lat: "NaN", Lng: "1"},
		{Name: "inf", Lat: "1", Lng: "+Inf"},
		{Name: "acc", Lat: "1", Lng: "2", Acc: "wide"},
	} {
		out := client.Attempt(context.Background(), alice, loc)
		if out.Succeeded() || out.Class != services.ClassValidation {
			t.Fatalf("%s: expected validation failure, got %+v", loc.Name, out)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("expected zero network calls, got %d", calls.Load())
	}
}

func TestAttemptBlankAccuracyDefaults(t *testing.T) {
	var gotAcc string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAcc = r.PostFormValue("acc")
		_, _ = w.Write([]byte(`<div class="msg">success</div>`))
	}))
	defer srv.Close()

	loc := lab
	loc.Acc = ""
	out := New(testOptions(srv.URL), nil, nil).Attempt(context.Background(), alice, loc)
	if !out.Succeeded() || gotAcc != "0.0" {
		t.Fatalf("expected acc 0.0, got %q (%+v)", gotAcc, out)
	}
}

func TestAttemptAuthWithoutPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	out := New(testOptions(srv.URL), nil, nil).Attempt(context.Background(), alice, lab)
	if out.Succeeded() || out.Detail != DetailNoCredential {
		t.Fatalf("expected no-credential failure, got %+v", out)
	}
}

func TestAttemptReauthenticatesOnce(t *testing.T) {
	var logins, punches atomic.Int32
	var secondCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			logins.Add(1)
			if r.PostFormValue("username") != "alice" || r.PostFormValue("password") != "pw" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "fresh"})
			_, _ = w.Write([]byte("ok"))
		default:
			if punches.Add(1) == 1 {
				http.Redirect(w, r, "/login?next=punch", http.StatusFound)
				return
			}
			secondCookie = r.Header.Get("Cookie")
			_, _ = w.Write([]byte(`<div class="msg">签到成功</div>`))
		}
	}))
	defer srv.Close()

	account := alice
	account.Pwd = "pw"
	out := New(testOptions(srv.URL), nil, nil).Attempt(context.Background(), account, lab)
	if !out.Succeeded() || !out.Reauthed {
		t.Fatalf("expected success after re-auth, got %+v", out)
	}
	if logins.Load() != 1 || punches.Load() != 2 {
		t.Fatalf("expected 1 login and 2 punches, got %d/%d", logins.Load(), punches.Load())
	}
	if secondCookie != "sid=fresh" {
		t.Fatalf("expected refreshed cookie, got %q", secondCookie)
	}
	if account.Cookie != "sid=old" {
		t.Fatal("account must not be mutated")
	}
}

func TestAttemptSecondAuthSignalFails(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			logins.Add(1)
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "fresh"})
			return
		}
		_, _ = w.Write([]byte(`<form><input type="password" name="password"></form>`))
	}))
	defer srv.Close()

	account := alice
	account.Pwd = "pw"
	out := New(testOptions(srv.URL), nil, nil).Attempt(context.Background(), account, lab)
	if out.Succeeded() || out.Detail != DetailReauthFailed {
		t.Fatalf("expected re-auth failure, got %+v", out)
	}
	if logins.Load() != 1 {
		t.Fatalf("expected exactly one login, got %d", logins.Load())
	}
}

func TestAttemptFailedLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	account := alice
	account.Pwd = "wrong"
	out := New(testOptions(srv.URL), nil, nil).Attempt(context.Background(), account, lab)
	if out.Succeeded() || out.Detail != DetailReauthFailed {
		t.Fatalf("expected re-auth failure, got %+v", out)
	}
}

func TestAttemptWithoutBaseURL(t *testing.T) {
	out := New(testOptions(""), nil, nil).Attempt(context.Background(), alice, lab)
	if out.Succeeded() || out.Class != services.ClassConfiguration {
		t.Fatalf("expected configuration failure, got %+v", out)
	}
}

func TestMergeCookies(t *testing.T) {
	got := mergeCookies("sid=old; lang=zh", []*http.Cookie{{Name: "sid", Value: "new"}, {Name: "tok", Value: "t"}})
	if got != "sid=new; lang=zh; tok=t" {
		t.Fatalf("unexpected merge %q", got)
	}
	if got := mergeCookies("", []*http.Cookie{{Name: "sid", Value: "a"}}); got != "sid=a" {
		t.Fatalf("unexpected merge %q", got)
	}
}
