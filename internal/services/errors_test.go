package services_test

import (
	"errors"
	"strings"
	"testing"

	"autocheck/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("connection refused")
	err := services.Wrap(services.ErrTransport, "checkin", "submit", "post failed", base)
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	for _, fragment := range []string{"checkin", "submit", "post failed"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in error string %q", fragment, err.Error())
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want services.Class
	}{
		{nil, services.ClassNone},
		{services.Wrap(services.ErrValidation, "checkin", "", "lng is not a number", nil), services.ClassValidation},
		{services.Wrap(services.ErrAuth, "checkin", "", "session expired", nil), services.ClassAuth},
		{services.Wrap(services.ErrRejected, "checkin", "", "window closed", nil), services.ClassRejected},
		{services.Wrap(services.ErrTimeout, "checkin", "", "deadline", nil), services.ClassTransport},
		{services.Wrap(services.ErrNotFound, "resolver", "", "account not found", nil), services.ClassResolution},
		{errors.New("boom"), services.ClassUnexpected},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestRetryableOnlyForTransport(t *testing.T) {
	if !services.Retryable(services.Wrap(services.ErrTimeout, "", "", "", nil)) {
		t.Fatal("timeouts should be retryable")
	}
	if services.Retryable(services.Wrap(services.ErrRejected, "", "", "", nil)) {
		t.Fatal("business rejections must not be retryable")
	}
}

func TestWrapDefaultsMarkerAndDetail(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransport) || !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("unexpected default wrap: %v", err)
	}
}
