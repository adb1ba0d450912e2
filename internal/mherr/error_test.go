package mherr

import (
	"errors"
	"testing"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"network", Network("op", "refused", nil), true},
		{"timeout", Timeout("op", "deadline", nil), true},
		{"service-unavailable", ServiceUnavailable("op", "5xx", nil), true},
		{"auth", Auth("op", "401"), false},
		{"not-found", NotFound("op", "missing"), false},
		{"invalid-parameter", InvalidParameter("op", "bad cidr"), false},
		{"plain-error", errors.New("boom"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Retryable(c.err); got != c.want {
				t.Fatalf("Retryable(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestFromStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{404, KindNotFound},
		{500, KindServiceUnavailable},
		{503, KindServiceUnavailable},
		{418, KindService},
	}
	for _, c := range cases {
		err := FromStatus("op", c.status, "body")
		var e *Error
		if !errors.As(err, &e) {
			t.Fatalf("expected *Error, got %T", err)
		}
		if e.Kind != c.kind {
			t.Fatalf("status %d: got kind %v, want %v", c.status, e.Kind, c.kind)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Network("op", "wrapping", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
}
