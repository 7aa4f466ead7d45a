package domain

import (
	"errors"
	"testing"
	"time"
)

func TestDecision_RetryAfterSecondsRoundsUp(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{-time.Second, 1},
		{time.Millisecond, 1},
		{time.Second, 1},
		{1001 * time.Millisecond, 2},
		{59997 * time.Millisecond, 60},
		{60 * time.Second, 60},
	}
	for _, c := range cases {
		d := Decision{RetryAfter: c.in}
		if got := d.RetryAfterSeconds(); got != c.want {
			t.Fatalf("RetryAfter=%s: expected %d, got %d", c.in, c.want, got)
		}
	}
}

func TestDecision_ErrOnlyWhenRejected(t *testing.T) {
	if err := (Decision{Allowed: true}).Err(); err != nil {
		t.Fatalf("expected nil error for admitted decision, got %v", err)
	}

	err := Decision{Allowed: false, Limit: 3, RetryAfter: 1500 * time.Millisecond}.Err()
	if !IsRateLimitExceeded(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	var rle *RateLimitExceededError
	if !errors.As(err, &rle) {
		t.Fatalf("expected *RateLimitExceededError")
	}
	if rle.Limit != 3 || rle.RetryAfterSeconds != 2 {
		t.Fatalf("unexpected error payload: %+v", rle)
	}
}

func TestRule_Valid(t *testing.T) {
	if (Rule{MaxRequests: 0, Window: time.Second}).Valid() {
		t.Fatalf("expected zero max to be invalid")
	}
	if (Rule{MaxRequests: 1}).Valid() {
		t.Fatalf("expected zero window to be invalid")
	}
	if !(Rule{MaxRequests: 1, Window: time.Second}).Valid() {
		t.Fatalf("expected positive rule to be valid")
	}
}
