package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kursadbilgin/site-notifier/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

type limiterStep struct {
	channel     domain.Channel
	advance     time.Duration
	wantAllowed bool
}

func TestRedisRateLimiterAllow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		limit     int
		overrides map[domain.Channel]int
		steps     []limiterStep
	}{
		{
			name:  "window fills then resets",
			limit: 2,
			steps: []limiterStep{
				{channel: domain.ChannelPush, wantAllowed: true},
				{channel: domain.ChannelPush, wantAllowed: true},
				{channel: domain.ChannelPush, wantAllowed: false},
				{channel: domain.ChannelPush, advance: time.Second, wantAllowed: true},
			},
		},
		{
			name:  "channels have separate windows",
			limit: 1,
			steps: []limiterStep{
				{channel: domain.ChannelPush, wantAllowed: true},
				{channel: domain.ChannelEmail, wantAllowed: true},
				{channel: domain.ChannelPush, wantAllowed: false},
				{channel: domain.ChannelEmail, wantAllowed: false},
			},
		},
		{
			name:      "email override raises its limit only",
			limit:     1,
			overrides: map[domain.Channel]int{domain.ChannelEmail: 3},
			steps: []limiterStep{
				{channel: domain.ChannelEmail, wantAllowed: true},
				{channel: domain.ChannelEmail, wantAllowed: true},
				{channel: domain.ChannelEmail, wantAllowed: true},
				{channel: domain.ChannelEmail, wantAllowed: false},
				{channel: domain.ChannelPush, wantAllowed: true},
				{channel: domain.ChannelPush, wantAllowed: false},
			},
		},
		{
			name:      "non-positive override falls back to the global limit",
			limit:     1,
			overrides: map[domain.Channel]int{domain.ChannelEmail: 0},
			steps: []limiterStep{
				{channel: domain.ChannelEmail, wantAllowed: true},
				{channel: domain.ChannelEmail, wantAllowed: false},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			limiter, err := NewRedisRateLimiter(newTestRedisClient(t), tt.limit, tt.overrides)
			if err != nil {
				t.Fatalf("NewRedisRateLimiter() error = %v", err)
			}
			now := time.Unix(1_700_000_000, 0)
			limiter.now = func() time.Time { return now }

			for i, step := range tt.steps {
				now = now.Add(step.advance)
				allowed, err := limiter.Allow(context.Background(), step.channel)
				if err != nil {
					t.Fatalf("step %d: Allow(%s) error = %v", i, step.channel, err)
				}
				if allowed != step.wantAllowed {
					t.Fatalf("step %d: Allow(%s) = %v, want %v", i, step.channel, allowed, step.wantAllowed)
				}
			}
		})
	}
}

func TestRedisRateLimiterWaitSleepsUntilNextWindow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_200, 0)
	var slept []time.Duration
	limiter, err := newRedisRateLimiter(
		newTestRedisClient(t),
		1,
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			if len(slept) == 3 {
				now = now.Add(time.Second)
			}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	if err := limiter.Wait(context.Background(), domain.ChannelPush); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	if len(slept) != 0 {
		t.Fatalf("first Wait() slept %d times, want 0", len(slept))
	}

	if err := limiter.Wait(context.Background(), domain.ChannelPush); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("slept %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("slept %v, want %v", slept, want)
		}
	}
}

func TestRedisRateLimiterWaitHonoursDeadline(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_300, 0)
	limiter, err := newRedisRateLimiter(newTestRedisClient(t), 1, func() time.Time { return now }, nil)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	if err := limiter.Wait(context.Background(), domain.ChannelEmail); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, domain.ChannelEmail); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestRedisRateLimiterErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisRateLimiter(nil, 10, nil); err == nil {
		t.Fatal("expected error for nil client")
	}

	limiter, err := NewRedisRateLimiter(newTestRedisClient(t), 10, nil)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}
	if _, err := limiter.Allow(context.Background(), domain.Channel("fax")); err == nil {
		t.Fatal("expected error for unknown channel")
	}
	if err := limiter.Wait(context.Background(), domain.Channel("fax")); err == nil {
		t.Fatal("expected Wait() to surface the channel error")
	}
}

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})
	return rdb
}
