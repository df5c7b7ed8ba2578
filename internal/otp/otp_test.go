package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"eventcert/internal/config"
)

type fakeRedis struct {
	values map[string]string
	counts map[string]int64
	ttls   map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			n++
		}
		delete(f.values, k)
		delete(f.counts, k)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

type recordingSender struct {
	codes map[string]string
}

func (s *recordingSender) SendCode(_ context.Context, mobile, code string) error {
	s.codes[mobile] = code
	return nil
}

func newTestStore(t *testing.T) (*Store, *fakeRedis, *recordingSender) {
	t.Helper()
	rdb := newFakeRedis()
	sender := &recordingSender{codes: map[string]string{}}
	s := NewStore(rdb, sender, config.OTPConfig{TTL: 5 * time.Minute, MaxPerHour: 3, CodeLength: 6}, nil)
	s.cost = bcrypt.MinCost
	s.now = func() time.Time { return time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC) }
	return s, rdb, sender
}

func TestIssueAndVerify(t *testing.T) {
	s, rdb, sender := newTestStore(t)
	ctx := context.Background()

	if err := s.Issue(ctx, "9990001111"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	code := sender.codes["9990001111"]
	if len(code) != 6 {
		t.Fatalf("expected 6 digit code, got %q", code)
	}
	stored := rdb.values[codeKeyPrefix+"9990001111"]
	if stored == "" || stored == code {
		t.Fatalf("code must be stored hashed, got %q", stored)
	}
	if rdb.ttls[codeKeyPrefix+"9990001111"] != 5*time.Minute {
		t.Fatalf("unexpected ttl %v", rdb.ttls[codeKeyPrefix+"9990001111"])
	}

	if err := s.Verify(ctx, "9990001111", "000000x"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for wrong code, got %v", err)
	}
	if err := s.Verify(ctx, "9990001111", code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := s.Verify(ctx, "9990001111", code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("code must be consumed after success, got %v", err)
	}
}

func TestIssueOverwritesPreviousCode(t *testing.T) {
	s, _, sender := newTestStore(t)
	ctx := context.Background()
	codes := []string{"111111", "222222"}
	s.generate = func(int) (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	_ = s.Issue(ctx, "m")
	_ = s.Issue(ctx, "m")
	if sender.codes["m"] != "222222" {
		t.Fatalf("unexpected last code %q", sender.codes["m"])
	}
	if err := s.Verify(ctx, "m", "111111"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("superseded code must be rejected, got %v", err)
	}
	if err := s.Verify(ctx, "m", "222222"); err != nil {
		t.Fatalf("verify latest: %v", err)
	}
}

func TestIssueRateLimited(t *testing.T) {
	s, rdb, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Issue(ctx, "m"); err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
	}
	if err := s.Issue(ctx, "m"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if rdb.ttls[rateKeyPrefix+"m:2025010110"] != time.Hour {
		t.Fatalf("rate counter must expire after an hour")
	}
}

func TestVerifyLocksAfterRepeatedFailures(t *testing.T) {
	s, _, sender := newTestStore(t)
	ctx := context.Background()
	if err := s.Issue(ctx, "m"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	for i := 0; i < maxVerifyAttempts; i++ {
		_ = s.Verify(ctx, "m", "wrong")
	}
	if err := s.Verify(ctx, "m", sender.codes["m"]); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("code must be discarded after repeated failures, got %v", err)
	}
}

func TestRandomDigits(t *testing.T) {
	code, err := randomDigits(8)
	if err != nil {
		t.Fatalf("random digits: %v", err)
	}
	if len(code) != 8 {
		t.Fatalf("unexpected length %d", len(code))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit in %q", code)
		}
	}
}
