package stores

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestChallengeStore_IssueOverwrites(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "")
	ctx := context.Background()

	if _, err := s.Issue(ctx, ChallengeRSA, 1, "first", time.Minute); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Issue(ctx, ChallengeRSA, 1, "second", time.Minute); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := s.Consume(ctx, ChallengeRSA, 1, "first"); !errors.Is(err, ErrChallengeMismatch) {
		t.Fatalf("expected superseded challenge to mismatch, got %v", err)
	}
	if err := s.Consume(ctx, ChallengeRSA, 1, "second"); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := s.Consume(ctx, ChallengeRSA, 1, "second"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected single use, got %v", err)
	}
}

func TestChallengeStore_KindsAreIndependent(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "")
	ctx := context.Background()

	_, _ = s.Issue(ctx, ChallengeRSA, 1, "rsa", time.Minute)
	_, _ = s.Issue(ctx, ChallengePasskey, 1, "pk", time.Minute)

	got, err := s.Get(ctx, ChallengeRSA, 1)
	if err != nil || got.Value != "rsa" {
		t.Fatalf("Get rsa = %+v, %v", got, err)
	}
	got, err = s.Get(ctx, ChallengePasskey, 1)
	if err != nil || got.Value != "pk" {
		t.Fatalf("Get passkey = %+v, %v", got, err)
	}
}

func TestChallengeStore_Expiry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "")
	ctx := context.Background()

	_, _ = s.Issue(ctx, ChallengeRSA, 7, "c", 5*time.Minute)
	mr.FastForward(6 * time.Minute)

	if _, err := s.Get(ctx, ChallengeRSA, 7); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected expired challenge to be gone, got %v", err)
	}
}

func TestChallengeStore_ExpiredByClock(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "")
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }
	_, _ = s.Issue(ctx, ChallengeRSA, 7, "c", time.Minute)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	if err := s.Consume(ctx, ChallengeRSA, 7, "c"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestChallengeStore_RecordFailureDropsAtLimit(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "")
	ctx := context.Background()

	_, _ = s.Issue(ctx, ChallengePasskey, 3, "c", time.Minute)
	for i := 1; i <= 2; i++ {
		exceeded, err := s.RecordFailure(ctx, ChallengePasskey, 3, 3)
		if err != nil || exceeded {
			t.Fatalf("attempt %d: exceeded=%v err=%v", i, exceeded, err)
		}
	}
	exceeded, err := s.RecordFailure(ctx, ChallengePasskey, 3, 3)
	if err != nil || !exceeded {
		t.Fatalf("expected limit reached: exceeded=%v err=%v", exceeded, err)
	}
	if _, err := s.Get(ctx, ChallengePasskey, 3); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected challenge dropped, got %v", err)
	}
}

func TestChallengeStore_ConcurrentConsumeSingleWinner(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "")
	ctx := context.Background()
	_, _ = s.Issue(ctx, ChallengeRSA, 1, "c", time.Minute)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Consume(ctx, ChallengeRSA, 1, "c") == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}
