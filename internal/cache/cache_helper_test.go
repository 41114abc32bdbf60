package cache

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

type payload struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

func newTestManager(t *testing.T) (*CacheManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheManager(client), mr
}

func TestCacheOrExecuteWritesThrough(t *testing.T) {
	cm, mr := newTestManager(t)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return payload{ID: 7, Title: "Quiz"}, nil
	}

	var first payload
	if err := cm.Assessment.CacheOrExecute(ctx, AssessmentKey(7), &first, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute() error = %v", err)
	}
	if !mr.Exists("assessment:id:7") {
		t.Fatal("expected value to be stored before returning")
	}

	var second payload
	if err := cm.Assessment.CacheOrExecute(ctx, AssessmentKey(7), &second, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch called %d times, want 1", calls)
	}
	if second != first {
		t.Errorf("cached value = %+v, want %+v", second, first)
	}
}

func TestCacheOrExecuteDeduplicatesConcurrentMisses(t *testing.T) {
	cm, _ := newTestManager(t)
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	fetch := func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return payload{ID: 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var p payload
			_ = cm.Assessment.CacheOrExecute(ctx, AssessmentKey(1), &p, time.Minute, fetch)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("fetch called %d times, want 1", n)
	}
}

func TestCacheOrExecutePropagatesFetchError(t *testing.T) {
	cm, mr := newTestManager(t)
	boom := errors.New("boom")

	var p payload
	err := cm.Assessment.CacheOrExecute(context.Background(), AssessmentKey(2), &p, time.Minute, func() (interface{}, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if mr.Exists("assessment:id:2") {
		t.Error("failed fetch must not populate the cache")
	}
}

func TestNilClientFallsBackToFetch(t *testing.T) {
	cm := NewCacheManager(nil)
	if cm.Enabled() {
		t.Fatal("expected cache to be disabled")
	}

	var p payload
	err := cm.Assessment.CacheOrExecute(context.Background(), "k", &p, time.Minute, func() (interface{}, error) {
		return payload{ID: 3, Title: "direct"}, nil
	})
	if err != nil || p.Title != "direct" {
		t.Fatalf("got %+v, %v", p, err)
	}
	if err := cm.Assessment.Delete(context.Background(), "k"); err != nil {
		t.Errorf("Delete() on disabled cache = %v", err)
	}
}

func TestInvalidateAssessmentCache(t *testing.T) {
	cm, mr := newTestManager(t)
	ctx := context.Background()

	_ = cm.Assessment.Set(ctx, AssessmentKey(4), payload{ID: 4}, time.Minute)
	_ = cm.Assessment.Set(ctx, AssessmentKey(5), payload{ID: 5}, time.Minute)

	InvalidateAssessmentCache(ctx, cm, 4)

	if mr.Exists("assessment:id:4") {
		t.Error("expected assessment 4 to be removed")
	}
	if !mr.Exists("assessment:id:5") {
		t.Error("unrelated key was removed")
	}
}

func TestInvalidatePattern(t *testing.T) {
	cm, mr := newTestManager(t)
	ctx := context.Background()

	for i := uint(1); i <= 3; i++ {
		_ = cm.User.Set(ctx, "id:"+string(rune('a'+i)), payload{ID: i}, time.Minute)
	}
	if err := cm.User.InvalidatePattern(ctx, "id:*"); err != nil {
		t.Fatalf("InvalidatePattern() error = %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Errorf("keys left after invalidation: %v", keys)
	}
}
