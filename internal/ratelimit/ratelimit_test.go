package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alecgard/taskhub/internal/auth"
	"github.com/alecgard/taskhub/internal/user"
)

// fakeClock is a controllable time source for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestLimiter creates a Limiter wired to the given fake clock.
func newTestLimiter(rate int, window time.Duration, clock *fakeClock) *Limiter {
	l := New(rate, window)
	l.now = clock.Now
	return l
}

func TestTakeBasic(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		if !l.Take("user-1").Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	d := l.Take("user-1")
	if d.Allowed {
		t.Fatal("4th request should be denied")
	}
	// 3 per minute = one token every 20 seconds.
	if d.RetryAfter <= 0 || d.RetryAfter > 20*time.Second {
		t.Fatalf("expected retry-after in (0, 20s], got %v", d.RetryAfter)
	}
}

func TestTakeDifferentKeys(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(1, time.Minute, clock)

	if !l.Take("a").Allowed {
		t.Fatal("first request for key 'a' should be allowed")
	}
	if l.Take("a").Allowed {
		t.Fatal("second request for key 'a' should be denied")
	}
	if !l.Take("b").Allowed {
		t.Fatal("first request for key 'b' should be allowed")
	}
}

func TestTokenRefill(t *testing.T) {
	clock := newFakeClock(time.Now())
	// 60 tokens per minute = 1 token per second.
	l := newTestLimiter(60, time.Minute, clock)

	for i := 0; i < 60; i++ {
		l.Take("k")
	}
	if l.Take("k").Allowed {
		t.Fatal("should be denied after exhausting tokens")
	}

	clock.Advance(1 * time.Second)
	if !l.Take("k").Allowed {
		t.Fatal("should be allowed after 1 second refill")
	}
	if l.Take("k").Allowed {
		t.Fatal("should be denied again after consuming refilled token")
	}

	clock.Advance(5 * time.Second)
	for i := 0; i < 5; i++ {
		if !l.Take("k").Allowed {
			t.Fatalf("request %d should be allowed after 5s refill", i+1)
		}
	}
	if l.Take("k").Allowed {
		t.Fatal("should be denied after consuming 5 refilled tokens")
	}
}

func TestTokenRefillCap(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(5, time.Minute, clock)

	l.Take("k")
	l.Take("k")

	// Tokens cap at rate no matter how long the key is idle.
	clock.Advance(10 * time.Minute)

	d := l.Take("k")
	if d.Remaining != 4 {
		t.Fatalf("remaining should be 4 after one take from a full bucket, got %d", d.Remaining)
	}
}

func TestConcurrentAccess(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(100, time.Minute, clock)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Take("concurrent").Allowed
		}()
	}

	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}

	if count != 100 {
		t.Fatalf("expected exactly 100 allowed, got %d", count)
	}
}

func TestDecisionQuota(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(10, time.Minute, clock)

	var d Decision
	for i := 0; i < 3; i++ {
		d = l.Take("s")
	}
	if d.Limit != 10 {
		t.Fatalf("expected limit 10, got %d", d.Limit)
	}
	if d.Remaining != 7 {
		t.Fatalf("expected remaining 7, got %d", d.Remaining)
	}
	// 3 tokens at 10/min = 18 seconds to full.
	if got := d.ResetAt.Sub(clock.Now()); got != 18*time.Second {
		t.Fatalf("expected reset in 18s, got %v", got)
	}
}

func TestPrune(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(2, time.Minute, clock)

	l.Take("idle")
	l.Take("busy")
	l.Take("busy")

	clock.Advance(30 * time.Second)
	if n := l.Prune(); n != 1 {
		t.Fatalf("expected 1 pruned bucket, got %d", n)
	}
	if l.Len() != 1 {
		t.Fatalf("expected busy bucket to remain, got %d buckets", l.Len())
	}
}

// --- middleware ---

func TestMiddleware(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(2, time.Minute, clock)

	rejected := 0
	handler := Middleware(l, func() { rejected++ })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(u *user.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if u != nil {
			req = req.WithContext(auth.ContextWithUser(req.Context(), u))
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	alice := &user.User{ID: "alice"}
	for i := 0; i < 2; i++ {
		rr := do(alice)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
		if rr.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("expected X-RateLimit-Limit 2, got %q", rr.Header().Get("X-RateLimit-Limit"))
		}
	}

	rr := do(alice)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "30" {
		t.Errorf("expected Retry-After 30, got %q", rr.Header().Get("Retry-After"))
	}
	if rejected != 1 {
		t.Errorf("expected onReject to run once, ran %d times", rejected)
	}

	if rr := do(&user.User{ID: "bob"}); rr.Code != http.StatusOK {
		t.Errorf("other users are unaffected, got %d", rr.Code)
	}
	if rr := do(nil); rr.Code != http.StatusOK || rr.Header().Get("X-RateLimit-Limit") != "" {
		t.Errorf("anonymous requests pass through without headers")
	}
}
