package httpx

import (
	"net/http/httptest"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func TestMemoryRateLimiterWindow(t *testing.T) {
	now := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	rl := newMemoryRateLimiter(func() time.Time { return now })
	defer rl.Close()

	for i := 1; i <= 2; i++ {
		if d := rl.Allow("ip:1", 2, time.Minute); !d.allowed || d.count != i {
			t.Fatalf("request %d: unexpected decision %+v", i, d)
		}
	}
	if d := rl.Allow("ip:1", 2, time.Minute); d.allowed {
		t.Fatalf("third request in window must be rejected")
	}
	if d := rl.Allow("ip:2", 2, time.Minute); !d.allowed {
		t.Fatalf("other keys must be counted separately")
	}

	now = now.Add(time.Minute + time.Second)
	if d := rl.Allow("ip:1", 2, time.Minute); !d.allowed || d.count != 1 {
		t.Fatalf("new window must reset the counter, got %+v", d)
	}

	now = now.Add(2 * time.Minute)
	rl.cleanup(now)
	if len(rl.entries) != 0 {
		t.Fatalf("expected expired entries to be swept, got %d", len(rl.entries))
	}
}

func TestMemoryRateLimiterUnlimited(t *testing.T) {
	rl := newMemoryRateLimiter(time.Now)
	defer rl.Close()
	for i := 0; i < 100; i++ {
		if !rl.Allow("k", 0, time.Minute).allowed {
			t.Fatalf("non-positive limit must not reject")
		}
	}
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	rl := newRedisRateLimiter(client, newLogger())
	defer rl.Close()

	if d := rl.Allow("ip:1", 1, time.Minute); !d.allowed {
		t.Fatalf("redis errors must not reject requests")
	}
}

func TestClientIPAndKeys(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	if got := rateLimitKeyIP(req); got != "ip:10.1.2.3" {
		t.Fatalf("unexpected key: %s", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected forwarded client ip, got %s", got)
	}
	if got := rateLimitKeyAccount(req); got != "" {
		t.Fatalf("expected empty account key without auth, got %s", got)
	}
	if got := rateMetricKey("account:abc"); got != "account" {
		t.Fatalf("unexpected metric key: %s", got)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]bool{
		"":               false,
		"Bearer":         false,
		"Basic abc":      false,
		"Bearer abc def": false,
		"Bearer abc":     true,
		"bearer   abc":   true,
	}
	for header, ok := range cases {
		_, err := bearerToken(header)
		if (err == nil) != ok {
			t.Fatalf("bearerToken(%q) err=%v, want ok=%v", header, err, ok)
		}
	}
}
