package rateguard

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newGuard(t *testing.T) (*Guard, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	return New(DefaultGuardConfig(), DefaultLimits(), clock, nil), clock
}

func TestLimiter_WindowReset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewLimiter(LimitConfig{Window: time.Minute, Max: 5}, clock)

	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow("1.2.3.4"); !ok {
			t.Fatalf("request %d must pass", i+1)
		}
	}
	ok, retryAfter := l.Allow("1.2.3.4")
	if ok {
		t.Fatalf("6th request must be rejected")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("retry-after out of range: %v", retryAfter)
	}

	// другой ключ не задет
	if ok, _ := l.Allow("5.6.7.8"); !ok {
		t.Fatalf("other key must pass")
	}

	// окно истекло — счётчик сброшен
	clock.Advance(61 * time.Second)
	if ok, _ := l.Allow("1.2.3.4"); !ok {
		t.Fatalf("after window reset the request must pass")
	}
}

// 20 отказов в окне 15 минут → Banned; забаненный отклоняется независимо
// от счётчиков; через час симулированного времени адрес снова Clean.
func TestGuard_BanLifecycle(t *testing.T) {
	g, clock := newGuard(t)
	const ip = "10.0.0.1"

	for i := 0; i < 19; i++ {
		g.RecordFailure(ip)
		if g.IsBanned(ip) {
			t.Fatalf("must not be banned at %d failures", i+1)
		}
	}
	g.RecordFailure(ip)
	if !g.IsBanned(ip) {
		t.Fatalf("20th failure within window must ban the ip")
	}

	// бан действует даже при пустых счётчиках лимитеров
	if ok, _ := g.Basic.Allow(ip); !ok {
		t.Fatalf("limiter itself knows nothing about bans")
	}
	if !g.IsBanned(ip) {
		t.Fatalf("ban must not depend on limiter counters")
	}

	clock.Advance(time.Hour + time.Second)
	if g.IsBanned(ip) {
		t.Fatalf("ban must auto-expire after its duration")
	}
}

// Отказы, размазанные шире окна, до бана не доводят.
func TestGuard_WindowSlide(t *testing.T) {
	g, clock := newGuard(t)
	const ip = "10.0.0.2"

	for i := 0; i < 30; i++ {
		g.RecordFailure(ip)
		clock.Advance(16 * time.Minute) // каждая неудача открывает новое окно
	}
	if g.IsBanned(ip) {
		t.Fatalf("failures spread beyond the window must not ban")
	}
}

func TestGuard_ManualOverrides(t *testing.T) {
	g, clock := newGuard(t)
	const ip = "10.0.0.3"

	g.BlockIP(ip, 30*time.Minute)
	if !g.IsBanned(ip) {
		t.Fatalf("manual block must take effect immediately")
	}

	g.UnblockIP(ip)
	if g.IsBanned(ip) {
		t.Fatalf("manual unblock must clear the ban")
	}

	g.BlockIP(ip, time.Minute)
	clock.Advance(2 * time.Minute)
	if g.IsBanned(ip) {
		t.Fatalf("manual block must expire like any ban")
	}
}

func TestGuard_SweepPurgesIdleRecords(t *testing.T) {
	g, clock := newGuard(t)

	g.RecordFailure("10.0.0.4")
	g.Basic.Allow("10.0.0.4")

	clock.Advance(25 * time.Hour)
	g.Sweep()

	g.mu.Lock()
	nFail := len(g.failures)
	g.mu.Unlock()
	if nFail != 0 {
		t.Fatalf("idle failure records must be purged, got %d", nFail)
	}

	g.Basic.mu.Lock()
	nVis := len(g.Basic.visitors)
	g.Basic.mu.Unlock()
	if nVis != 0 {
		t.Fatalf("idle limiter visitors must be purged, got %d", nVis)
	}
}

func TestGuard_IndependentIPs(t *testing.T) {
	g, _ := newGuard(t)

	for i := 0; i < 25; i++ {
		g.RecordFailure("10.0.0.5")
	}
	if g.IsBanned("10.0.0.6") {
		t.Fatalf("bans must be per-ip")
	}
}

func TestLimiter_KeyAccessCompositeKey(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewLimiter(DefaultLimits().KeyAccess, clock)

	// пять запросов одного пользователя исчерпывают лимит,
	// другой пользователь с того же IP не задет
	key := func(user string) string { return fmt.Sprintf("9.9.9.9|%s", user) }
	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow(key("u1")); !ok {
			t.Fatalf("request %d for u1 must pass", i+1)
		}
	}
	if ok, _ := l.Allow(key("u1")); ok {
		t.Fatalf("u1 must be limited")
	}
	if ok, _ := l.Allow(key("u2")); !ok {
		t.Fatalf("u2 must not be limited")
	}
}
