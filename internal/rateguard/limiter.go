// Package rateguard ограничивает частоту запросов по IP и ведёт учёт
// отказов с временным баном злоупотребляющих адресов. Всё состояние
// процесс-локально и теряется при рестарте — это осознанное решение.
package rateguard

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// LimitConfig — окно и допустимое число запросов в нём.
type LimitConfig struct {
	Window time.Duration
	Max    int
}

type visitor struct {
	count    int
	resetAt  time.Time
	lastSeen time.Time
}

// Limiter — счётчик с фиксированным окном на произвольный строковый ключ
// (IP либо IP+userID для самого чувствительного пути).
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	cfg      LimitConfig
	clock    clockwork.Clock
}

// NewLimiter создаёт лимитер с инжектированными часами.
func NewLimiter(cfg LimitConfig, clock clockwork.Clock) *Limiter {
	return &Limiter{
		visitors: make(map[string]*visitor),
		cfg:      cfg,
		clock:    clock,
	}
}

// Allow учитывает запрос и отвечает, пропускать ли его. При отказе
// возвращает рекомендуемую паузу до повторной попытки.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok || now.After(v.resetAt) {
		l.visitors[key] = &visitor{count: 1, resetAt: now.Add(l.cfg.Window), lastSeen: now}
		return true, 0
	}
	v.lastSeen = now
	if v.count >= l.cfg.Max {
		return false, v.resetAt.Sub(now)
	}
	v.count++
	return true, 0
}

// purgeIdle удаляет ключи, по которым давно не было обращений.
// Вызывается из общей фоновой чистки Guard.
func (l *Limiter) purgeIdle(idle time.Duration) {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(l.visitors, key)
		}
	}
}
