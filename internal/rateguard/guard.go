package rateguard

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// GuardConfig — пороги учёта отказов и параметры бана.
type GuardConfig struct {
	BanThreshold int           // отказов в окне до бана
	BanWindow    time.Duration // скользящее окно учёта отказов
	BanDuration  time.Duration // длительность бана

	AttemptIdle   time.Duration // простой записи об отказах до её удаления
	SweepInterval time.Duration // период фоновой чистки
}

// DefaultGuardConfig — значения по умолчанию: 20 отказов за 15 минут,
// бан на час, чистка раз в час, записи живут сутки без активности.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		BanThreshold:  20,
		BanWindow:     15 * time.Minute,
		BanDuration:   time.Hour,
		AttemptIdle:   24 * time.Hour,
		SweepInterval: time.Hour,
	}
}

// Limits — три независимых конфигурации лимитеров.
type Limits struct {
	Basic     LimitConfig // общий трафик
	Strict    LimitConfig // upload/delete/one-time-token
	KeyAccess LimitConfig // выдача и погашение ключей, ключ IP+userID
}

// DefaultLimits — 100/15м, 10/5м и 5/1м соответственно.
func DefaultLimits() Limits {
	return Limits{
		Basic:     LimitConfig{Window: 15 * time.Minute, Max: 100},
		Strict:    LimitConfig{Window: 5 * time.Minute, Max: 10},
		KeyAccess: LimitConfig{Window: time.Minute, Max: 5},
	}
}

// failureRecord — учёт отказов одного IP внутри скользящего окна.
type failureRecord struct {
	count   int
	firstAt time.Time
	lastAt  time.Time
}

// Guard объединяет лимитеры и машину состояний банов:
// Clean → Flagged(count>0) → Banned(count≥threshold в окне) → Clean.
type Guard struct {
	Basic     *Limiter
	Strict    *Limiter
	KeyAccess *Limiter

	mu       sync.Mutex
	failures map[string]*failureRecord
	banned   map[string]time.Time // ip → bannedUntil

	cfg    GuardConfig
	clock  clockwork.Clock
	logger *zap.SugaredLogger

	stopChan chan struct{}
	running  bool
}

// New создаёт Guard c тремя лимитерами на общих часах.
func New(cfg GuardConfig, limits Limits, clock clockwork.Clock, logger *zap.SugaredLogger) *Guard {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Guard{
		Basic:     NewLimiter(limits.Basic, clock),
		Strict:    NewLimiter(limits.Strict, clock),
		KeyAccess: NewLimiter(limits.KeyAccess, clock),
		failures:  make(map[string]*failureRecord),
		banned:    make(map[string]time.Time),
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
	}
}

// RecordFailure учитывает клиентскую/авторизационную ошибку от IP.
// При достижении порога внутри окна адрес банится, а запись отказов
// сбрасывается; снятие бана планируется по часам.
func (g *Guard) RecordFailure(ip string) {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.failures[ip]
	if !ok || now.Sub(rec.firstAt) > g.cfg.BanWindow {
		g.failures[ip] = &failureRecord{count: 1, firstAt: now, lastAt: now}
		return
	}
	rec.count++
	rec.lastAt = now
	if rec.count >= g.cfg.BanThreshold {
		until := now.Add(g.cfg.BanDuration)
		g.banned[ip] = until
		delete(g.failures, ip)
		g.logger.Warnw("ip banned", "ip", ip, "until", until)

		// плановое снятие; ленивые проверки в IsBanned подстраховывают
		g.clock.AfterFunc(g.cfg.BanDuration, func() { g.expireBan(ip) })
	}
}

// expireBan снимает бан, если его срок действительно вышел.
func (g *Guard) expireBan(ip string) {
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if until, ok := g.banned[ip]; ok && !until.After(now) {
		delete(g.banned, ip)
		g.logger.Infow("ip ban expired", "ip", ip)
	}
}

// IsBanned сообщает, забанен ли адрес сейчас. Истёкший бан снимается
// лениво прямо здесь.
func (g *Guard) IsBanned(ip string) bool {
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.banned[ip]
	if !ok {
		return false
	}
	if !until.After(now) {
		delete(g.banned, ip)
		return false
	}
	return true
}

// BlockIP — ручной операторский бан на заданный срок.
func (g *Guard) BlockIP(ip string, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.banned[ip] = g.clock.Now().Add(d)
	g.logger.Warnw("ip blocked manually", "ip", ip, "duration", d)
}

// UnblockIP — ручное снятие бана и сброс счётчика отказов.
func (g *Guard) UnblockIP(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.banned, ip)
	delete(g.failures, ip)
	g.logger.Infow("ip unblocked manually", "ip", ip)
}

// Start запускает периодическую чистку записей об отказах, истёкших банов
// и простаивающих счётчиков лимитеров.
func (g *Guard) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return
	}
	g.stopChan = make(chan struct{})
	g.running = true
	go g.sweepLoop(g.stopChan)
}

// Stop останавливает фоновую чистку.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return
	}
	close(g.stopChan)
	g.running = false
}

func (g *Guard) sweepLoop(stop <-chan struct{}) {
	ticker := g.clock.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			g.Sweep()
		case <-stop:
			return
		}
	}
}

// Sweep чистит устаревшее состояние: простаивающие записи отказов,
// истёкшие баны и неактивные счётчики лимитеров.
func (g *Guard) Sweep() {
	now := g.clock.Now()

	g.mu.Lock()
	for ip, rec := range g.failures {
		if now.Sub(rec.lastAt) > g.cfg.AttemptIdle {
			delete(g.failures, ip)
		}
	}
	for ip, until := range g.banned {
		if !until.After(now) {
			delete(g.banned, ip)
		}
	}
	g.mu.Unlock()

	g.Basic.purgeIdle(g.cfg.AttemptIdle)
	g.Strict.purgeIdle(g.cfg.AttemptIdle)
	g.KeyAccess.purgeIdle(g.cfg.AttemptIdle)
}
