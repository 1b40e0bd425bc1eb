// Package keycache хранит развёрнутый ключевой материал между выдачей
// ключа и его погашением клиентом. Хранилище процесс-локальное и
// намеренно не переживает рестарт: секреты не должны оседать на диске
// в открытом виде.
package keycache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultSweepInterval — период фоновой чистки истёкших записей.
const DefaultSweepInterval = 30 * time.Second

// Material — расшифрованный ключ и IV объекта плюс владелец для
// дополнительной проверки на стороне сервиса.
type Material struct {
	Key         []byte
	IV          []byte
	OwnerUserID string
}

type cacheKey struct {
	objectID  string
	sessionID string
}

type entry struct {
	material  Material
	expiresAt time.Time
}

// Cache — потокобезопасный кеш (objectID, sessionID) → Material.
// Записи достижимы только по точной паре ключей: интерфейса перечисления
// нет, чтобы ключи нельзя было собрать итерацией.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]entry

	clock         clockwork.Clock
	sweepInterval time.Duration

	stopChan chan struct{}
	running  bool
}

// New создаёт кеш с инжектированными часами. sweepInterval <= 0 означает
// интервал по умолчанию.
func New(clock clockwork.Clock, sweepInterval time.Duration) *Cache {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Cache{
		entries:       make(map[cacheKey]entry),
		clock:         clock,
		sweepInterval: sweepInterval,
	}
}

// Put кладёт материал под парой (objectID, sessionID) с заданным TTL.
// Повторная запись той же пары перетирает предыдущую (last-writer-wins).
func (c *Cache) Put(objectID, sessionID string, m Material, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{objectID, sessionID}] = entry{
		material:  m,
		expiresAt: c.clock.Now().Add(ttl),
	}
}

// Get возвращает материал, если запись жива. Истёкшая запись удаляется
// прямо при чтении (ленивое истечение) — фоновая чистка лишь ограничивает
// рост памяти, когда к записям никто не обращается.
func (c *Cache) Get(objectID, sessionID string) (Material, bool) {
	k := cacheKey{objectID, sessionID}

	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if !ok {
		return Material{}, false
	}
	if c.clock.Now().After(e.expiresAt) {
		c.mu.Lock()
		// перечитываем под write-блокировкой: запись могли успеть обновить
		if cur, ok := c.entries[k]; ok && c.clock.Now().After(cur.expiresAt) {
			delete(c.entries, k)
		}
		c.mu.Unlock()
		return Material{}, false
	}
	return e.material, true
}

// Delete удаляет одну запись.
func (c *Cache) Delete(objectID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{objectID, sessionID})
}

// DeleteObject удаляет все сессии объекта; вызывается каскадом при
// удалении самого объекта.
func (c *Cache) DeleteObject(objectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.objectID == objectID {
			delete(c.entries, k)
		}
	}
}

// Len — текущее число записей (живых и ещё не выметенных).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Start запускает периодическую чистку. Повторный вызов — no-op.
func (c *Cache) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.stopChan = make(chan struct{})
	c.running = true
	go c.sweepLoop(c.stopChan)
}

// Stop останавливает фоновую чистку.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	close(c.stopChan)
	c.running = false
}

func (c *Cache) sweepLoop(stop <-chan struct{}) {
	ticker := c.clock.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			c.Sweep()
		case <-stop:
			return
		}
	}
}

// Sweep удаляет все истёкшие записи. Безопасен при конкурентных чтениях:
// выметается только то, что уже истекло.
func (c *Cache) Sweep() {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
