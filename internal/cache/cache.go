// Пакет cache — in-memory TTL-кэш ответов внешних сервисов.
// Обёртка над hashicorp/golang-lru/v2/expirable. Кэш — оптимизация,
// а не источник истины: промах всегда приводит к сетевому запросу.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache — LRU-кэш с TTL и строковыми ключами.
type Cache[V any] struct {
	lru *expirable.LRU[string, V]
}

// New создаёт кэш на maxSize записей со временем жизни ttl.
func New[V any](maxSize int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{lru: expirable.NewLRU[string, V](maxSize, nil, ttl)}
}

// Get возвращает (значение, true) при попадании или (zero, false) при промахе.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// Set добавляет или обновляет запись.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Delete инвалидирует запись.
func (c *Cache[V]) Delete(key string) {
	c.lru.Remove(key)
}
