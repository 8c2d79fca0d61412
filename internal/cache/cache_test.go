package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestCache_GetSet проверяет базовые операции Get/Set.
func TestCache_GetSet(t *testing.T) {
	c := New[[]string](16, time.Minute)

	_, ok := c.Get("БИВ202")
	assert.False(t, ok, "ожидался промах для нового ключа")

	c.Set("БИВ202", []string{"biv202@edu.hse.ru"})

	emails, ok := c.Get("БИВ202")
	assert.True(t, ok, "ожидалось попадание после Set")
	assert.Equal(t, []string{"biv202@edu.hse.ru"}, emails)
}

// TestCache_Delete проверяет инвалидацию записи.
func TestCache_Delete(t *testing.T) {
	c := New[[]string](16, time.Minute)

	c.Set("key", []string{"x"})
	c.Delete("key")

	_, ok := c.Get("key")
	assert.False(t, ok, "ожидался промах после удаления")
}

// TestCache_TTLExpiry: запись умирает по истечении TTL.
func TestCache_TTLExpiry(t *testing.T) {
	c := New[[]string](16, 20*time.Millisecond)

	c.Set("key", []string{"x"})
	_, ok := c.Get("key")
	assert.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	_, ok = c.Get("key")
	assert.False(t, ok, "ожидался промах после истечения TTL")
}
