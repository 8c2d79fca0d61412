package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLimiter_CeilingNeverExceeded: при потолке N одновременно исполняется
// не больше N операций, сколько бы горутин ни конкурировало за слоты.
func TestLimiter_CeilingNeverExceeded(t *testing.T) {
	for _, ceiling := range []int64{1, 2, 5} {
		lim, err := New(map[Service]int64{ServiceRUZ: ceiling})
		require.NoError(t, err)

		var inFlight, peak atomic.Int64
		var wg sync.WaitGroup

		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := lim.Do(context.Background(), ServiceRUZ, func(context.Context) error {
					current := inFlight.Add(1)
					for {
						observed := peak.Load()
						if current <= observed || peak.CompareAndSwap(observed, current) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					inFlight.Add(-1)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.LessOrEqual(t, peak.Load(), ceiling, "ceiling %d", ceiling)
	}
}

// TestLimiter_UnknownService: незарегистрированный сервис — ошибка
// конфигурации, операция не выполняется.
func TestLimiter_UnknownService(t *testing.T) {
	lim, err := New(map[Service]int64{ServiceRUZ: 1})
	require.NoError(t, err)

	executed := false
	err = lim.Do(context.Background(), ServiceCalendar, func(context.Context) error {
		executed = true
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownService)
	assert.False(t, executed)
}

// TestLimiter_ReleasesSlotOnError: слот освобождается и при ошибке операции.
func TestLimiter_ReleasesSlotOnError(t *testing.T) {
	lim, err := New(map[Service]int64{ServiceErudite: 1})
	require.NoError(t, err)

	opErr := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := lim.Do(context.Background(), ServiceErudite, func(context.Context) error {
			return opErr
		})
		assert.ErrorIs(t, err, opErr)
	}

	// Слот свободен — успешная операция проходит без ожидания
	err = lim.Do(context.Background(), ServiceErudite, func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

// TestLimiter_AcquireCancelled: ожидание слота прерывается отменой контекста.
func TestLimiter_AcquireCancelled(t *testing.T) {
	lim, err := New(map[Service]int64{ServiceRUZ: 1})
	require.NoError(t, err)

	release := make(chan struct{})
	occupied := make(chan struct{})
	go func() {
		_ = lim.Do(context.Background(), ServiceRUZ, func(context.Context) error {
			close(occupied)
			<-release
			return nil
		})
	}()
	<-occupied

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err = lim.Do(ctx, ServiceRUZ, func(context.Context) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

// TestLimiter_InvalidCeiling: потолок меньше единицы отклоняется при создании.
func TestLimiter_InvalidCeiling(t *testing.T) {
	_, err := New(map[Service]int64{ServiceRUZ: 0})
	require.Error(t, err)
}
