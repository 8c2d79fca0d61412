// Пакет limiter ограничивает число одновременных запросов к каждому
// внешнему сервису. РУЗ переносит заметно меньшую конкурентность, чем
// Erudite, поэтому потолки задаются на сервис отдельно.
package limiter

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// ErrUnknownService — обращение к сервису, не заданному в конфигурации
// потолков. Это дефект конфигурации, а не транзиентный сбой: батч на
// такой ошибке останавливается.
var ErrUnknownService = errors.New("limiter: unknown service")

// Service — имя внешнего сервиса, под которое выделяется отдельный потолок.
type Service string

const (
	ServiceRUZ      Service = "ruz"
	ServiceErudite  Service = "erudite"
	ServiceCalendar Service = "gcalendar"
)

// Limiter — пер-сервисный ограничитель конкурентности.
// Набор сервисов фиксируется при создании; обращение к незарегистрированному
// сервису — конфигурационная ошибка, батч на ней останавливается.
type Limiter struct {
	sems map[Service]*semaphore.Weighted
}

// New создаёт ограничитель с потолками по сервисам. Потолок < 1 —
// ошибка конфигурации.
func New(limits map[Service]int64) (*Limiter, error) {
	sems := make(map[Service]*semaphore.Weighted, len(limits))
	for svc, limit := range limits {
		if limit < 1 {
			return nil, fmt.Errorf("limiter: ceiling for %q must be >= 1, got %d", svc, limit)
		}
		sems[svc] = semaphore.NewWeighted(limit)
	}
	return &Limiter{sems: sems}, nil
}

// Do ждёт свободный слот сервиса, выполняет операцию и освобождает слот
// на любом пути выхода. Ожидание прерывается отменой контекста.
func (l *Limiter) Do(ctx context.Context, svc Service, op func(ctx context.Context) error) error {
	sem, ok := l.sems[svc]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownService, svc)
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("limiter: acquire %s slot: %w", svc, err)
	}
	defer sem.Release(1)

	return op(ctx)
}
