package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/miem-nvr/sink/internal/httpx"
	"github.com/miem-nvr/sink/internal/limiter"
	"github.com/miem-nvr/sink/internal/model"
)

// ScheduleSource — источник истины: система расписаний (РУЗ).
type ScheduleSource interface {
	Rooms(ctx context.Context, buildingID string) ([]model.Room, error)
	Lessons(ctx context.Context, roomID string, from, to time.Time) ([]map[string]any, error)
}

// Registry — реестр занятий (Erudite) плюс справочник почт потоков.
type Registry interface {
	LessonsInRoom(ctx context.Context, roomID string, from time.Time) ([]map[string]any, error)
	CreateLesson(ctx context.Context, payload map[string]any) (string, error)
	UpdateLesson(ctx context.Context, registryID string, payload map[string]any) error
	DeleteLesson(ctx context.Context, registryID string) error
	CourseEmails(ctx context.Context, courseCode string) ([]string, error)
}

// Calendar — календарь с событиями занятий.
type Calendar interface {
	CreateEvent(ctx context.Context, calendarID string, lesson *model.Lesson) (string, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, lesson *model.Lesson) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// RoomDirectory — операторские привязки аудиторий к календарям.
type RoomDirectory interface {
	GetByRUZID(ctx context.Context, ruzID string) (*model.RoomMapping, error)
}

// SyncConfig — параметры батча синхронизации.
type SyncConfig struct {
	// PeriodDays — окно выборки: занятия от сегодня до сегодня+PeriodDays
	PeriodDays int
	// Buildings — здания, аудитории которых синхронизируются
	Buildings []string
}

// SyncService — движок сверки. Для каждой аудитории сравнивает занятия
// РУЗ с записями Erudite и применяет add/update/delete через адаптеры,
// соблюдая пер-сервисные потолки конкурентности.
type SyncService struct {
	schedule ScheduleSource
	registry Registry
	calendar Calendar
	rooms    RoomDirectory
	limiter  *limiter.Limiter
	cfg      SyncConfig
	logger   *zap.Logger

	// подменяется в тестах
	now func() time.Time
}

func NewSyncService(
	schedule ScheduleSource,
	registry Registry,
	calendar Calendar,
	rooms RoomDirectory,
	lim *limiter.Limiter,
	cfg SyncConfig,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		schedule: schedule,
		registry: registry,
		calendar: calendar,
		rooms:    rooms,
		limiter:  lim,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run выполняет один батч: для всех зданий из конфигурации собирает
// аудитории и синхронизирует каждую в отдельной горутине. Ошибки
// отдельных аудиторий не прерывают батч; ошибкой Run завершается
// только на конфигурационных дефектах (неизвестный сервис лимитера).
func (s *SyncService) Run(ctx context.Context) (*model.SyncRun, error) {
	run := &model.SyncRun{
		ID:        uuid.NewString(),
		StartedAt: s.now(),
	}
	stats := &Stats{}

	s.logger.Info("Synchronization started",
		zap.String("run_id", run.ID),
		zap.Strings("buildings", s.cfg.Buildings),
		zap.Int("period_days", s.cfg.PeriodDays),
	)

	group, groupCtx := errgroup.WithContext(ctx)

	for _, buildingID := range s.cfg.Buildings {
		var rooms []model.Room
		err := s.callService(ctx, limiter.ServiceRUZ, func(ctx context.Context) error {
			var roomsErr error
			rooms, roomsErr = s.schedule.Rooms(ctx, buildingID)
			return roomsErr
		})
		if err != nil {
			if errors.Is(err, limiter.ErrUnknownService) {
				return nil, err
			}
			s.logger.Error("Failed to list rooms, skipping building",
				zap.String("building_id", buildingID),
				zap.Error(err),
			)
			continue
		}

		for _, room := range rooms {
			group.Go(func() error {
				stats.roomsTotal.Add(1)
				if err := s.syncRoom(groupCtx, room, stats); err != nil {
					// Конфигурационный дефект гасит батч; остальное —
					// проблема одной аудитории
					if errors.Is(err, limiter.ErrUnknownService) {
						return err
					}
					stats.roomsFailed.Add(1)
					s.logger.Error("Room synchronization failed",
						zap.String("room_id", room.RUZID),
						zap.Error(err),
					)
				}
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	run.FinishedAt = s.now()
	stats.FillRun(run)

	s.logger.Info("Synchronization finished",
		zap.String("run_id", run.ID),
		zap.Int64("rooms_total", run.RoomsTotal),
		zap.Int64("rooms_failed", run.RoomsFailed),
		zap.Int64("added", run.LessonsAdded),
		zap.Int64("updated", run.LessonsUpdated),
		zap.Int64("deleted", run.LessonsDeleted),
		zap.Int64("unchanged", run.LessonsUnchanged),
		zap.Int64("no_course_code", run.NoCourseCode),
		zap.Int64("with_group_emails", run.WithGroupEmails),
		zap.Int64("no_group_emails", run.NoGroupEmails),
	)

	return run, nil
}

// syncRoom — один проход сверки для одной аудитории:
// снапшот обеих сторон → дедупликация реестра → решения → применение.
func (s *SyncService) syncRoom(ctx context.Context, room model.Room, stats *Stats) error {
	from := s.now().In(model.Moscow())
	to := from.AddDate(0, 0, s.cfg.PeriodDays)

	// Привязка к календарю опциональна: без неё синхронизируется
	// только реестр
	if mapping, err := s.rooms.GetByRUZID(ctx, room.RUZID); err != nil {
		s.logger.Warn("Room directory lookup failed, calendar sync disabled for room",
			zap.String("room_id", room.RUZID),
			zap.Error(err),
		)
	} else if mapping != nil {
		room.CalendarID = mapping.CalendarID
	}

	scheduleLessons, err := s.fetchScheduleLessons(ctx, room, from, to)
	if err != nil {
		return err
	}

	registryByID, err := s.fetchRegistrySnapshot(ctx, room, from)
	if err != nil {
		return err
	}

	s.enrichWithGroupEmails(ctx, scheduleLessons, stats)

	seen := make(map[string]bool, len(scheduleLessons))
	for _, lesson := range scheduleLessons {
		seen[lesson.ScheduleID] = true

		decision := model.Decide(lesson, registryByID[lesson.ScheduleID])
		switch decision.Kind {
		case model.DecisionNotFound:
			if err := s.addLesson(ctx, room, lesson); err != nil {
				if errors.Is(err, limiter.ErrUnknownService) {
					return err
				}
				s.logger.Error("Failed to add lesson, will retry next run",
					zap.String("schedule_id", lesson.ScheduleID),
					zap.Any("payload", lesson.Raw),
					zap.Error(err),
				)
				continue
			}
			stats.added.Add(1)

		case model.DecisionChanged:
			existing := registryByID[lesson.ScheduleID]
			if err := s.updateLesson(ctx, room, lesson, existing); err != nil {
				if errors.Is(err, limiter.ErrUnknownService) {
					return err
				}
				s.logger.Error("Failed to update lesson, will retry next run",
					zap.String("schedule_id", lesson.ScheduleID),
					zap.String("registry_id", decision.RegistryID),
					zap.Any("payload", lesson.Raw),
					zap.Error(err),
				)
				continue
			}
			stats.updated.Add(1)

		case model.DecisionUnchanged:
			stats.unchanged.Add(1)
		}
	}

	// Записи реестра без пары в текущем расписании: занятие отменено
	for scheduleID, registryLesson := range registryByID {
		if seen[scheduleID] {
			continue
		}
		if err := s.deleteLesson(ctx, registryLesson); err != nil {
			if errors.Is(err, limiter.ErrUnknownService) {
				return err
			}
			s.logger.Error("Failed to delete lesson, will retry next run",
				zap.String("schedule_id", scheduleID),
				zap.String("registry_id", registryLesson.RegistryID),
				zap.Error(err),
			)
			continue
		}
		stats.deleted.Add(1)
	}

	return nil
}

// fetchScheduleLessons читает и нормализует занятия аудитории из РУЗ.
// Некорректные записи пропускаются, остальные обрабатываются.
func (s *SyncService) fetchScheduleLessons(ctx context.Context, room model.Room, from, to time.Time) ([]*model.Lesson, error) {
	var rawLessons []map[string]any
	err := s.callService(ctx, limiter.ServiceRUZ, func(ctx context.Context) error {
		var fetchErr error
		rawLessons, fetchErr = s.schedule.Lessons(ctx, room.RUZID, from, to)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	lessons := make([]*model.Lesson, 0, len(rawLessons))
	for _, raw := range rawLessons {
		lesson, err := model.NormalizeRUZ(raw)
		if err != nil {
			s.logger.Warn("Skipping malformed RUZ record",
				zap.String("room_id", room.RUZID),
				zap.Error(err),
			)
			continue
		}
		lessons = append(lessons, lesson)
	}
	return lessons, nil
}

// fetchRegistrySnapshot читает записи реестра по аудитории и разрешает
// дубликаты: из записей с одним schedule_id выживает запись с наименьшим
// registry_id, остальные удаляются до этапа сравнения.
func (s *SyncService) fetchRegistrySnapshot(ctx context.Context, room model.Room, from time.Time) (map[string]*model.Lesson, error) {
	var rawRecords []map[string]any
	err := s.callService(ctx, limiter.ServiceErudite, func(ctx context.Context) error {
		var fetchErr error
		rawRecords, fetchErr = s.registry.LessonsInRoom(ctx, room.RUZID, from)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	byScheduleID := make(map[string][]*model.Lesson)
	for _, raw := range rawRecords {
		lesson, err := model.NormalizeErudite(raw)
		if err != nil {
			s.logger.Warn("Skipping malformed Erudite record",
				zap.String("room_id", room.RUZID),
				zap.Error(err),
			)
			continue
		}
		byScheduleID[lesson.ScheduleID] = append(byScheduleID[lesson.ScheduleID], lesson)
	}

	snapshot := make(map[string]*model.Lesson, len(byScheduleID))
	for scheduleID, candidates := range byScheduleID {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].RegistryID < candidates[j].RegistryID
		})
		snapshot[scheduleID] = candidates[0]

		for _, duplicate := range candidates[1:] {
			s.logger.Warn("Duplicate registry record, deleting",
				zap.String("schedule_id", scheduleID),
				zap.String("registry_id", duplicate.RegistryID),
				zap.String("survivor_id", candidates[0].RegistryID),
			)
			err := s.callService(ctx, limiter.ServiceErudite, func(ctx context.Context) error {
				return s.registry.DeleteLesson(ctx, duplicate.RegistryID)
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return snapshot, nil
}

// enrichWithGroupEmails прикрепляет почты потока к занятиям с кодом
// потока. Пустой результат — норма, ошибка справочника не валит комнату.
func (s *SyncService) enrichWithGroupEmails(ctx context.Context, lessons []*model.Lesson, stats *Stats) {
	for _, lesson := range lessons {
		if lesson.CourseCode == "" {
			stats.noCourseCode.Add(1)
			continue
		}

		var emails []string
		err := s.callService(ctx, limiter.ServiceErudite, func(ctx context.Context) error {
			var lookupErr error
			emails, lookupErr = s.registry.CourseEmails(ctx, lesson.CourseCode)
			return lookupErr
		})
		if err != nil {
			s.logger.Error("Course email lookup failed",
				zap.String("course_code", lesson.CourseCode),
				zap.Error(err),
			)
			stats.noGroupEmails.Add(1)
			continue
		}

		if len(emails) == 0 {
			s.logger.Info("Stream has no groups", zap.String("course_code", lesson.CourseCode))
			stats.noGroupEmails.Add(1)
			continue
		}

		lesson.AttachGroupEmails(emails)
		stats.withGroupEmails.Add(1)
	}
}

// addLesson — двухфазная запись нового занятия: сначала регистрация
// в Erudite (последующие update/delete ключуются записью реестра,
// а не событием), затем событие календаря, затем привязка события
// сохраняется обратно в запись реестра.
func (s *SyncService) addLesson(ctx context.Context, room model.Room, lesson *model.Lesson) error {
	var registryID string
	err := s.callService(ctx, limiter.ServiceErudite, func(ctx context.Context) error {
		var createErr error
		registryID, createErr = s.registry.CreateLesson(ctx, lesson.Transport())
		return createErr
	})
	if err != nil {
		return err
	}
	lesson.RegistryID = registryID

	if room.CalendarID == "" {
		s.logger.Debug("Room has no calendar mapping, skipping event",
			zap.String("room_id", room.RUZID),
			zap.String("schedule_id", lesson.ScheduleID),
		)
		return nil
	}

	var eventID string
	err = s.callService(ctx, limiter.ServiceCalendar, func(ctx context.Context) error {
		var createErr error
		eventID, createErr = s.calendar.CreateEvent(ctx, room.CalendarID, lesson)
		return createErr
	})
	if err != nil {
		// Запись реестра уже есть: следующий запуск увидит отсутствие
		// привязки и дообновит её
		return err
	}
	lesson.SetCalendarEvent(room.CalendarID, eventID)

	return s.callService(ctx, limiter.ServiceErudite, func(ctx context.Context) error {
		return s.registry.UpdateLesson(ctx, lesson.RegistryID, lesson.Transport())
	})
}

// updateLesson обновляет событие календаря, затем запись реестра
// с новым payload и привязкой.
func (s *SyncService) updateLesson(ctx context.Context, room model.Room, lesson *model.Lesson, existing *model.Lesson) error {
	lesson.RegistryID = existing.RegistryID
	lesson.SetCalendarEvent(existing.CalendarID, existing.EventID)

	switch {
	case lesson.EventID != "":
		err := s.callService(ctx, limiter.ServiceCalendar, func(ctx context.Context) error {
			return s.calendar.UpdateEvent(ctx, lesson.CalendarID, lesson.EventID, lesson)
		})
		if err != nil {
			return err
		}
	case room.CalendarID != "":
		// Привязки нет (прошлый запуск оборвался между реестром и
		// календарём) — досоздаём событие
		var eventID string
		err := s.callService(ctx, limiter.ServiceCalendar, func(ctx context.Context) error {
			var createErr error
			eventID, createErr = s.calendar.CreateEvent(ctx, room.CalendarID, lesson)
			return createErr
		})
		if err != nil {
			return err
		}
		lesson.SetCalendarEvent(room.CalendarID, eventID)
	}

	return s.callService(ctx, limiter.ServiceErudite, func(ctx context.Context) error {
		return s.registry.UpdateLesson(ctx, lesson.RegistryID, lesson.Transport())
	})
}

// deleteLesson убирает отменённое занятие: сначала событие календаря
// (видимое пользователю), затем запись реестра. При сбое посередине
// остаётся осиротевшая запись реестра — её доудалит следующий запуск;
// обратный порядок оставил бы пользователю событие-призрак.
func (s *SyncService) deleteLesson(ctx context.Context, lesson *model.Lesson) error {
	if lesson.EventID != "" {
		err := s.callService(ctx, limiter.ServiceCalendar, func(ctx context.Context) error {
			return s.calendar.DeleteEvent(ctx, lesson.CalendarID, lesson.EventID)
		})
		if err != nil {
			return err
		}
	}

	return s.callService(ctx, limiter.ServiceErudite, func(ctx context.Context) error {
		return s.registry.DeleteLesson(ctx, lesson.RegistryID)
	})
}

// callService выполняет операцию под слотом лимитера с повтором
// транзиентных сетевых ошибок. Слот не удерживается между попытками.
// 4xx-класс и прикладные ошибки не ретраятся.
func (s *SyncService) callService(ctx context.Context, svc limiter.Service, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(4, retry.NewExponential(time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.limiter.Do(ctx, svc, op)
		if err == nil {
			return nil
		}
		if httpx.IsTransient(err) {
			s.logger.Error("Transient error, retrying with backoff",
				zap.String("service", string(svc)),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
}
