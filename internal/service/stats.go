package service

import (
	"sync/atomic"

	"github.com/miem-nvr/sink/internal/model"
)

// Stats — счётчики одного запуска батча. Комнаты синхронизируются
// параллельно, поэтому инкременты атомарные; порядок не важен,
// счётчики чисто аддитивные.
type Stats struct {
	roomsTotal  atomic.Int64
	roomsFailed atomic.Int64

	added     atomic.Int64
	updated   atomic.Int64
	deleted   atomic.Int64
	unchanged atomic.Int64

	noCourseCode    atomic.Int64
	withGroupEmails atomic.Int64
	noGroupEmails   atomic.Int64
}

// FillRun переносит счётчики в итог запуска.
func (s *Stats) FillRun(run *model.SyncRun) {
	run.RoomsTotal = s.roomsTotal.Load()
	run.RoomsFailed = s.roomsFailed.Load()
	run.LessonsAdded = s.added.Load()
	run.LessonsUpdated = s.updated.Load()
	run.LessonsDeleted = s.deleted.Load()
	run.LessonsUnchanged = s.unchanged.Load()
	run.NoCourseCode = s.noCourseCode.Load()
	run.WithGroupEmails = s.withGroupEmails.Load()
	run.NoGroupEmails = s.noGroupEmails.Load()
}
