package model

import "time"

// SyncRun — итог одного запуска батча синхронизации.
// Сохраняется в Postgres (таблица sync_runs) как история для операторов.
type SyncRun struct {
	ID         string    `json:"id"` // uuid
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	RoomsTotal  int64 `json:"rooms_total"`
	RoomsFailed int64 `json:"rooms_failed"`

	LessonsAdded     int64 `json:"lessons_added"`
	LessonsUpdated   int64 `json:"lessons_updated"`
	LessonsDeleted   int64 `json:"lessons_deleted"`
	LessonsUnchanged int64 `json:"lessons_unchanged"`

	NoCourseCode    int64 `json:"lessons_with_no_course_code"`
	WithGroupEmails int64 `json:"lessons_with_group"`
	NoGroupEmails   int64 `json:"lessons_with_no_group"`
}
