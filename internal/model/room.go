package model

import "time"

// Room — единица синхронизации: аудитория РУЗ внутри здания.
// Список комнат читается из РУЗ каждый цикл и не персистится ядром;
// CalendarID подтягивается из справочника комнат (если комната
// сопоставлена с календарём оператором).
type Room struct {
	RUZID      string `json:"ruz_id"`
	BuildingID string `json:"building_id"`
	CalendarID string `json:"calendar_id,omitempty"`
}

// RoomMapping — операторская привязка аудитории РУЗ к календарю.
// Хранится в Postgres (таблица rooms).
type RoomMapping struct {
	ID         int64     `json:"id"`
	RUZID      string    `json:"ruz_id"`
	BuildingID string    `json:"building_id"`
	CalendarID string    `json:"calendar_id"`
	CreatedAt  time.Time `json:"created_at"`
}
