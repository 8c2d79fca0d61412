package model

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Занятия в РУЗ и Erudite живут в московском времени.
var moscow = mustLoadLocation("Europe/Moscow")

// Moscow возвращает часовую зону, в которой живёт расписание.
func Moscow() *time.Location {
	return moscow
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("load location " + name + ": " + err.Error())
	}
	return loc
}

// Lesson — каноническое занятие, единица синхронизации.
// Создаётся нормализатором из сырой записи РУЗ или Erudite и после этого
// не мутируется (кроме обогащения почтами через AttachGroupEmails,
// которое выполняется до принятия решения add/update).
type Lesson struct {
	// ScheduleID — lessonOid из РУЗ, ключ сопоставления двух систем
	ScheduleID string
	// RegistryID — _id записи в Erudite, появляется после первой регистрации
	RegistryID string
	// EventID и CalendarID — привязка к событию Google Calendar
	EventID    string
	CalendarID string

	RoomID string
	Start  time.Time
	End    time.Time

	Summary  string
	Location string

	// CourseCode — код потока (часть группы до '#'), пустая строка если
	// РУЗ не передал группу
	CourseCode  string
	GroupEmails []string

	// Raw — канонический transport-payload (без _id и gcalendar_* ключей).
	// Обе стороны сравнения строятся из JSON-декодированных значений,
	// поэтому сравнение через reflect.DeepEqual корректно.
	Raw map[string]any
}

var (
	camelFirst = regexp.MustCompile("(.)([A-Z][a-z]+)")
	camelRest  = regexp.MustCompile("([a-z0-9])([A-Z])")
)

// camelToSnake переводит camelCase-ключи РУЗ в snake_case: lessonOid → lesson_oid.
func camelToSnake(name string) string {
	name = camelFirst.ReplaceAllString(name, "${1}_${2}")
	return strings.ToLower(camelRest.ReplaceAllString(name, "${1}_${2}"))
}

// stringify приводит JSON-значение к строковому идентификатору.
// Числа из JSON декодируются как float64, идентификаторы РУЗ — целые.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

func stringOrEmpty(v any) string {
	s, _ := v.(string)
	return s
}

// NormalizeRUZ строит каноническое занятие из сырой записи РУЗ.
// Обязательные поля: lessonOid, date, beginLesson, endLesson —
// при их отсутствии возвращается MalformedRecordError.
func NormalizeRUZ(raw map[string]any) (*Lesson, error) {
	scheduleID := stringify(raw["lessonOid"])
	if scheduleID == "" {
		return nil, &MalformedRecordError{Source: SourceRUZ, Field: "lessonOid"}
	}

	date := stringOrEmpty(raw["date"])
	begin := stringOrEmpty(raw["beginLesson"])
	end := stringOrEmpty(raw["endLesson"])
	switch {
	case date == "":
		return nil, &MalformedRecordError{Source: SourceRUZ, Field: "date"}
	case begin == "":
		return nil, &MalformedRecordError{Source: SourceRUZ, Field: "beginLesson"}
	case end == "":
		return nil, &MalformedRecordError{Source: SourceRUZ, Field: "endLesson"}
	}

	// РУЗ отдаёт дату с точками: 2024.09.01
	dashedDate := strings.ReplaceAll(date, ".", "-")

	start, err := parseMoscow(dashedDate, begin)
	if err != nil {
		return nil, &MalformedRecordError{Source: SourceRUZ, Field: "beginLesson"}
	}
	finish, err := parseMoscow(dashedDate, end)
	if err != nil {
		return nil, &MalformedRecordError{Source: SourceRUZ, Field: "endLesson"}
	}
	if !start.Before(finish) {
		return nil, &MalformedRecordError{Source: SourceRUZ, Field: "endLesson"}
	}

	payload := map[string]any{
		"date":       dashedDate,
		"start_time": begin,
		"end_time":   end,
		"summary":    raw["discipline"],
		"location":   fmt.Sprintf("%s/%s", stringOrEmpty(raw["auditorium"]), stringOrEmpty(raw["building"])),
	}

	// Остальные ключи РУЗ переносятся как есть с префиксом ruz_
	for key, val := range raw {
		switch key {
		case "date", "beginLesson", "endLesson":
			continue
		}
		payload["ruz_"+camelToSnake(key)] = val
	}
	payload["ruz_url"] = payload["ruz_url1"]

	courseCode := ""
	if group := stringOrEmpty(raw["group"]); group != "" {
		courseCode = strings.SplitN(group, "#", 2)[0]
	}
	payload["course_code"] = courseCode

	description := fmt.Sprintf(
		"Поток: %s\nПреподаватель: %s\nТип занятия: %s\n",
		courseCode, stringOrEmpty(raw["lecturer"]), stringOrEmpty(raw["kindOfWork"]),
	)
	if url := stringOrEmpty(raw["url1"]); url != "" {
		description += fmt.Sprintf("URL: %s\n", url)
	}
	payload["description"] = description

	if email := stringOrEmpty(raw["lecturerEmail"]); email != "" {
		payload["miem_lecturer_email"] = strings.SplitN(email, "@", 2)[0] + "@miem.hse.ru"
	}

	return &Lesson{
		ScheduleID: scheduleID,
		RoomID:     stringify(raw["auditoriumOid"]),
		Start:      start,
		End:        finish,
		Summary:    stringOrEmpty(raw["discipline"]),
		Location:   stringOrEmpty(payload["location"]),
		CourseCode: courseCode,
		Raw:        payload,
	}, nil
}

// NormalizeErudite строит каноническое занятие из записи Erudite.
// Служебные ключи (_id, gcalendar_event_id, gcalendar_calendar_id)
// выносятся из payload в поля Lesson, чтобы сравнение с РУЗ-стороной
// шло по одинаковому набору ключей.
func NormalizeErudite(raw map[string]any) (*Lesson, error) {
	payload := make(map[string]any, len(raw))
	for key, val := range raw {
		payload[key] = val
	}

	registryID := stringify(payload["_id"])
	delete(payload, "_id")
	eventID := stringOrEmpty(payload["gcalendar_event_id"])
	delete(payload, "gcalendar_event_id")
	calendarID := stringOrEmpty(payload["gcalendar_calendar_id"])
	delete(payload, "gcalendar_calendar_id")

	scheduleID := stringify(payload["ruz_lesson_oid"])
	if scheduleID == "" {
		return nil, &MalformedRecordError{Source: SourceErudite, Field: "ruz_lesson_oid"}
	}

	date := stringOrEmpty(payload["date"])
	begin := stringOrEmpty(payload["start_time"])
	end := stringOrEmpty(payload["end_time"])
	switch {
	case date == "":
		return nil, &MalformedRecordError{Source: SourceErudite, Field: "date"}
	case begin == "":
		return nil, &MalformedRecordError{Source: SourceErudite, Field: "start_time"}
	case end == "":
		return nil, &MalformedRecordError{Source: SourceErudite, Field: "end_time"}
	}

	start, err := parseMoscow(date, begin)
	if err != nil {
		return nil, &MalformedRecordError{Source: SourceErudite, Field: "start_time"}
	}
	finish, err := parseMoscow(date, end)
	if err != nil {
		return nil, &MalformedRecordError{Source: SourceErudite, Field: "end_time"}
	}

	return &Lesson{
		ScheduleID:  scheduleID,
		RegistryID:  registryID,
		EventID:     eventID,
		CalendarID:  calendarID,
		RoomID:      stringify(payload["ruz_auditorium_oid"]),
		Start:       start,
		End:         finish,
		Summary:     stringOrEmpty(payload["summary"]),
		Location:    stringOrEmpty(payload["location"]),
		CourseCode:  stringOrEmpty(payload["course_code"]),
		GroupEmails: stringSlice(payload["grp_emails"]),
		Raw:         payload,
	}, nil
}

func parseMoscow(date, clock string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02T15:04", date+"T"+clock, moscow)
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, stringOrEmpty(item))
	}
	return out
}

// AttachGroupEmails прикрепляет к занятию почты потока. Вызывается до
// принятия решения add/update, чтобы сохранённый payload уже содержал почты.
func (l *Lesson) AttachGroupEmails(emails []string) {
	l.GroupEmails = emails
	anys := make([]any, len(emails))
	for i, email := range emails {
		anys[i] = email
	}
	l.Raw["grp_emails"] = anys
}

// SetCalendarEvent запоминает привязку занятия к событию календаря.
// Привязка не входит в Raw — она добавляется на этапе сериализации.
func (l *Lesson) SetCalendarEvent(calendarID, eventID string) {
	l.CalendarID = calendarID
	l.EventID = eventID
}

// Transport сериализует занятие в payload для Erudite. Операция обратна
// NormalizeErudite: NormalizeErudite(l.Transport()) возвращает занятие,
// по полям равное исходному.
func (l *Lesson) Transport() map[string]any {
	payload := make(map[string]any, len(l.Raw)+3)
	for key, val := range l.Raw {
		payload[key] = val
	}
	if l.RegistryID != "" {
		payload["_id"] = l.RegistryID
	}
	if l.EventID != "" {
		payload["gcalendar_event_id"] = l.EventID
	}
	if l.CalendarID != "" {
		payload["gcalendar_calendar_id"] = l.CalendarID
	}
	return payload
}

// PayloadEquals сравнивает канонические payload двух занятий.
// Служебные ключи Erudite в Raw не входят, поэтому сравнение 1:1.
func (l *Lesson) PayloadEquals(other *Lesson) bool {
	return reflect.DeepEqual(l.Raw, other.Raw)
}
