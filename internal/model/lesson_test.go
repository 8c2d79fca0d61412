package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawRUZLesson() map[string]any {
	return map[string]any{
		"lessonOid":     float64(7056272),
		"date":          "2024.09.02",
		"beginLesson":   "10:00",
		"endLesson":     "11:20",
		"discipline":    "Алгебра и геометрия",
		"auditorium":    "306",
		"building":      "МИЭМ",
		"auditoriumOid": float64(3360),
		"group":         "БИВ202#1#онлайн",
		"lecturer":      "Иванов И.И.",
		"kindOfWork":    "Лекция",
		"lecturerEmail": "iivanov@hse.ru",
		"url1":          nil,
	}
}

// TestNormalizeRUZ проверяет построение канонического занятия из сырой
// записи РУЗ: извлечение полей, snake_case-префиксы, код потока.
func TestNormalizeRUZ(t *testing.T) {
	lesson, err := NormalizeRUZ(rawRUZLesson())
	require.NoError(t, err)

	assert.Equal(t, "7056272", lesson.ScheduleID)
	assert.Equal(t, "3360", lesson.RoomID)
	assert.Equal(t, "Алгебра и геометрия", lesson.Summary)
	assert.Equal(t, "306/МИЭМ", lesson.Location)
	assert.Equal(t, "БИВ202", lesson.CourseCode)
	assert.Empty(t, lesson.RegistryID)
	assert.Empty(t, lesson.EventID)

	wantStart := time.Date(2024, 9, 2, 10, 0, 0, 0, Moscow())
	wantEnd := time.Date(2024, 9, 2, 11, 20, 0, 0, Moscow())
	assert.True(t, lesson.Start.Equal(wantStart))
	assert.True(t, lesson.End.Equal(wantEnd))

	// Канонический payload — то, что будет сохранено в Erudite
	assert.Equal(t, "2024-09-02", lesson.Raw["date"])
	assert.Equal(t, "10:00", lesson.Raw["start_time"])
	assert.Equal(t, "11:20", lesson.Raw["end_time"])
	assert.Equal(t, "БИВ202", lesson.Raw["course_code"])
	assert.Equal(t, float64(7056272), lesson.Raw["ruz_lesson_oid"])
	assert.Equal(t, "Лекция", lesson.Raw["ruz_kind_of_work"])
	assert.Equal(t, "iivanov@miem.hse.ru", lesson.Raw["miem_lecturer_email"])
	assert.Nil(t, lesson.Raw["ruz_url"])

	// Сырые ключи даты/времени не попадают в payload
	assert.NotContains(t, lesson.Raw, "beginLesson")
	assert.NotContains(t, lesson.Raw, "endLesson")
}

// TestNormalizeRUZ_CourseCode: код потока — часть группы до первого '#';
// отсутствие группы — валидное состояние с пустым кодом.
func TestNormalizeRUZ_CourseCode(t *testing.T) {
	tests := []struct {
		name  string
		group any
		want  string
	}{
		{"группа с разделителем", "БИВ202#1", "БИВ202"},
		{"группа без разделителя", "БИВ202", "БИВ202"},
		{"группа отсутствует", nil, ""},
		{"пустая группа", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawRUZLesson()
			raw["group"] = tt.group

			lesson, err := NormalizeRUZ(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, lesson.CourseCode)
			assert.Equal(t, tt.want, lesson.Raw["course_code"])
		})
	}
}

// TestNormalizeRUZ_Malformed: запись без обязательного поля отклоняется
// с MalformedRecordError.
func TestNormalizeRUZ_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"нет lessonOid", func(m map[string]any) { delete(m, "lessonOid") }, "lessonOid"},
		{"нет даты", func(m map[string]any) { delete(m, "date") }, "date"},
		{"нет начала", func(m map[string]any) { delete(m, "beginLesson") }, "beginLesson"},
		{"нет конца", func(m map[string]any) { delete(m, "endLesson") }, "endLesson"},
		{"конец раньше начала", func(m map[string]any) { m["endLesson"] = "09:00" }, "endLesson"},
		{"мусор вместо времени", func(m map[string]any) { m["beginLesson"] = "later" }, "beginLesson"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawRUZLesson()
			tt.mutate(raw)

			_, err := NormalizeRUZ(raw)
			require.Error(t, err)
			assert.True(t, IsMalformed(err))

			var malformed *MalformedRecordError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, SourceRUZ, malformed.Source)
			assert.Equal(t, tt.field, malformed.Field)
		})
	}
}

// TestNormalizeErudite_RoundTrip — закон обратимости: запись реестра,
// прогнанная через normalize → Transport → normalize, совпадает по полям.
func TestNormalizeErudite_RoundTrip(t *testing.T) {
	ruzLesson, err := NormalizeRUZ(rawRUZLesson())
	require.NoError(t, err)
	ruzLesson.AttachGroupEmails([]string{"biv202@edu.hse.ru"})
	ruzLesson.RegistryID = "5f42ae1c"
	ruzLesson.SetCalendarEvent("room306@group.calendar.google.com", "evt123")

	record := ruzLesson.Transport()

	first, err := NormalizeErudite(record)
	require.NoError(t, err)
	second, err := NormalizeErudite(first.Transport())
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// Служебные ключи вынесены из payload в поля
	assert.Equal(t, "5f42ae1c", first.RegistryID)
	assert.Equal(t, "evt123", first.EventID)
	assert.Equal(t, "room306@group.calendar.google.com", first.CalendarID)
	assert.NotContains(t, first.Raw, "_id")
	assert.NotContains(t, first.Raw, "gcalendar_event_id")
	assert.NotContains(t, first.Raw, "gcalendar_calendar_id")
	assert.Equal(t, []string{"biv202@edu.hse.ru"}, first.GroupEmails)
}

// TestNormalizeErudite_Malformed: у записи реестра свои обязательные поля.
func TestNormalizeErudite_Malformed(t *testing.T) {
	record := map[string]any{
		"_id":        "abc",
		"date":       "2024-09-02",
		"start_time": "10:00",
		"end_time":   "11:20",
	}

	_, err := NormalizeErudite(record)
	require.Error(t, err)
	assert.True(t, IsMalformed(err))

	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, SourceErudite, malformed.Source)
	assert.Equal(t, "ruz_lesson_oid", malformed.Field)
}

// TestPayloadEquals: детектор изменений сравнивает канонические payload
// без служебных ключей реестра.
func TestPayloadEquals(t *testing.T) {
	ruzLesson, err := NormalizeRUZ(rawRUZLesson())
	require.NoError(t, err)

	// Запись реестра с тем же payload, но со служебными ключами
	record := ruzLesson.Transport()
	record["_id"] = "reg-1"
	record["gcalendar_event_id"] = "evt-1"
	record["gcalendar_calendar_id"] = "cal-1"
	stored, err := NormalizeErudite(record)
	require.NoError(t, err)

	assert.True(t, ruzLesson.PayloadEquals(stored))

	// Изменение содержательного поля ломает равенство
	changedRaw := rawRUZLesson()
	changedRaw["kindOfWork"] = "Семинар"
	changed, err := NormalizeRUZ(changedRaw)
	require.NoError(t, err)

	assert.False(t, changed.PayloadEquals(stored))
}

// TestDecide покрывает три исхода сверки одного занятия.
func TestDecide(t *testing.T) {
	ruzLesson, err := NormalizeRUZ(rawRUZLesson())
	require.NoError(t, err)

	record := ruzLesson.Transport()
	record["_id"] = "reg-1"
	stored, err := NormalizeErudite(record)
	require.NoError(t, err)

	assert.Equal(t, Decision{Kind: DecisionNotFound}, Decide(ruzLesson, nil))
	assert.Equal(t, Decision{Kind: DecisionUnchanged, RegistryID: "reg-1"}, Decide(ruzLesson, stored))

	changedRaw := rawRUZLesson()
	changedRaw["discipline"] = "Математический анализ"
	changed, err := NormalizeRUZ(changedRaw)
	require.NoError(t, err)

	assert.Equal(t, Decision{Kind: DecisionChanged, RegistryID: "reg-1"}, Decide(changed, stored))
}
