package ruz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/miem-nvr/sink/internal/cache"
	"github.com/miem-nvr/sink/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, roomsCache *cache.Cache[[]model.Room]) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, roomsCache, zap.NewNop())
}

// TestRooms_FiltersBuildingAndType: РУЗ отдаёт все аудитории разом;
// клиент оставляет только нужное здание и отбрасывает неаудиторные.
func TestRooms_FiltersBuildingAndType(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auditoriums", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]any{
			{"auditoriumOid": 3360, "buildingGid": 92, "typeOfAuditorium": "Учебные"},
			{"auditoriumOid": 3361, "buildingGid": 92, "typeOfAuditorium": "Неаудиторные"},
			{"auditoriumOid": 4000, "buildingGid": 15, "typeOfAuditorium": "Учебные"},
		})
	}

	client := newTestClient(t, handler, nil)
	rooms, err := client.Rooms(context.Background(), "92")
	require.NoError(t, err)

	require.Len(t, rooms, 1)
	assert.Equal(t, "3360", rooms[0].RUZID)
	assert.Equal(t, "92", rooms[0].BuildingID)
}

// TestRooms_Cached: повторный запрос здания в пределах TTL не ходит в сеть.
func TestRooms_Cached(t *testing.T) {
	requests := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		requests++
		json.NewEncoder(w).Encode([]map[string]any{
			{"auditoriumOid": 3360, "buildingGid": 92, "typeOfAuditorium": "Учебные"},
		})
	}

	roomsCache := cache.New[[]model.Room](8, time.Minute)
	client := newTestClient(t, handler, roomsCache)

	for i := 0; i < 3; i++ {
		rooms, err := client.Rooms(context.Background(), "92")
		require.NoError(t, err)
		assert.Len(t, rooms, 1)
	}

	assert.Equal(t, 1, requests)
}

// TestLessons_DateWindow: даты передаются в формате РУЗ (с точками).
func TestLessons_DateWindow(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lessons", r.URL.Path)
		assert.Equal(t, "2024.09.02", r.URL.Query().Get("fromdate"))
		assert.Equal(t, "2024.09.03", r.URL.Query().Get("todate"))
		assert.Equal(t, "3360", r.URL.Query().Get("auditoriumoid"))

		// РУЗ отвечает JSON-ом с content-type text/plain
		w.Header().Set("Content-Type", "text/plain")
		json.NewEncoder(w).Encode([]map[string]any{
			{"lessonOid": 1, "date": "2024.09.02", "beginLesson": "10:00", "endLesson": "11:20"},
		})
	}

	client := newTestClient(t, handler, nil)

	from := time.Date(2024, 9, 2, 0, 0, 0, 0, model.Moscow())
	lessons, err := client.Lessons(context.Background(), "3360", from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, float64(1), lessons[0]["lessonOid"])
}

// TestLessons_ServerError: не-200 превращается в StatusError.
func TestLessons_ServerError(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ruz is down", http.StatusBadGateway)
	}

	client := newTestClient(t, handler, nil)
	_, err := client.Lessons(context.Background(), "3360", time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
