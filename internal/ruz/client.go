// Пакет ruz — HTTP-клиент системы расписаний РУЗ.
// РУЗ — источник истины: отсюда читаются список аудиторий здания и
// занятия аудитории за окно синхронизации.
package ruz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/miem-nvr/sink/internal/cache"
	"github.com/miem-nvr/sink/internal/httpx"
	"github.com/miem-nvr/sink/internal/model"
)

// Аудитории этого типа не имеют расписания и не синхронизируются.
const nonClassroomType = "Неаудиторные"

// Config — параметры клиента РУЗ.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client — клиент РУЗ. Список аудиторий кэшируется с TTL:
// состав здания меняется редко, а РУЗ плохо переносит нагрузку.
type Client struct {
	baseURL    string
	httpClient *http.Client
	roomsCache *cache.Cache[[]model.Room]
	logger     *zap.Logger
}

// New создаёт клиент РУЗ. roomsCache может быть nil — тогда каждое
// обращение идёт в сеть.
func New(cfg Config, roomsCache *cache.Cache[[]model.Room], logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		roomsCache: roomsCache,
		logger:     logger,
	}
}

// Rooms возвращает аудитории здания. РУЗ отдаёт все аудитории разом,
// фильтрация по зданию и типу выполняется на клиенте.
func (c *Client) Rooms(ctx context.Context, buildingID string) ([]model.Room, error) {
	if c.roomsCache != nil {
		if rooms, ok := c.roomsCache.Get(buildingID); ok {
			return rooms, nil
		}
	}

	var all []map[string]any
	if err := c.getJSON(ctx, c.baseURL+"/auditoriums?buildingoid=0", &all); err != nil {
		return nil, fmt.Errorf("list auditoriums: %w", err)
	}

	var rooms []model.Room
	for _, raw := range all {
		if fmt.Sprintf("%v", raw["buildingGid"]) != buildingID {
			continue
		}
		if auditoriumType, _ := raw["typeOfAuditorium"].(string); auditoriumType == nonClassroomType {
			continue
		}
		rooms = append(rooms, model.Room{
			RUZID:      stringifyID(raw["auditoriumOid"]),
			BuildingID: buildingID,
		})
	}

	if c.roomsCache != nil {
		c.roomsCache.Set(buildingID, rooms)
	}
	return rooms, nil
}

// Lessons возвращает сырые занятия аудитории за период [from, to].
// Даты РУЗ принимает в формате с точками: 2024.09.01.
func (c *Client) Lessons(ctx context.Context, roomID string, from, to time.Time) ([]map[string]any, error) {
	params := url.Values{
		"fromdate":      {from.Format("2006.01.02")},
		"todate":        {to.Format("2006.01.02")},
		"auditoriumoid": {roomID},
	}

	var lessons []map[string]any
	if err := c.getJSON(ctx, c.baseURL+"/lessons?"+params.Encode(), &lessons); err != nil {
		return nil, fmt.Errorf("list lessons for room %s: %w", roomID, err)
	}

	c.logger.Debug("Fetched lessons from RUZ",
		zap.String("room_id", roomID),
		zap.Int("count", len(lessons)),
	)
	return lessons, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ruz request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read ruz response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &httpx.StatusError{Service: "ruz", Code: resp.StatusCode, Body: truncate(body)}
	}

	// РУЗ отвечает JSON-ом c content-type text/plain, поэтому парсим тело сами
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode ruz response: %w", err)
	}
	return nil
}

func stringifyID(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
