// Пакет erudite — HTTP-клиент реестра занятий Erudite (NVR API).
// Реестр хранит зеркало расписания, ключ — lessonOid из РУЗ.
// Здесь же живёт справочник почтовых рассылок потоков (disciplines).
package erudite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/miem-nvr/sink/internal/cache"
	"github.com/miem-nvr/sink/internal/httpx"
)

// ErrDuplicateLesson — реестр вернул больше одной записи на один
// lessonOid. Остаётся после прерванного прошлого запуска; движок сверки
// разрешает дубликаты детерминированным удалением.
var ErrDuplicateLesson = errors.New("erudite: more than one lesson with the same schedule id")

// Config — параметры клиента Erudite.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client — клиент Erudite. Почты потоков кэшируются с TTL —
// один и тот же поток встречается во многих занятиях за цикл.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	emailsCache *cache.Cache[[]string]
	logger      *zap.Logger
}

// New создаёт клиент Erudite. emailsCache может быть nil.
func New(cfg Config, emailsCache *cache.Cache[[]string], logger *zap.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		emailsCache: emailsCache,
		logger:      logger,
	}
}

// LessonsInRoom возвращает записи реестра по аудитории начиная с from.
// Отсутствие записей — нормальный результат, не ошибка.
func (c *Client) LessonsInRoom(ctx context.Context, roomID string, from time.Time) ([]map[string]any, error) {
	params := url.Values{
		"ruz_auditorium_oid": {roomID},
		"fromdate":           {from.Format(time.RFC3339)},
	}

	var lessons []map[string]any
	err := c.doJSON(ctx, http.MethodGet, "/lessons?"+params.Encode(), nil, &lessons)
	if err != nil {
		var statusErr *httpx.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("list lessons in room %s: %w", roomID, err)
	}
	return lessons, nil
}

// FindLesson ищет запись по lessonOid РУЗ. Возвращает nil без ошибки,
// если записи нет, и ErrDuplicateLesson, если записей больше одной.
func (c *Client) FindLesson(ctx context.Context, scheduleID string) (map[string]any, error) {
	params := url.Values{"ruz_lesson_oid": {scheduleID}}

	var lessons []map[string]any
	err := c.doJSON(ctx, http.MethodGet, "/lessons?"+params.Encode(), nil, &lessons)
	if err != nil {
		var statusErr *httpx.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("find lesson %s: %w", scheduleID, err)
	}

	switch len(lessons) {
	case 0:
		return nil, nil
	case 1:
		return lessons[0], nil
	default:
		return nil, fmt.Errorf("lesson %s: %w", scheduleID, ErrDuplicateLesson)
	}
}

// CreateLesson регистрирует занятие в реестре и возвращает присвоенный id.
func (c *Client) CreateLesson(ctx context.Context, payload map[string]any) (string, error) {
	var created map[string]any
	if err := c.doJSON(ctx, http.MethodPost, "/lessons", payload, &created); err != nil {
		return "", fmt.Errorf("create lesson: %w", err)
	}

	id := firstString(created, "id", "_id")
	if id == "" {
		return "", fmt.Errorf("create lesson: response carries no id: %v", created)
	}

	c.logger.Info("Lesson created in Erudite", zap.String("registry_id", id))
	return id, nil
}

// UpdateLesson перезаписывает payload записи реестра.
func (c *Client) UpdateLesson(ctx context.Context, registryID string, payload map[string]any) error {
	if err := c.doJSON(ctx, http.MethodPut, "/lessons/"+registryID, payload, nil); err != nil {
		return fmt.Errorf("update lesson %s: %w", registryID, err)
	}

	c.logger.Info("Lesson updated in Erudite", zap.String("registry_id", registryID))
	return nil
}

// DeleteLesson удаляет запись реестра. Отсутствие записи (404) не ошибка:
// значит, её уже удалил прошлый запуск.
func (c *Client) DeleteLesson(ctx context.Context, registryID string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/lessons/"+registryID, nil, nil)
	if err != nil {
		var statusErr *httpx.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			c.logger.Info("Lesson already absent in Erudite", zap.String("registry_id", registryID))
			return nil
		}
		return fmt.Errorf("delete lesson %s: %w", registryID, err)
	}

	c.logger.Info("Lesson deleted from Erudite", zap.String("registry_id", registryID))
	return nil
}

// CourseEmails возвращает почты рассылки потока по его коду.
// Пустой список — валидный результат: у потока нет групп.
func (c *Client) CourseEmails(ctx context.Context, courseCode string) ([]string, error) {
	if c.emailsCache != nil {
		if emails, ok := c.emailsCache.Get(courseCode); ok {
			return emails, nil
		}
	}

	params := url.Values{"course_code": {courseCode}}

	// Ответ не типизирован: список дисциплин либо объект-сообщение
	// "не найдено", поэтому декодируем в any и разбираем сами
	var data any
	err := c.doJSON(ctx, http.MethodGet, "/disciplines?"+params.Encode(), nil, &data)
	if err != nil {
		var statusErr *httpx.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("course emails for %s: %w", courseCode, err)
	}

	emails := parseEmails(data)
	if c.emailsCache != nil {
		c.emailsCache.Set(courseCode, emails)
	}
	return emails, nil
}

// parseEmails достаёт почты из ответа /disciplines. Не-список означает
// "дисциплина не найдена"; [""] приравнивается к пустому результату.
func parseEmails(data any) []string {
	disciplines, ok := data.([]any)
	if !ok || len(disciplines) == 0 {
		return nil
	}
	first, ok := disciplines[0].(map[string]any)
	if !ok {
		return nil
	}
	rawEmails, ok := first["emails"].([]any)
	if !ok {
		return nil
	}

	var emails []string
	for _, raw := range rawEmails {
		if email, ok := raw.(string); ok && email != "" {
			emails = append(emails, email)
		}
	}
	return emails
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("erudite request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read erudite response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &httpx.StatusError{Service: "erudite", Code: resp.StatusCode, Body: truncate(raw)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode erudite response: %w", err)
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := m[key].(string); ok && val != "" {
			return val
		}
	}
	return ""
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
