// Пакет gcalendar — HTTP-клиент Google Calendar API v3.
// Создаёт/обновляет/удаляет события, зеркалящие занятия. OAuth и
// обновление токена остаются снаружи: клиент получает готовый токен
// через TokenProvider.
package gcalendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/miem-nvr/sink/internal/httpx"
	"github.com/miem-nvr/sink/internal/model"
)

// TokenProvider возвращает действующий OAuth-токен для запросов к календарю.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken — провайдер с фиксированным токеном из конфигурации.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// Config — параметры клиента календаря.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client — клиент Google Calendar.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider
	logger        *zap.Logger
}

// New создаёт клиент календаря.
func New(cfg Config, tokenProvider TokenProvider, logger *zap.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		tokenProvider: tokenProvider,
		logger:        logger,
	}
}

// CreateEvent создаёт событие занятия и возвращает его id.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, lesson *model.Lesson) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/calendars/%s/events", calendarID)
	if err := c.doJSON(ctx, http.MethodPost, path, eventFromLesson(lesson), &created); err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}

	c.logger.Info("Calendar event created",
		zap.String("calendar_id", calendarID),
		zap.String("event_id", created.ID),
	)
	return created.ID, nil
}

// UpdateEvent перезаписывает событие занятия.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, lesson *model.Lesson) error {
	path := fmt.Sprintf("/calendars/%s/events/%s", calendarID, eventID)
	if err := c.doJSON(ctx, http.MethodPut, path, eventFromLesson(lesson), nil); err != nil {
		return fmt.Errorf("update event %s: %w", eventID, err)
	}

	c.logger.Info("Calendar event updated",
		zap.String("calendar_id", calendarID),
		zap.String("event_id", eventID),
	)
	return nil
}

// DeleteEvent удаляет событие занятия.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	path := fmt.Sprintf("/calendars/%s/events/%s", calendarID, eventID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}

	c.logger.Info("Calendar event deleted",
		zap.String("calendar_id", calendarID),
		zap.String("event_id", eventID),
	)
	return nil
}

// event — тело события Calendar API.
type event struct {
	Summary     string     `json:"summary"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	Start       eventTime  `json:"start"`
	End         eventTime  `json:"end"`
	Attendees   []attendee `json:"attendees"`
	Reminders   reminders  `json:"reminders"`
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type attendee struct {
	Email string `json:"email"`
}

type reminders struct {
	UseDefault bool `json:"useDefault"`
}

// eventFromLesson собирает тело события из канонического занятия.
// Времена передаются как localtime + явная зона Europe/Moscow —
// так событие отображается корректно независимо от зоны календаря.
func eventFromLesson(lesson *model.Lesson) event {
	const layout = "2006-01-02T15:04:05"

	ev := event{
		Summary:     lesson.Summary,
		Location:    lesson.Location,
		Description: stringField(lesson.Raw, "description"),
		Start:       eventTime{DateTime: lesson.Start.Format(layout), TimeZone: "Europe/Moscow"},
		End:         eventTime{DateTime: lesson.End.Format(layout), TimeZone: "Europe/Moscow"},
		Attendees:   []attendee{},
		Reminders:   reminders{UseDefault: true},
	}

	if lecturerEmail := stringField(lesson.Raw, "miem_lecturer_email"); lecturerEmail != "" {
		ev.Attendees = append(ev.Attendees, attendee{Email: lecturerEmail})
	}
	for _, email := range lesson.GroupEmails {
		ev.Attendees = append(ev.Attendees, attendee{Email: email})
	}

	return ev
}

func stringField(m map[string]any, key string) string {
	val, _ := m[key].(string)
	return val
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	token, err := c.tokenProvider(ctx)
	if err != nil {
		return fmt.Errorf("obtain calendar token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calendar request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read calendar response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &httpx.StatusError{Service: "gcalendar", Code: resp.StatusCode, Body: truncate(raw)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode calendar response: %w", err)
		}
	}
	return nil
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
