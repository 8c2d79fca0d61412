package service

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"

	"github.com/miem-nvr/sink/internal/model"
)

// Notifier отправляет итоги запуска батча в операторский Telegram-чат.
// Необязательный компонент: без токена статистика остаётся в логах.
type Notifier struct {
	bot    *bot.Bot
	chatID int64
	logger *zap.Logger
}

// NewNotifier создаёт нотификатор. Пустой токен — нотификации выключены,
// возвращается nil без ошибки.
func NewNotifier(token string, chatID int64, logger *zap.Logger) (*Notifier, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}

	botInstance, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Notifier{
		bot:    botInstance,
		chatID: chatID,
		logger: logger,
	}, nil
}

// NotifyRun шлёт в чат сводку завершённого запуска.
func (n *Notifier) NotifyRun(ctx context.Context, run *model.SyncRun) {
	text := fmt.Sprintf(
		"Синхронизация завершена (run %s)\n"+
			"Аудиторий: %d (ошибок: %d)\n"+
			"Добавлено: %d\nОбновлено: %d\nУдалено: %d\nБез изменений: %d\n"+
			"Без кода потока: %d\nС почтами потока: %d\nБез почт потока: %d",
		run.ID,
		run.RoomsTotal, run.RoomsFailed,
		run.LessonsAdded, run.LessonsUpdated, run.LessonsDeleted, run.LessonsUnchanged,
		run.NoCourseCode, run.WithGroupEmails, run.NoGroupEmails,
	)

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		n.logger.Error("Failed to send run summary to telegram", zap.Error(err))
	}
}
