package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

// sendTimeout bounds a single Telegram API call so a slow network can
// never back up into the scheduler.
const sendTimeout = 10 * time.Second

// Telegram delivers notifications to a chat via the Bot API. Sends are
// throttled client-side; bursts beyond the limiter are dropped rather
// than queued, since a stale notification has no value.
type Telegram struct {
	bot     *tele.Bot
	chatID  int64
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewTelegram(token string, chatID int64, log *slog.Logger) (*Telegram, error) {
	if log == nil {
		log = slog.Default()
	}
	bot, err := tele.NewBot(tele.Settings{Token: token, Offline: false})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		// One message per 3s sustained, short bursts allowed.
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 5),
		log:     log,
	}, nil
}

func (t *Telegram) Notify(_ context.Context, account string, kind Kind, detail string) {
	if !t.limiter.Allow() {
		t.log.Debug("notification dropped by throttle",
			slog.String("account", account), slog.String("kind", string(kind)))
		return
	}
	text := fmt.Sprintf("[%s] %s: %s", kind, account, detail)
	// Detached send: scheduling must never wait on the Bot API.
	go func() {
		done := make(chan error, 1)
		go func() {
			_, err := t.bot.Send(tele.ChatID(t.chatID), text)
			done <- err
		}()
		select {
		case err := <-done:
			if err != nil {
				t.log.Warn("telegram send failed",
					slog.String("kind", string(kind)), slog.Any("err", err))
			}
		case <-time.After(sendTimeout):
			t.log.Warn("telegram send timed out", slog.String("kind", string(kind)))
		}
	}()
}
