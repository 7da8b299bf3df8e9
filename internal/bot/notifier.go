package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/storefront-bot/internal/bot/keyboard"
	"github.com/Proton-105/storefront-bot/internal/engine"
	"github.com/Proton-105/storefront-bot/internal/notify"
)

// messenger is the subset of telebot.Bot the notifier needs.
type messenger interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
	Delete(msg telebot.Editable) error
}

// Notifier delivers workflow messages through Telegram.
type Notifier struct {
	api    messenger
	typing func(chatID int64) error
	delay  time.Duration
	log    *slog.Logger
}

var _ notify.Notifier = (*Notifier)(nil)

// NewNotifier wraps tb. A positive typingDelay shows a typing indicator before each message.
func NewNotifier(tb *telebot.Bot, typingDelay time.Duration, log *slog.Logger) *Notifier {
	n := newNotifier(tb, typingDelay, log)
	n.typing = func(chatID int64) error {
		return tb.Notify(telebot.ChatID(chatID), telebot.Typing)
	}
	return n
}

func newNotifier(api messenger, typingDelay time.Duration, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		api:   api,
		delay: typingDelay,
		log:   log.With(slog.String("component", "notifier")),
	}
}

func (n *Notifier) Send(ctx context.Context, userID int64, msg notify.Message) (int, error) {
	if err := n.simulateTyping(ctx, userID); err != nil {
		return 0, err
	}

	choices, nav := keyboard.Split(msg.Options, engine.IsNavigation)
	markup := keyboard.Options(choices, nav...)

	sent, err := n.api.Send(telebot.ChatID(userID), msg.Text, markup)
	if err != nil {
		return 0, fmt.Errorf("send %s message: %w", msg.Kind, err)
	}
	if sent == nil {
		return 0, nil
	}
	return sent.ID, nil
}

func (n *Notifier) Delete(_ context.Context, userID int64, messageID int) error {
	if messageID == 0 {
		return nil
	}
	err := n.api.Delete(&telebot.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    userID,
	})
	if err != nil {
		return fmt.Errorf("delete message %d: %w", messageID, err)
	}
	return nil
}

func (n *Notifier) simulateTyping(ctx context.Context, userID int64) error {
	if n.delay <= 0 {
		return nil
	}

	if n.typing != nil {
		if err := n.typing(userID); err != nil {
			n.log.Debug("typing indicator failed", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}

	timer := time.NewTimer(n.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
