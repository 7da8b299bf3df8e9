// Package middleware holds the update filters applied before the workflow sees an input.
package middleware

import (
	"log/slog"
	"strconv"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/storefront-bot/internal/bot/handlers"
	"github.com/Proton-105/storefront-bot/internal/idempotency"
)

// DefaultUpdateTTL bounds how long a processed update key is remembered.
const DefaultUpdateTTL = 24 * time.Hour

// Idempotency drops updates whose key was already claimed, so Telegram
// redeliveries never reach the workflow twice. Store errors let the update through.
func Idempotency(store idempotency.Store, ttl time.Duration, log *slog.Logger) handlers.Middleware {
	if store == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if ttl <= 0 {
		ttl = DefaultUpdateTTL
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			key := updateKey(c)
			if key == "" {
				return next(c)
			}

			claimed, err := store.Claim(handlers.Context(c), key, ttl)
			if err != nil {
				log.Warn("idempotency check failed", slog.String("key", key), slog.Any("error", err))
				return next(c)
			}
			if !claimed {
				log.Debug("duplicate update dropped", slog.String("key", key))
				return nil
			}

			return next(c)
		}
	}
}

func updateKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	chatID := int64(0)
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}

	if cb := c.Callback(); cb != nil && cb.ID != "" {
		return idempotency.UpdateKey("cb", chatID, cb.ID)
	}

	if msg := c.Message(); msg != nil && msg.ID != 0 {
		return idempotency.UpdateKey("msg", chatID, strconv.Itoa(msg.ID))
	}

	return ""
}
