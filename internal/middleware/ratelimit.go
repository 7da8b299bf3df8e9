package middleware

import (
	"errors"
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/storefront-bot/internal/bot/handlers"
	"github.com/Proton-105/storefront-bot/internal/ratelimit"
)

const rateLimitNotice = "Слишком много сообщений. Подождите немного."

// RateLimit enforces the per-user update budget. Limiter errors let the update through.
func RateLimit(limiter ratelimit.Limiter, rules *ratelimit.Rules, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			userID := handlers.SenderID(c)
			if limiter == nil || rules == nil || userID == 0 || rules.IsWhitelisted(userID) {
				return next(c)
			}

			limit, window, err := rules.PerUser()
			if err != nil || limit <= 0 {
				return next(c)
			}

			result, err := limiter.Check(handlers.Context(c), fmt.Sprintf("user:%d", userID), limit, window)
			switch {
			case errors.Is(err, ratelimit.ErrLimitExceeded):
			case err != nil:
				log.Warn("rate limiter error", slog.Int64("user_id", userID), slog.Any("error", err))
				return next(c)
			case result == nil || result.Allowed:
				return next(c)
			}

			log.Warn("rate limit exceeded", slog.Int64("user_id", userID))
			return c.Send(rateLimitNotice)
		}
	}
}
