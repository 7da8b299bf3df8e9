package middleware

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/storefront-bot/internal/bot/handlers"
	"github.com/Proton-105/storefront-bot/internal/restrict"
)

// Access silently ignores users restricted after a completed order. Admins
// are never restricted. Lookup errors let the update through.
func Access(store restrict.Store, isAdmin func(int64) bool, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			userID := handlers.SenderID(c)
			if store == nil || userID == 0 || (isAdmin != nil && isAdmin(userID)) {
				return next(c)
			}

			restricted, err := store.IsRestricted(handlers.Context(c), userID)
			if err != nil {
				log.Warn("restriction lookup failed", slog.Int64("user_id", userID), slog.Any("error", err))
				return next(c)
			}
			if restricted {
				log.Debug("update from restricted user ignored", slog.Int64("user_id", userID))
				return nil
			}

			return next(c)
		}
	}
}
