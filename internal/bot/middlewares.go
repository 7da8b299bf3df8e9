package bot

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/storefront-bot/internal/bot/handlers"
	apperrors "github.com/Proton-105/storefront-bot/internal/errors"
	"github.com/Proton-105/storefront-bot/pkg/logger"
)

const fallbackUserMessage = "Произошла ошибка. Попробуйте позже"

// ContextMiddleware gives every update a context carrying a fresh correlation id.
func ContextMiddleware(next handlers.Handler) handlers.Handler {
	return func(c telebot.Context) error {
		handlers.WithContext(c, logger.WithCorrelationID(handlers.Context(c)))
		return next(c)
	}
}

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					ctx := handlers.Context(c)
					log.ErrorContext(ctx, "panic recovered in handler",
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
						slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
					)

					userMsg := fallbackUserMessage
					if errHandler != nil {
						if msg, _ := errHandler.Handle(ctx, apperrors.NewUnexpected(fmt.Errorf("panic recovered: %v", r))); msg != "" {
							userMsg = msg
						}
					}

					if sendErr := c.Send(userMsg); sendErr != nil {
						log.Error("failed to notify user about panic", slog.Any("error", sendErr))
					}
					err = nil
				}
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware centralizes error reporting and user messaging for handler failures.
func ErrorHandlingMiddleware(errHandler *apperrors.Handler) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			userMsg := fallbackUserMessage
			if errHandler != nil {
				if msg, _ := errHandler.Handle(handlers.Context(c), err); msg != "" {
					userMsg = msg
				}
			}

			_ = c.Send(userMsg)
			return nil
		}
	}
}

// LoggingMiddleware logs each update with its correlation id. Message text is
// not logged since it may carry wallet addresses or promo codes.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			start := time.Now()
			ctx := handlers.Context(c)
			attrs := []any{
				slog.Int64("user_id", handlers.SenderID(c)),
				slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
			}

			err := next(c)

			log.InfoContext(ctx, "handled update", append(attrs,
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)...)
			return err
		}
	}
}
