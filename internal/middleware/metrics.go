package middleware

import (
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/storefront-bot/internal/bot/handlers"
	"github.com/Proton-105/storefront-bot/pkg/metrics"
)

// Metrics measures handling time per update kind.
func Metrics(next handlers.Handler) handlers.Handler {
	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordCommand(updateKind(c), status, time.Since(start))

		return err
	}
}

// updateKind keeps label cardinality bounded: free text is never used as a label.
func updateKind(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}
	if c.Callback() != nil {
		return "callback"
	}

	text := c.Text()
	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		if len(cmd) <= 32 {
			return cmd
		}
	}
	if text != "" {
		return "text"
	}
	return "unknown"
}
