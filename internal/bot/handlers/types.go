// Package handlers holds the handler and middleware types shared by the bot
// router and the update middlewares.
package handlers

import (
	"context"

	telebot "gopkg.in/telebot.v3"
)

// Handler processes one Telegram update.
type Handler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

const contextKey = "request_context"

// WithContext attaches ctx to the update so later handlers share it.
func WithContext(c telebot.Context, ctx context.Context) {
	c.Set(contextKey, ctx)
}

// Context returns the context attached to the update, or a background context.
func Context(c telebot.Context) context.Context {
	if c != nil {
		if ctx, ok := c.Get(contextKey).(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// SenderID returns the id of the user who sent the update, or 0.
func SenderID(c telebot.Context) int64 {
	if c == nil || c.Sender() == nil {
		return 0
	}
	return c.Sender().ID
}
