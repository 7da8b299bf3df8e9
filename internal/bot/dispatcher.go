package bot

import (
	"context"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/storefront-bot/internal/bot/handlers"
)

// Workflow consumes one text input from a user.
type Workflow interface {
	Handle(ctx context.Context, userID int64, text string) error
}

// Dispatcher hands text updates to the ordering workflow.
type Dispatcher struct {
	workflow Workflow
	log      *slog.Logger
}

// NewDispatcher creates a Dispatcher for workflow.
func NewDispatcher(workflow Workflow, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		workflow: workflow,
		log:      log,
	}
}

// Dispatch forwards the update text, or callback data, to the workflow.
func (d *Dispatcher) Dispatch(c telebot.Context) error {
	userID := handlers.SenderID(c)
	if userID == 0 {
		d.log.Warn("cannot dispatch without sender information")
		return nil
	}

	text := c.Text()
	if cb := c.Callback(); cb != nil {
		text = cb.Data
		_ = c.Respond()
	}

	return d.workflow.Handle(handlers.Context(c), userID, strings.TrimSpace(text))
}
