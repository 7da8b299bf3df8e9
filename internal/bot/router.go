package bot

import (
	"log/slog"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/storefront-bot/internal/bot/handlers"
)

// Router sends registered commands to their handlers and everything else to
// the default handler, running the middleware chain for both.
type Router struct {
	mu             sync.RWMutex
	commands       map[string]handlers.Handler
	defaultHandler handlers.Handler
	middlewares    []handlers.Middleware
	log            *slog.Logger
}

// NewRouter builds a Router with empty registries.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands: make(map[string]handlers.Handler),
		log:      log,
	}
}

// RegisterCommand registers a handler for a bot command.
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd] = h
}

// Use appends a middleware to the chain. The first one registered runs outermost.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// SetDefault sets the handler for updates that are not registered commands.
func (r *Router) SetDefault(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultHandler = h
}

// Route directs the incoming update to the appropriate handler.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	handler := r.resolve(c)
	if handler == nil {
		r.log.Debug("no handler for update", slog.String("text", c.Text()))
		return nil
	}

	return r.applyMiddlewares(handler)(c)
}

func (r *Router) resolve(c telebot.Context) handlers.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c.Callback() == nil {
		if text := strings.TrimSpace(c.Text()); strings.HasPrefix(text, "/") {
			cmd := strings.Fields(text)[0]
			// strip the @botname suffix used in group chats
			if at := strings.IndexByte(cmd, '@'); at > 0 {
				cmd = cmd[:at]
			}
			if h, ok := r.commands[cmd]; ok {
				return h
			}
		}
	}

	return r.defaultHandler
}

func (r *Router) applyMiddlewares(h handlers.Handler) handlers.Handler {
	r.mu.RLock()
	middlewares := append([]handlers.Middleware(nil), r.middlewares...)
	r.mu.RUnlock()

	wrapped := h
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}
