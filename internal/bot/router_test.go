package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/storefront-bot/internal/bot/handlers"
	apperrors "github.com/Proton-105/storefront-bot/internal/errors"
	"github.com/Proton-105/storefront-bot/pkg/logger"
)

type fakeContext struct {
	telebot.Context

	sender *telebot.User
	text   string
	store  map[string]interface{}
	sent   []interface{}
}

func newContext(userID int64, text string) *fakeContext {
	return &fakeContext{
		sender: &telebot.User{ID: userID},
		text:   text,
		store:  make(map[string]interface{}),
	}
}

func (f *fakeContext) Sender() *telebot.User         { return f.sender }
func (f *fakeContext) Callback() *telebot.Callback   { return nil }
func (f *fakeContext) Text() string                  { return f.text }
func (f *fakeContext) Get(key string) interface{}    { return f.store[key] }
func (f *fakeContext) Set(key string, v interface{}) { f.store[key] = v }

func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	f.sent = append(f.sent, what)
	return nil
}

type recordingWorkflow struct {
	userIDs []int64
	texts   []string
	ctxs    []context.Context
	err     error
	panic   bool
}

func (w *recordingWorkflow) Handle(ctx context.Context, userID int64, text string) error {
	if w.panic {
		panic("workflow exploded")
	}
	w.userIDs = append(w.userIDs, userID)
	w.texts = append(w.texts, text)
	w.ctxs = append(w.ctxs, ctx)
	return w.err
}

func newTestRouter(wf Workflow) *Router {
	errs := apperrors.NewHandler(nil, false)
	r := NewRouter(nil)
	r.Use(ContextMiddleware)
	r.Use(RecoveryMiddleware(nil, errs))
	r.Use(ErrorHandlingMiddleware(errs))
	r.RegisterCommand(CommandHelp, func(c telebot.Context) error { return c.Send(helpText) })
	r.SetDefault(NewDispatcher(wf, nil).Dispatch)
	return r
}

func TestRouterForwardsTextToWorkflow(t *testing.T) {
	wf := &recordingWorkflow{}
	r := newTestRouter(wf)

	require.NoError(t, r.Route(newContext(7, "  CityA ")))
	require.NoError(t, r.Route(newContext(7, "/start")))

	assert.Equal(t, []int64{7, 7}, wf.userIDs)
	assert.Equal(t, []string{"CityA", "/start"}, wf.texts)
	assert.NotEmpty(t, logger.CorrelationIDFromContext(wf.ctxs[0]))
	assert.NotEqual(t,
		logger.CorrelationIDFromContext(wf.ctxs[0]),
		logger.CorrelationIDFromContext(wf.ctxs[1]),
	)
}

func TestRouterAnswersHelp(t *testing.T) {
	wf := &recordingWorkflow{}
	r := newTestRouter(wf)

	c := newContext(7, "/help@storefront_bot")
	require.NoError(t, r.Route(c))

	assert.Empty(t, wf.texts)
	assert.Equal(t, []interface{}{helpText}, c.sent)
}

func TestRouterReportsWorkflowErrors(t *testing.T) {
	wf := &recordingWorkflow{err: apperrors.NewSessionCorrupt("broken")}
	r := newTestRouter(wf)

	c := newContext(7, "x")
	require.NoError(t, r.Route(c))

	require.Len(t, c.sent, 1)
	assert.Equal(t, "Сессия устарела. Начнём заново", c.sent[0])
}

func TestRouterRecoversPanics(t *testing.T) {
	r := newTestRouter(&recordingWorkflow{panic: true})

	c := newContext(7, "x")
	require.NoError(t, r.Route(c))
	require.Len(t, c.sent, 1)
}

func TestDispatcherIgnoresMissingSender(t *testing.T) {
	wf := &recordingWorkflow{err: errors.New("must not be called")}
	d := NewDispatcher(wf, nil)

	c := newContext(0, "x")
	c.sender = nil
	require.NoError(t, d.Dispatch(c))
	assert.Empty(t, wf.texts)
}

func TestContextMiddlewareKeepsExistingContext(t *testing.T) {
	c := newContext(7, "x")
	var seen context.Context
	h := ContextMiddleware(func(c telebot.Context) error {
		seen = handlers.Context(c)
		return nil
	})

	require.NoError(t, h(c))
	id := logger.CorrelationIDFromContext(seen)
	require.NotEmpty(t, id)

	require.NoError(t, h(c))
	assert.Equal(t, id, logger.CorrelationIDFromContext(seen))
}
