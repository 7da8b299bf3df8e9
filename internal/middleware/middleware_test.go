package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/storefront-bot/internal/bot/handlers"
	"github.com/Proton-105/storefront-bot/internal/clock"
	"github.com/Proton-105/storefront-bot/internal/idempotency"
	"github.com/Proton-105/storefront-bot/internal/ratelimit"
	"github.com/Proton-105/storefront-bot/internal/restrict"
	"github.com/Proton-105/storefront-bot/pkg/config"
)

// fakeContext implements the parts of telebot.Context the middlewares touch.
type fakeContext struct {
	telebot.Context

	sender *telebot.User
	msg    *telebot.Message
	store  map[string]interface{}
	sent   []interface{}
}

func newContext(userID int64, msgID int, text string) *fakeContext {
	chat := &telebot.Chat{ID: userID}
	return &fakeContext{
		sender: &telebot.User{ID: userID},
		msg:    &telebot.Message{ID: msgID, Chat: chat, Text: text},
		store:  make(map[string]interface{}),
	}
}

func (f *fakeContext) Sender() *telebot.User         { return f.sender }
func (f *fakeContext) Message() *telebot.Message     { return f.msg }
func (f *fakeContext) Callback() *telebot.Callback   { return nil }
func (f *fakeContext) Chat() *telebot.Chat           { return f.msg.Chat }
func (f *fakeContext) Text() string                  { return f.msg.Text }
func (f *fakeContext) Get(key string) interface{}    { return f.store[key] }
func (f *fakeContext) Set(key string, v interface{}) { f.store[key] = v }

func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	f.sent = append(f.sent, what)
	return nil
}

func counting(calls *int) handlers.Handler {
	return func(telebot.Context) error {
		*calls++
		return nil
	}
}

type failingStore struct{}

func (failingStore) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestIdempotencyDropsRedelivery(t *testing.T) {
	store := idempotency.NewMemoryStore(clock.NewFake(time.Unix(0, 0)))
	calls := 0
	h := Idempotency(store, time.Hour, nil)(counting(&calls))

	require.NoError(t, h(newContext(1, 10, "R1")))
	require.NoError(t, h(newContext(1, 10, "R1")))
	require.NoError(t, h(newContext(1, 11, "R1")))
	require.NoError(t, h(newContext(2, 10, "R1")))

	assert.Equal(t, 3, calls)
}

func TestIdempotencyFailsOpen(t *testing.T) {
	calls := 0
	h := Idempotency(failingStore{}, time.Hour, nil)(counting(&calls))

	require.NoError(t, h(newContext(1, 10, "R1")))
	require.NoError(t, h(newContext(1, 10, "R1")))
	assert.Equal(t, 2, calls)
}

func TestRateLimitBlocksAfterBudget(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(clock.NewFake(time.Unix(0, 0)))
	rules := ratelimit.NewRules(config.RateLimitConfig{
		PerUser: config.RateLimitRule{Limit: 2, Window: "1m"},
	}, 99)

	calls := 0
	h := RateLimit(limiter, rules, nil)(counting(&calls))

	blocked := newContext(1, 3, "x")
	require.NoError(t, h(newContext(1, 1, "x")))
	require.NoError(t, h(newContext(1, 2, "x")))
	require.NoError(t, h(blocked))
	assert.Equal(t, 2, calls)
	assert.Equal(t, []interface{}{rateLimitNotice}, blocked.sent)

	for i := 0; i < 5; i++ {
		require.NoError(t, h(newContext(99, i, "x")))
	}
	assert.Equal(t, 7, calls)
}

func TestAccessIgnoresRestrictedUsers(t *testing.T) {
	store := restrict.NewMemoryStore()
	require.NoError(t, store.Restrict(context.Background(), 1))
	require.NoError(t, store.Restrict(context.Background(), 99))

	calls := 0
	isAdmin := func(id int64) bool { return id == 99 }
	h := Access(store, isAdmin, nil)(counting(&calls))

	require.NoError(t, h(newContext(1, 1, "x")))
	assert.Zero(t, calls)

	require.NoError(t, h(newContext(2, 1, "x")))
	require.NoError(t, h(newContext(99, 1, "x")))
	assert.Equal(t, 2, calls)
}

func TestUpdateKind(t *testing.T) {
	assert.Equal(t, "/start", updateKind(newContext(1, 1, "/start now")))
	assert.Equal(t, "text", updateKind(newContext(1, 1, "CityA")))
	assert.Equal(t, "unknown", updateKind(newContext(1, 1, "")))
}
