package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsStagesInOrder(t *testing.T) {
	s := NewShutdown(nil)

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	s.Register(StageStorage, "redis", record("redis"))
	s.Register(StageIngress, "bot", record("bot"))
	s.Register(StageWorkers, "cleaner", record("cleaner"))

	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, []string{"bot", "cleaner", "redis"}, order)
}

func TestShutdownJoinsErrorsAndContinues(t *testing.T) {
	s := NewShutdown(nil)
	ran := false

	s.Register(StageIngress, "bot", func(context.Context) error { return errors.New("stuck") })
	s.Register(StageStorage, "db", func(context.Context) error { ran = true; return nil })

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot: stuck")
	assert.True(t, ran)
}

type staticSource map[string]string

func (s staticSource) Check(context.Context) map[string]string { return s }

func TestProbes(t *testing.T) {
	source := staticSource{"redis": "OK", "db": "OK"}
	p := NewProbes(source, nil)
	mux := http.NewServeMux()
	p.Register(mux, time.Second)

	get := func(path string) int {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get("/readyz"))

	source["db"] = "connection refused"
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))
	assert.Equal(t, http.StatusOK, get("/livez"))

	source["db"] = "OK"
	p.Drain()
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))
}
