package jobs

import (
	"log/slog"

	"github.com/hibiken/asynq"
)

// DefaultRefreshSpec refreshes rates every minute.
const DefaultRefreshSpec = "@every 1m"

// Scheduler enqueues periodic tasks.
type Scheduler interface {
	RegisterRateRefresh(spec string) error
	Start() error
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	log            *slog.Logger
}

func NewScheduler(redisOpt asynq.RedisConnOpt, log *slog.Logger) Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, nil),
		log:            log,
	}
}

// RegisterRateRefresh enqueues a refresh of every catalog currency on the cron schedule.
func (s *scheduler) RegisterRateRefresh(spec string) error {
	if spec == "" {
		spec = DefaultRefreshSpec
	}

	task, err := NewRefreshRatesTask(nil)
	if err != nil {
		return err
	}
	if _, err := s.asynqScheduler.Register(spec, task); err != nil {
		return err
	}

	s.log.Info("scheduler: registered rate refresh", slog.String("spec", spec))
	return nil
}

func (s *scheduler) Start() error {
	s.log.Info("scheduler: starting")
	return s.asynqScheduler.Start()
}

func (s *scheduler) Shutdown() {
	s.log.Info("scheduler: shutting down")
	s.asynqScheduler.Shutdown()
}
