package lifecycle

import "context"

// Stage orders shutdown. Hooks in a lower stage finish before the next stage starts.
type Stage int

const (
	// StageIngress stops accepting updates and HTTP traffic.
	StageIngress Stage = iota
	// StageWorkers stops background loops and drains in-flight writes.
	StageWorkers
	// StageStorage closes connections to Redis and PostgreSQL.
	StageStorage
)

// Hook describes a named shutdown hook.
type Hook struct {
	Name  string
	Stage Stage
	Fn    func(ctx context.Context) error
}
