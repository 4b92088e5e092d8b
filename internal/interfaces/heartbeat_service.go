package interfaces

import "context"

// HeartbeatService emits a fire-and-forget liveness ping to an external
// monitor. Failures are logged, never propagated.
type HeartbeatService interface {
	Ping(ctx context.Context)
}
