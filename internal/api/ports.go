package api

import (
	"context"
	"time"

	"github.com/drive-control/dcc/internal/audit"
	"github.com/drive-control/dcc/internal/queue"
	"github.com/drive-control/dcc/internal/ratelimit"
)

// CommandQueuePort is the queue surface the dispatcher depends on.
type CommandQueuePort interface {
	EnqueueDrive(cmd queue.DriveCommand) (int, error)
	Clear()
	SetMaxsize(maxsize int) error
}

// LimiterPort is the rate limiter surface the dispatcher depends on.
// The ingress limiter is consulted via Allow; both limiters are
// reconfigured through Configure.
type LimiterPort interface {
	Allow() bool
	Configure(ratePerSecond float64, capacity int) error
}

// AuditPort records control-plane actions.
type AuditPort interface {
	LogAction(ctx context.Context, action string, params map[string]any, outcome string, latency time.Duration)
}

// Compile-time interface checks.
var (
	_ CommandQueuePort = (*queue.CommandQueue)(nil)
	_ LimiterPort      = (*ratelimit.TokenBucket)(nil)
	_ AuditPort        = (*audit.Logger)(nil)
)
