package workflow

import (
	"time"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
)

// RejectionPolicy decides what a rejected step does to its instance
type RejectionPolicy string

const (
	// RejectionTerminate ends the instance as REJECTED
	RejectionTerminate RejectionPolicy = "terminate"
	// RejectionAdvance moves on once the completion rule is met, whatever the decisions were
	RejectionAdvance RejectionPolicy = "advance"
)

// TimeoutAction decides what happens to a step instance whose decision window passed
type TimeoutAction string

const (
	TimeoutEscalate TimeoutAction = "escalate"
	TimeoutReject   TimeoutAction = "reject"
	TimeoutNone     TimeoutAction = "none"
)

const (
	DefaultStepTimeout      = 48 * time.Hour
	DefaultCommentMaxLength = 500
	// AgentFieldMaxLength bounds stored agent names and roles
	AgentFieldMaxLength  = 100
	ObjectIDMaxLength    = 50
	RequesterIDMaxLength = 20

	timeoutComment    = "auto-rejected: approval timed out"
	escalationComment = "escalated: approval timed out"
)

// Config tunes engine behaviour
type Config struct {
	DefaultStepTimeout time.Duration
	CommentMaxLength   int
	RejectionPolicy    RejectionPolicy
	AllowEmptySteps    bool
	TimeoutAction      TimeoutAction
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		DefaultStepTimeout: DefaultStepTimeout,
		CommentMaxLength:   DefaultCommentMaxLength,
		RejectionPolicy:    RejectionTerminate,
		TimeoutAction:      TimeoutEscalate,
	}
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithConfig replaces the engine configuration; zero fields keep their defaults
func WithConfig(cfg Config) EngineOption {
	return func(e *engineImpl) {
		if cfg.DefaultStepTimeout > 0 {
			e.cfg.DefaultStepTimeout = cfg.DefaultStepTimeout
		}
		if cfg.CommentMaxLength > 0 {
			e.cfg.CommentMaxLength = cfg.CommentMaxLength
		}
		if cfg.RejectionPolicy != "" {
			e.cfg.RejectionPolicy = cfg.RejectionPolicy
		}
		if cfg.TimeoutAction != "" {
			e.cfg.TimeoutAction = cfg.TimeoutAction
		}
		e.cfg.AllowEmptySteps = cfg.AllowEmptySteps
	}
}

// WithDispatcher sets the dispatcher committed events are published to
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets a logger for the engine
func WithLogger(logger Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}
