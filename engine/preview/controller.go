package preview

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// State is a position in the load state machine
type State int

const (
	StateIdle State = iota
	StateInFlight
	StateSucceeded
	StateFailedPermanently
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInFlight:
		return "in-flight"
	case StateSucceeded:
		return "succeeded"
	case StateFailedPermanently:
		return "failed"
	default:
		return "unknown"
	}
}

// Policy bounds automatic retries
type Policy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultPolicy is two retries one second apart
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, Delay: DefaultRetryDelay}
}

// Clock abstracts waiting so tests can drive retry timing
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// SystemClock waits on wall-clock time
var SystemClock Clock = realClock{}

// LoadFunc performs one complete attempt of a preview request
type LoadFunc func(ctx context.Context) (*Result, error)

// Status is a snapshot of a Controller
type Status struct {
	State State
	// Attempt is the 1-based number of the current or last attempt.
	Attempt int
	// Retries counts automatic retries consumed so far.
	Retries int
	Result  *Result
	Err     error
}

// Controller drives one load through Idle, InFlight(attempt), Succeeded and
// FailedPermanently. Retryable failures are retried up to Policy.MaxRetries
// times with Policy.Delay between attempts.
type Controller struct {
	policy   Policy
	clock    Clock
	logger   *slog.Logger
	onChange func(Status)

	mu     sync.Mutex
	status Status
}

// NewController builds a controller. A nil clock uses SystemClock; a nil
// logger discards output.
func NewController(policy Policy, clock Clock, logger *slog.Logger) *Controller {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Controller{
		policy: policy,
		clock:  clock,
		logger: logger,
	}
}

// OnChange registers a callback invoked after every transition. It must not
// call back into the controller.
func (c *Controller) OnChange(fn func(Status)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Status returns the current snapshot
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Load starts a fresh load with the retry counter at zero and blocks until it
// succeeds or fails permanently.
func (c *Controller) Load(ctx context.Context, load LoadFunc) (*Result, error) {
	return c.run(ctx, load, false)
}

// Retry is the manual retry action: the counter is reset and one fresh load
// is issued immediately.
func (c *Controller) Retry(ctx context.Context, load LoadFunc) (*Result, error) {
	return c.run(ctx, load, true)
}

func (c *Controller) run(ctx context.Context, load LoadFunc, manual bool) (*Result, error) {
	if manual {
		c.logger.Info("Manual preview retry requested")
	}
	for retries := 0; ; retries++ {
		c.transition(Status{State: StateInFlight, Attempt: retries + 1, Retries: retries})

		result, err := load(ctx)
		if err == nil {
			c.transition(Status{State: StateSucceeded, Attempt: retries + 1, Retries: retries, Result: result})
			return result, nil
		}

		exhausted := retries >= c.policy.MaxRetries
		if ctx.Err() != nil || !IsRetryable(err) || exhausted {
			c.logger.Warn("Preview failed permanently",
				"attempt", retries+1,
				"kind", KindOf(err),
				"exhausted", exhausted,
				"error", err)
			c.transition(Status{State: StateFailedPermanently, Attempt: retries + 1, Retries: retries, Err: err})
			return nil, err
		}

		c.logger.Info("Preview attempt failed, retrying",
			"attempt", retries+1,
			"delay", c.policy.Delay,
			"kind", KindOf(err),
			"error", err)
		// the error stays visible while waiting for the next attempt
		c.transition(Status{State: StateInFlight, Attempt: retries + 1, Retries: retries, Err: err})

		select {
		case <-c.clock.After(c.policy.Delay):
		case <-ctx.Done():
			c.transition(Status{State: StateFailedPermanently, Attempt: retries + 1, Retries: retries, Err: err})
			return nil, err
		}
	}
}

func (c *Controller) transition(status Status) {
	c.mu.Lock()
	c.status = status
	onChange := c.onChange
	c.mu.Unlock()
	if onChange != nil {
		onChange(status)
	}
}
