// Package dispatch sends triggered notifications through an external
// gateway with retry and backoff. Transient failures (timeouts, 5xx, rate
// limits) are retried a bounded number of times; permanent failures
// (invalid recipient, malformed message) are returned immediately so the
// trigger state can roll back. Every attempt outcome feeds the daily
// sent/failed health counters.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/matchpulse/internal/backoff"
)

// --------------------------------------------------------------------------
// Results and errors
// --------------------------------------------------------------------------

// Result statuses.
const (
	StatusSent             = "sent"
	StatusRetryableFailure = "retryable_failure"
	StatusPermanentFailure = "permanent_failure"
)

// Result is the outcome of one dispatch, after retries.
type Result struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Attempts int    `json:"attempts"`
}

// Sent reports delivery success.
func (r Result) Sent() bool { return r.Status == StatusSent }

// Permanent reports a failure that must not be retried and must not
// consume the alert's trigger.
func (r Result) Permanent() bool { return r.Status == StatusPermanentFailure }

// PermanentError marks a gateway failure as non-retryable. Gateways return
// it for invalid recipients and malformed messages; everything else is
// treated as transient.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string { return "permanent: " + e.Reason }

// --------------------------------------------------------------------------
// Gateway
// --------------------------------------------------------------------------

// Gateway is a black-box notification transport for one channel.
type Gateway interface {
	// Channel returns the channel key alerts select this gateway by.
	Channel() string
	// Send delivers one message. A *PermanentError return suppresses
	// retries; any other error is retried per the dispatcher's policy.
	Send(ctx context.Context, recipient, message string) error
}

// --------------------------------------------------------------------------
// Dispatcher
// --------------------------------------------------------------------------

// Dispatcher routes notifications to the gateway registered for the
// alert's channel. Safe for concurrent use; independent dispatches never
// block each other.
type Dispatcher struct {
	gateways map[string]Gateway
	policy   backoff.Policy
	timeout  time.Duration
	logger   *slog.Logger

	countMu     sync.Mutex
	countDay    string
	sentToday   int64
	failedToday int64
}

// NewDispatcher builds a dispatcher over the given gateways using the
// shared retry policy.
func NewDispatcher(gateways []Gateway, policy backoff.Policy, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	byChannel := make(map[string]Gateway, len(gateways))
	for _, g := range gateways {
		byChannel[g.Channel()] = g
	}
	return &Dispatcher{
		gateways: byChannel,
		policy:   policy,
		timeout:  timeout,
		logger:   logger,
	}
}

// Dispatch sends one message, retrying transient failures with backoff.
// It never returns an error — the Result carries the classification.
func (d *Dispatcher) Dispatch(ctx context.Context, channel, recipient, message string) Result {
	gw, ok := d.gateways[channel]
	if !ok {
		d.recordFailure()
		return Result{
			Status:   StatusPermanentFailure,
			Reason:   fmt.Sprintf("no gateway for channel %q", channel),
			Attempts: 0,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	attempts := 0
	err := d.policy.Do(ctx, func(attempt int) error {
		attempts = attempt
		sendErr := gw.Send(ctx, recipient, message)
		if sendErr == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(sendErr, &perm) {
			return backoff.Permanent(sendErr)
		}
		d.logger.Warn("dispatch attempt failed",
			"channel", channel, "attempt", attempt, "error", sendErr)
		return sendErr
	})

	if err == nil {
		d.recordSent()
		return Result{Status: StatusSent, Attempts: attempts}
	}

	d.recordFailure()
	var perm *PermanentError
	if errors.As(err, &perm) {
		return Result{Status: StatusPermanentFailure, Reason: perm.Reason, Attempts: attempts}
	}
	return Result{Status: StatusRetryableFailure, Reason: err.Error(), Attempts: attempts}
}

// Channels returns the registered channel keys.
func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.gateways))
	for ch := range d.gateways {
		out = append(out, ch)
	}
	return out
}

// --------------------------------------------------------------------------
// Daily health counters
// --------------------------------------------------------------------------

// Counters returns today's sent/failed totals.
func (d *Dispatcher) Counters() (sent, failed int64) {
	d.countMu.Lock()
	defer d.countMu.Unlock()
	d.rollDayLocked()
	return d.sentToday, d.failedToday
}

func (d *Dispatcher) recordSent() {
	d.countMu.Lock()
	defer d.countMu.Unlock()
	d.rollDayLocked()
	d.sentToday++
}

func (d *Dispatcher) recordFailure() {
	d.countMu.Lock()
	defer d.countMu.Unlock()
	d.rollDayLocked()
	d.failedToday++
}

func (d *Dispatcher) rollDayLocked() {
	day := time.Now().UTC().Format("2006-01-02")
	if day != d.countDay {
		d.countDay = day
		d.sentToday = 0
		d.failedToday = 0
	}
}
