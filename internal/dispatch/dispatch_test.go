package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/albapepper/matchpulse/internal/backoff"
)

// fakeGateway scripts one error per attempt; nil means success.
type fakeGateway struct {
	channel string
	errs    []error
	calls   int
}

func (g *fakeGateway) Channel() string { return g.channel }

func (g *fakeGateway) Send(ctx context.Context, recipient, message string) error {
	i := g.calls
	g.calls++
	if i < len(g.errs) {
		return g.errs[i]
	}
	return nil
}

func fastPolicy() backoff.Policy {
	return backoff.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newTestDispatcher(gw Gateway) *Dispatcher {
	return NewDispatcher([]Gateway{gw}, fastPolicy(), time.Second, nil)
}

func TestDispatchSuccess(t *testing.T) {
	gw := &fakeGateway{channel: "telegram"}
	d := newTestDispatcher(gw)

	res := d.Dispatch(context.Background(), "telegram", "12345", "goal!")
	if !res.Sent() {
		t.Fatalf("result = %+v, want sent", res)
	}
	if res.Attempts != 1 || gw.calls != 1 {
		t.Errorf("attempts = %d, gateway calls = %d, want 1 each", res.Attempts, gw.calls)
	}
}

func TestDispatchRetriesTransient(t *testing.T) {
	gw := &fakeGateway{
		channel: "telegram",
		errs:    []error{errors.New("503"), errors.New("timeout")},
	}
	d := newTestDispatcher(gw)

	res := d.Dispatch(context.Background(), "telegram", "12345", "goal!")
	if !res.Sent() {
		t.Fatalf("result = %+v, want sent after retries", res)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
}

func TestDispatchExhaustedTransient(t *testing.T) {
	gw := &fakeGateway{
		channel: "telegram",
		errs:    []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}
	d := newTestDispatcher(gw)

	res := d.Dispatch(context.Background(), "telegram", "12345", "goal!")
	if res.Status != StatusRetryableFailure {
		t.Fatalf("status = %s, want %s", res.Status, StatusRetryableFailure)
	}
	if res.Permanent() {
		t.Error("exhausted transient failure must not classify as permanent")
	}
	if res.Attempts != 3 || gw.calls != 3 {
		t.Errorf("attempts = %d, gateway calls = %d, want 3 each", res.Attempts, gw.calls)
	}
}

func TestDispatchPermanentNoRetry(t *testing.T) {
	gw := &fakeGateway{
		channel: "telegram",
		errs:    []error{&PermanentError{Reason: "chat not found"}},
	}
	d := newTestDispatcher(gw)

	res := d.Dispatch(context.Background(), "telegram", "bogus", "goal!")
	if !res.Permanent() {
		t.Fatalf("result = %+v, want permanent failure", res)
	}
	if res.Reason != "chat not found" {
		t.Errorf("reason = %q", res.Reason)
	}
	if gw.calls != 1 {
		t.Errorf("gateway calls = %d, want 1 for a permanent error", gw.calls)
	}
}

func TestDispatchUnknownChannel(t *testing.T) {
	d := newTestDispatcher(&fakeGateway{channel: "telegram"})

	res := d.Dispatch(context.Background(), "pager", "555", "goal!")
	if !res.Permanent() {
		t.Fatalf("result = %+v, want permanent failure for unknown channel", res)
	}
	if res.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", res.Attempts)
	}
}

func TestDispatchCounters(t *testing.T) {
	gw := &fakeGateway{
		channel: "telegram",
		errs: []error{
			nil,                                // dispatch 1: sent
			&PermanentError{Reason: "blocked"}, // dispatch 2: failed
		},
	}
	d := newTestDispatcher(gw)

	d.Dispatch(context.Background(), "telegram", "a", "m")
	d.Dispatch(context.Background(), "telegram", "b", "m")
	d.Dispatch(context.Background(), "pager", "c", "m")

	sent, failed := d.Counters()
	if sent != 1 || failed != 2 {
		t.Errorf("counters = (%d sent, %d failed), want (1, 2)", sent, failed)
	}
}

func TestChannels(t *testing.T) {
	d := NewDispatcher([]Gateway{
		&fakeGateway{channel: "telegram"},
		&fakeGateway{channel: "sms"},
	}, fastPolicy(), time.Second, nil)

	chans := d.Channels()
	if len(chans) != 2 {
		t.Fatalf("channels = %v, want 2 entries", chans)
	}
	seen := map[string]bool{}
	for _, c := range chans {
		seen[c] = true
	}
	if !seen["telegram"] || !seen["sms"] {
		t.Errorf("channels = %v, want telegram and sms", chans)
	}
}
