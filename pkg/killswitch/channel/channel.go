// Package channel implements the kill-switch delivery channels: a
// server-pushed stream, a periodic-pull poller and a tailed local JSON-lines
// file, all producing the same
// killswitch.Command payload so the receiver treats the channel as opaque
// (spec §4.4, §6).
package channel

import (
	"context"
	"time"

	"github.com/aigos/governor/pkg/killswitch"
)

// Handler is invoked once per command received on any channel.
type Handler func(ctx context.Context, cmd killswitch.Command)

// Channel is the minimal capability set every delivery mechanism
// implements (spec §9: "the core takes an object satisfying {start, stop,
// onCommand}").
type Channel interface {
	Start(ctx context.Context, onCommand Handler) error
	Stop() error
}

// BackoffPolicy computes reconnect delays: exponential from Initial to Max,
// with jitter up to 1s, per spec §4.4.
type BackoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

// Next returns the delay before the (attempt+1)-th reconnect attempt,
// attempt being 0-based.
func (b BackoffPolicy) Next(attempt int, jitter func(time.Duration) time.Duration) time.Duration {
	d := b.Initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > b.Max {
			d = b.Max
			break
		}
	}
	if jitter != nil {
		d += jitter(time.Second)
	}
	return d
}
