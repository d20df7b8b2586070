// Package dispatch drains the command queue and turns each command into
// frames on the shared game connection, one command at a time.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nicebartender/squad-bridge/command"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultErrorBackoff = time.Second
)

// Stats are cumulative counters since the dispatcher was created.
type Stats struct {
	Handled      int64 `json:"handled"`
	Unrecognized int64 `json:"unrecognized"`
	Panics       int64 `json:"panics"`
	FramesSent   int64 `json:"framesSent"`
	FramesFailed int64 `json:"framesFailed"`
	Skipped      int64 `json:"skipped"`
}

// Dispatcher is the single consumer of the command queue. Commands run one
// after another, so handlers never share the game connection.
type Dispatcher struct {
	Queue   *command.Queue
	Join    *JoinHandler
	Gesture *GestureHandler
	Logger  *slog.Logger

	// PollInterval bounds a single wait on an empty queue.
	PollInterval time.Duration
	// ErrorBackoff is the pause after a command blew up.
	ErrorBackoff time.Duration

	handled      atomic.Int64
	unrecognized atomic.Int64
	panics       atomic.Int64
	framesSent   atomic.Int64
	framesFailed atomic.Int64
	skipped      atomic.Int64
}

// New wires a dispatcher and its handlers around one shared state and codec.
func New(queue *command.Queue, state StateReader, codec Codec) *Dispatcher {
	return &Dispatcher{
		Queue:   queue,
		Join:    &JoinHandler{State: state, Codec: codec},
		Gesture: &GestureHandler{State: state, Codec: codec},
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Handled:      d.handled.Load(),
		Unrecognized: d.unrecognized.Load(),
		Panics:       d.panics.Load(),
		FramesSent:   d.framesSent.Load(),
		FramesFailed: d.framesFailed.Load(),
		Skipped:      d.skipped.Load(),
	}
}

// Run drains the queue until ctx is cancelled. A command already being
// handled when ctx ends still runs to completion.
func (d *Dispatcher) Run(ctx context.Context) error {
	poll := d.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	backoff := d.ErrorBackoff
	if backoff <= 0 {
		backoff = DefaultErrorBackoff
	}

	d.logger().Info("dispatcher started", "poll", poll)
	for {
		if ctx.Err() != nil {
			d.logger().Info("dispatcher stopped")
			return ctx.Err()
		}

		item, ok := d.Queue.Next(ctx, poll)
		if !ok {
			continue
		}

		if err := d.dispatch(context.WithoutCancel(ctx), item); err != nil {
			d.logger().Error("command error", "err", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
		}
	}
}

// dispatch routes one item. The returned error is only ever a recovered
// panic; handler failures are terminal inside the handler.
func (d *Dispatcher) dispatch(ctx context.Context, item command.Item) (err error) {
	cmd := command.Decode(item)

	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			err = fmt.Errorf("%s command panicked: %v", cmd.Kind(), r)
		}
	}()

	switch c := cmd.(type) {
	case command.Join:
		d.handled.Add(1)
		out := d.Join.Handle(ctx, c)
		switch {
		case out.Succeeded:
			d.framesSent.Add(1)
		case out.Attempted:
			d.framesFailed.Add(1)
		default:
			d.skipped.Add(1)
		}

	case command.Gesture:
		d.handled.Add(1)
		out := d.Gesture.Handle(ctx, c)
		if out.Skipped {
			d.skipped.Add(1)
		}
		d.framesSent.Add(int64(out.Succeeded))
		d.framesFailed.Add(int64(out.Failed))

	case command.Invalid:
		d.unrecognized.Add(1)
		d.logger().Warn("unrecognized command", "type", c.Type, "err", c.Err)
	}
	return nil
}
