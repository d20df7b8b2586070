package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nicebartender/squad-bridge/command"
	"github.com/nicebartender/squad-bridge/session"
)

// DefaultGestureInterval is the minimum spacing between two emote frames.
// The game server drops emotes that arrive faster.
const DefaultGestureInterval = 300 * time.Millisecond

// Codec builds protocol frames. packet.Codec is the production one.
type Codec interface {
	BuildJoinFrame(teamCode string, key, iv []byte) ([]byte, error)
	BuildGestureFrame(identity int64, gestureCode int, key, iv []byte, region string) ([]byte, error)
}

// StateReader hands out one snapshot of the connection per command.
type StateReader interface {
	Snapshot() session.Snapshot
}

// JoinOutcome reports whether the join frame went out.
type JoinOutcome struct {
	Attempted bool
	Succeeded bool
}

// JoinHandler sends the join-squad frame for one Join command. It needs a
// live transport and session keys; region and squad membership don't matter.
type JoinHandler struct {
	State  StateReader
	Codec  Codec
	Logger *slog.Logger
}

func (h *JoinHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Handle sends one join-squad frame. Every failure ends here: it is logged
// and reported in the outcome, never returned.
func (h *JoinHandler) Handle(ctx context.Context, cmd command.Join) JoinOutcome {
	log := h.logger().With("team", cmd.TeamCode)
	snap := h.State.Snapshot()

	if !snap.TransportReady() {
		log.Warn("join failed: not connected")
		return JoinOutcome{}
	}
	if !snap.CryptoReady() {
		log.Warn("join failed: no encryption keys")
		return JoinOutcome{}
	}

	frame, err := h.Codec.BuildJoinFrame(cmd.TeamCode, snap.Key, snap.IV)
	if err == nil {
		err = send(ctx, snap.Transport, frame)
	}
	if err != nil {
		log.Error("join error", "err", err)
		return JoinOutcome{Attempted: true}
	}

	log.Info("joined team")
	return JoinOutcome{Attempted: true, Succeeded: true}
}

// GestureOutcome is the tally of one emote batch.
type GestureOutcome struct {
	Skipped   bool
	Succeeded int
	Failed    int
	Total     int
}

// GestureHandler plays one emote on every target of a Gesture command,
// one frame per target, pausing between sends so the game server keeps them.
type GestureHandler struct {
	State  StateReader
	Codec  Codec
	Logger *slog.Logger

	// Interval is the pause after a send completes and before the next one
	// starts. Zero means DefaultGestureInterval; negative disables it.
	Interval time.Duration
}

func (h *GestureHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *GestureHandler) interval() time.Duration {
	if h.Interval == 0 {
		return DefaultGestureInterval
	}
	return h.Interval
}

// pause blocks for d, or until ctx ends.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle plays the emote for every target in order. A target that fails
// is counted and the batch moves on.
func (h *GestureHandler) Handle(ctx context.Context, cmd command.Gesture) GestureOutcome {
	log := h.logger().With("code", cmd.GestureCode)
	snap := h.State.Snapshot()

	if !snap.InGroup() {
		log.Warn("emote skipped: bot not in a team")
		return GestureOutcome{Skipped: true}
	}
	if !snap.Ready() {
		log.Warn("emote skipped: bot not ready",
			"connected", snap.TransportReady(),
			"keys", snap.CryptoReady(),
			"region", snap.Region,
		)
		return GestureOutcome{Skipped: true}
	}

	out := GestureOutcome{Total: len(cmd.TargetIDs)}
	if out.Total == 0 {
		return out
	}

	// The pause runs after every attempt, failed or not, counted from the
	// end of the drain. Nothing waits after the last target.
	interval := h.interval()
	for i, id := range cmd.TargetIDs {
		if err := h.sendOne(ctx, snap, id, cmd.GestureCode); err != nil {
			out.Failed++
			log.Debug("emote target failed", "uid", id, "err", err)
		} else {
			out.Succeeded++
		}

		if remaining := out.Total - i - 1; remaining > 0 {
			if err := pause(ctx, interval); err != nil {
				out.Failed += remaining
				log.Warn("emote batch interrupted", "err", err, "remaining", remaining)
				break
			}
		}
	}

	if out.Succeeded > 0 {
		log.Info("emote sent", "sent", fmt.Sprintf("%d/%d", out.Succeeded, out.Total))
	}
	if out.Failed > 0 {
		log.Warn("emote failed", "failed", out.Failed)
	}
	return out
}

func (h *GestureHandler) sendOne(ctx context.Context, snap session.Snapshot, id string, code int) error {
	identity, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return fmt.Errorf("parse uid %q: %w", id, err)
	}
	frame, err := h.Codec.BuildGestureFrame(identity, code, snap.Key, snap.IV, snap.Region)
	if err != nil {
		return err
	}
	return send(ctx, snap.Transport, frame)
}

func send(ctx context.Context, t session.Transport, frame []byte) error {
	if err := t.Write(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := t.Drain(ctx); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	return nil
}
