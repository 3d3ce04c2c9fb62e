package delivery

import (
	"context"
	"os"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/backmassage/vidrelay/internal/display"
	"github.com/backmassage/vidrelay/internal/logging"
)

// Client uploads artifacts through one channel.
type Client interface {
	// Channel returns the channel's constraints and retry policy.
	Channel() Channel
	// Available reports whether the client can be used in this run.
	Available() bool
	// Deliver uploads task.ArtifactPath, updating Attempts, Outcome, and
	// MessageID on the task.
	Deliver(ctx context.Context, task *Task) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendFunc performs one upload attempt and returns the remote message ID.
type sendFunc func(ctx context.Context, task *Task) (int, error)

// policyClient holds the behavior shared by both channels: size gating,
// caption truncation, the attempt loop, and disabling after a fatal error.
type policyClient struct {
	ch       Channel
	log      *logging.Logger
	sleep    SleepFunc
	ready    bool
	disabled atomic.Bool
}

func (c *policyClient) Channel() Channel { return c.ch }

func (c *policyClient) Available() bool { return c.ready && !c.disabled.Load() }

// deliver runs send under the channel policy.
func (c *policyClient) deliver(ctx context.Context, task *Task, send sendFunc) error {
	task.Channel = c.ch.Kind
	if !c.Available() {
		task.Outcome = OutcomeFailed
		return errors.Wrapf(ErrChannelUnavailable, "%s channel", c.ch.Kind)
	}

	fi, err := os.Stat(task.ArtifactPath)
	if err != nil {
		task.Outcome = OutcomeFailed
		return errors.Wrap(err, "stat artifact")
	}
	task.SizeBytes = fi.Size()
	if task.SizeBytes > c.ch.MaxPayloadBytes {
		task.Outcome = OutcomeRejected
		return errors.Wrapf(ErrRejectedBySize, "%s is %s, %s cap is %s",
			task.ArtifactPath, display.FormatMB(task.SizeBytes), c.ch.Kind, display.FormatMB(c.ch.MaxPayloadBytes))
	}
	task.Caption = TruncateCaption(task.Caption, c.ch.MaxCaptionLength)

	maxAttempts := c.ch.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		task.Attempts = attempt
		id, err := send(ctx, task)
		if err == nil {
			task.Outcome = OutcomeDelivered
			task.MessageID = id
			return nil
		}
		lastErr = err

		if IsFatal(err) {
			task.Outcome = OutcomeFatal
			c.disabled.Store(true)
			c.log.Error("%s channel disabled for this run: %v", c.ch.Kind, err)
			return err
		}
		if ctx.Err() != nil {
			task.Outcome = OutcomeFailed
			return ctx.Err()
		}
		if attempt == maxAttempts {
			break
		}

		wait := c.ch.Retry.Backoff(attempt)
		c.log.Warn("%s upload attempt %d/%d failed: %v (retrying in %s)",
			c.ch.Kind, attempt, maxAttempts, err, wait)
		if err := c.sleep(ctx, wait); err != nil {
			task.Outcome = OutcomeFailed
			return err
		}
	}

	task.Outcome = OutcomeFailed
	return errors.Wrapf(lastErr, "%s upload failed after %d attempt(s)", c.ch.Kind, maxAttempts)
}

// TruncateCaption cuts caption to at most limit runes.
func TruncateCaption(caption string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(caption) <= limit {
		return caption
	}
	runes := []rune(caption)
	return string(runes[:limit])
}
