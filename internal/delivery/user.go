package delivery

import (
	"context"
	"path/filepath"

	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/logging"
)

// ProgressFunc receives upload progress in bytes.
type ProgressFunc func(uploaded, total int64)

// UserVideo is one media upload on the user channel.
type UserVideo struct {
	Path              string
	Caption           string
	Duration          float64
	Width             int
	Height            int
	SupportsStreaming bool
}

// UserSender is the user-account transport. Implementations classify
// failures with [Transient] and [Fatal].
type UserSender interface {
	SendVideo(ctx context.Context, v UserVideo, progress ProgressFunc) (messageID int, err error)
}

// UserClient delivers through the user channel with the user retry policy.
type UserClient struct {
	policyClient
	sender UserSender
}

// NewUserClient returns a user client. A nil sender yields an unavailable
// client.
func NewUserClient(sender UserSender, cfg *config.Config, log *logging.Logger, sleep SleepFunc) *UserClient {
	if sleep == nil {
		sleep = Sleep
	}
	return &UserClient{
		policyClient: policyClient{
			ch:    UserChannel(cfg),
			log:   log,
			sleep: sleep,
			ready: sender != nil,
		},
		sender: sender,
	}
}

// Deliver uploads the task's artifact with its media attributes, logging
// progress every 20%.
func (c *UserClient) Deliver(ctx context.Context, task *Task) error {
	return c.deliver(ctx, task, func(ctx context.Context, t *Task) (int, error) {
		return c.sender.SendVideo(ctx, UserVideo{
			Path:              t.ArtifactPath,
			Caption:           t.Caption,
			Duration:          t.Media.Duration,
			Width:             t.Media.Width,
			Height:            t.Media.Height,
			SupportsStreaming: true,
		}, ProgressLogger(c.log, filepath.Base(t.ArtifactPath)))
	})
}

// ProgressLogger returns a ProgressFunc that logs each time progress
// crosses the next multiple of 20%.
func ProgressLogger(log *logging.Logger, name string) ProgressFunc {
	next := 20
	return func(uploaded, total int64) {
		if total <= 0 {
			return
		}
		pct := int(uploaded * 100 / total)
		if pct < next {
			return
		}
		for next <= pct {
			next += 20
		}
		log.Info("  Uploading %s: %d%%", name, pct-pct%20)
	}
}
