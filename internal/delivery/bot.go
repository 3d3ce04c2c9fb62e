package delivery

import (
	"context"
	"math"

	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/logging"
)

// BotVideo is one sendVideo call on the bot channel.
type BotVideo struct {
	Path              string
	Caption           string
	Duration          int // Whole seconds; 0 when unknown.
	Width             int
	Height            int
	SupportsStreaming bool
}

// BotSender is the bot transport. Implementations classify failures with
// [Transient] and [Fatal].
type BotSender interface {
	SendVideo(ctx context.Context, v BotVideo) (messageID int, err error)
}

// BotClient delivers through the bot channel with the bot retry policy.
type BotClient struct {
	policyClient
	sender BotSender
}

// NewBotClient returns a bot client. A nil sender yields an unavailable
// client, which the router downgrades to the user channel.
func NewBotClient(sender BotSender, cfg *config.Config, log *logging.Logger, sleep SleepFunc) *BotClient {
	if sleep == nil {
		sleep = Sleep
	}
	return &BotClient{
		policyClient: policyClient{
			ch:    BotChannel(cfg),
			log:   log,
			sleep: sleep,
			ready: sender != nil,
		},
		sender: sender,
	}
}

// Deliver uploads the task's artifact through the bot channel.
func (c *BotClient) Deliver(ctx context.Context, task *Task) error {
	return c.deliver(ctx, task, func(ctx context.Context, t *Task) (int, error) {
		return c.sender.SendVideo(ctx, BotVideo{
			Path:              t.ArtifactPath,
			Caption:           t.Caption,
			Duration:          int(math.Round(t.Media.Duration)),
			Width:             t.Media.Width,
			Height:            t.Media.Height,
			SupportsStreaming: true,
		})
	})
}
