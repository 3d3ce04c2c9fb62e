// Package delivery routes artifacts to a channel and uploads them through a
// per-channel client. Each channel carries its own payload cap, caption
// limit, and retry policy; the orchestrator only talks to [Client].
package delivery

import (
	"time"

	"github.com/backmassage/vidrelay/internal/config"
)

// Kind identifies a delivery channel.
type Kind string

const (
	Bot  Kind = "bot"  // Bot API: small payloads, retried.
	User Kind = "user" // MTProto user account: large payloads, single attempt by default.
)

// DefaultBotMaxMB is the bot channel's payload cap.
const DefaultBotMaxMB = 45.0

const bytesPerMB = 1024 * 1024

// SizeMB converts bytes to megabytes (MiB), the unit used for routing.
func SizeMB(bytes int64) float64 { return float64(bytes) / bytesPerMB }

// RetryPolicy bounds upload attempts for one artifact. The wait after the
// k-th failed attempt is Step*k.
type RetryPolicy struct {
	MaxAttempts int
	Step        time.Duration
}

// Backoff returns the wait after failed attempt k (1-based).
func (p RetryPolicy) Backoff(k int) time.Duration {
	return p.Step * time.Duration(k)
}

// Channel describes one delivery path's constraints.
type Channel struct {
	Kind             Kind
	MaxPayloadBytes  int64
	MaxCaptionLength int
	Retry            RetryPolicy
}

// BotChannel builds the bot channel description from cfg.
func BotChannel(cfg *config.Config) Channel {
	return Channel{
		Kind:             Bot,
		MaxPayloadBytes:  int64(cfg.BotMaxMB * bytesPerMB),
		MaxCaptionLength: cfg.MaxCaptionRunes,
		Retry:            RetryPolicy{MaxAttempts: cfg.BotAttempts, Step: cfg.BotBackoffStep},
	}
}

// UserChannel builds the user channel description from cfg. Uploads are
// attempted once unless UserAttempts is raised.
func UserChannel(cfg *config.Config) Channel {
	return Channel{
		Kind:             User,
		MaxPayloadBytes:  int64(cfg.UserMaxMB * bytesPerMB),
		MaxCaptionLength: cfg.MaxCaptionRunes,
		Retry:            RetryPolicy{MaxAttempts: cfg.UserAttempts, Step: cfg.UserBackoff},
	}
}

// Route maps a size to a channel using the default bot cap:
// sizeMB <= 45 is Bot, anything larger is User.
func Route(sizeMB float64) Kind {
	return RouteWith(sizeMB, DefaultBotMaxMB)
}

// RouteWith is Route with an explicit bot cap.
func RouteWith(sizeMB, botMaxMB float64) Kind {
	if sizeMB <= botMaxMB {
		return Bot
	}
	return User
}
