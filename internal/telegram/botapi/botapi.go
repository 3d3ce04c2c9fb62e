// Package botapi sends videos through the Telegram Bot API.
package botapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/delivery"
)

// Sender implements delivery.BotSender.
type Sender struct {
	api  *tgbotapi.BotAPI
	chat tgbotapi.BaseChat
}

// New connects with cfg's token. The constructor calls getMe, so a returned
// error means the bot cannot be used this run.
func New(cfg config.BotConfig) (*Sender, error) {
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, errors.Wrap(Classify(err), "bot getMe")
	}
	return &Sender{api: api, chat: ChatFor(cfg.ChatID)}, nil
}

// Username returns the bot's @username as reported by getMe.
func (s *Sender) Username() string { return s.api.Self.UserName }

// ChatFor targets a numeric chat ID or an @channel username.
func ChatFor(id string) tgbotapi.BaseChat {
	id = strings.TrimSpace(id)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return tgbotapi.BaseChat{ChatID: n}
	}
	if !strings.HasPrefix(id, "@") {
		id = "@" + id
	}
	return tgbotapi.BaseChat{ChannelUsername: id}
}

// SendVideo uploads v with sendVideo. The Bot API call is not
// context-aware; the HTTP client timeout bounds it instead.
func (s *Sender) SendVideo(ctx context.Context, v delivery.BotVideo) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg, err := s.api.Send(tgbotapi.VideoConfig{
		BaseFile: tgbotapi.BaseFile{
			BaseChat: s.chat,
			File:     tgbotapi.FilePath(v.Path),
		},
		Duration:          v.Duration,
		Caption:           v.Caption,
		SupportsStreaming: v.SupportsStreaming,
	})
	if err != nil {
		return 0, Classify(err)
	}
	return msg.MessageID, nil
}

// fatalPhrases mark 400 responses that no retry can fix.
var fatalPhrases = []string{
	"chat not found",
	"not enough rights",
	"have no rights",
	"bot was kicked",
	"need administrator rights",
}

// Classify maps a Bot API error to delivery.Fatal or delivery.Transient.
// Credential and permission failures are fatal; rate limits, server errors,
// and network errors are transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return delivery.Transient(err)
	}
	switch {
	case apiErr.Code == http.StatusUnauthorized, apiErr.Code == http.StatusForbidden:
		return delivery.Fatal(err)
	case apiErr.Code == http.StatusTooManyRequests:
		return delivery.Transient(errors.Wrapf(err, "rate limited, retry after %ds", apiErr.RetryAfter))
	case apiErr.Code == http.StatusBadRequest:
		msg := strings.ToLower(apiErr.Message)
		for _, p := range fatalPhrases {
			if strings.Contains(msg, p) {
				return delivery.Fatal(err)
			}
		}
	}
	return delivery.Transient(err)
}
