// Package mtproto drives an already-authorized Telegram user session for
// large uploads and channel history.
package mtproto

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/pkg/errors"

	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/delivery"
	"github.com/backmassage/vidrelay/internal/logging"
)

var (
	// ErrUnauthorized means the session file holds no authorized login.
	// vidrelay never performs the login flow itself.
	ErrUnauthorized = errors.New("mtproto session is not authorized")

	// ErrNotStarted wraps failures that happened before the session was ready.
	ErrNotStarted = errors.New("mtproto session did not start")
)

// Session is a connected, authorized user session bound to one channel.
// It is only valid inside the callback passed to Run.
type Session struct {
	api    *tg.Client
	sender *message.Sender
	peer   tg.InputPeerClass
	log    *logging.Logger
}

// Run connects with cfg, verifies authorization, resolves the target
// channel, and calls fn with the ready session. The connection is closed
// when fn returns or ctx is cancelled. Failures before fn runs are wrapped
// with ErrNotStarted so callers can fall back to running without the user
// channel.
func Run(ctx context.Context, cfg config.UserConfig, log *logging.Logger, fn func(ctx context.Context, s *Session) error) error {
	client := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionFile},
	})

	started := false
	err := client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return errors.Wrap(err, "auth status")
		}
		if !status.Authorized {
			return ErrUnauthorized
		}

		api := client.API()
		sender := message.NewSender(api)
		peer, err := sender.Resolve(cfg.Channel).AsInputPeer(ctx)
		if err != nil {
			return errors.Wrapf(err, "resolve channel %s", cfg.Channel)
		}

		log.Info("MTProto session ready for %s", cfg.Channel)
		started = true
		return fn(ctx, &Session{api: api, sender: sender, peer: peer, log: log})
	})
	if err != nil && !started {
		return fmt.Errorf("%w: %w", ErrNotStarted, err)
	}
	return err
}

// SendVideo implements delivery.UserSender.
func (s *Session) SendVideo(ctx context.Context, v delivery.UserVideo, progress delivery.ProgressFunc) (int, error) {
	up := uploader.NewUploader(s.api)
	if progress != nil {
		up = up.WithProgress(progressFunc(progress))
	}

	file, err := up.FromPath(ctx, v.Path)
	if err != nil {
		return 0, Classify(errors.Wrapf(err, "upload %s", filepath.Base(v.Path)))
	}

	doc := message.Video(file, styling.Plain(v.Caption)).
		Duration(time.Duration(v.Duration * float64(time.Second))).
		Resolution(v.Width, v.Height)
	if v.SupportsStreaming {
		doc = doc.SupportsStreaming()
	}

	updates, err := s.sender.To(s.peer).Media(ctx, doc)
	if err != nil {
		return 0, Classify(errors.Wrap(err, "send media"))
	}
	return MessageID(updates), nil
}

// progressFunc adapts a delivery.ProgressFunc to uploader.Progress.
type progressFunc delivery.ProgressFunc

func (p progressFunc) Chunk(_ context.Context, state uploader.ProgressState) error {
	p(state.Uploaded, state.Total)
	return nil
}

// MessageID extracts the ID of the sent message from a send response, or 0.
func MessageID(u tg.UpdatesClass) int {
	switch u := u.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID
	case *tg.Updates:
		return idFromUpdates(u.Updates)
	case *tg.UpdatesCombined:
		return idFromUpdates(u.Updates)
	}
	return 0
}

func idFromUpdates(updates []tg.UpdateClass) int {
	for _, upd := range updates {
		switch x := upd.(type) {
		case *tg.UpdateNewChannelMessage:
			if m, ok := x.Message.(*tg.Message); ok {
				return m.ID
			}
		case *tg.UpdateNewMessage:
			if m, ok := x.Message.(*tg.Message); ok {
				return m.ID
			}
		}
	}
	for _, upd := range updates {
		if x, ok := upd.(*tg.UpdateMessageID); ok {
			return x.ID
		}
	}
	return 0
}
