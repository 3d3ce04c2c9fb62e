package mtproto

import (
	"context"

	"github.com/gotd/td/telegram/query"
	"github.com/gotd/td/telegram/query/messages"
	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
)

const historyBatch = 100

var errLimitReached = errors.New("history limit reached")

// ForEachVideo walks the channel history newest first and calls fn for each
// video message with a non-empty caption, stopping after limit messages
// have been scanned (0 means no limit).
func (s *Session) ForEachVideo(ctx context.Context, limit int, fn func(id int, caption string) error) error {
	scanned := 0
	err := query.Messages(s.api).GetHistory(s.peer).BatchSize(historyBatch).
		ForEach(ctx, func(ctx context.Context, elem messages.Elem) error {
			if limit > 0 && scanned >= limit {
				return errLimitReached
			}
			scanned++

			m, ok := elem.Msg.(*tg.Message)
			if !ok || m.Message == "" || !IsVideo(m) {
				return nil
			}
			return fn(m.ID, m.Message)
		})
	if errors.Is(err, errLimitReached) {
		return nil
	}
	return errors.Wrap(err, "channel history")
}

// IsVideo reports whether m carries a document with a video attribute.
func IsVideo(m *tg.Message) bool {
	media, ok := m.Media.(*tg.MessageMediaDocument)
	if !ok {
		return false
	}
	doc, ok := media.Document.(*tg.Document)
	if !ok {
		return false
	}
	for _, attr := range doc.Attributes {
		if _, ok := attr.(*tg.DocumentAttributeVideo); ok {
			return true
		}
	}
	return false
}
