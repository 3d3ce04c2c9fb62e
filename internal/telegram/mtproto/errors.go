package mtproto

import (
	"github.com/gotd/td/tgerr"
	"github.com/pkg/errors"

	"github.com/backmassage/vidrelay/internal/delivery"
)

// fatalTypes are RPC error types that no retry can fix for this channel.
var fatalTypes = []string{
	"AUTH_KEY_UNREGISTERED",
	"SESSION_REVOKED",
	"USER_DEACTIVATED",
	"CHAT_WRITE_FORBIDDEN",
	"CHAT_ADMIN_REQUIRED",
	"CHANNEL_PRIVATE",
	"USER_BANNED_IN_CHANNEL",
}

// Classify maps an MTProto error to delivery.Fatal or delivery.Transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnauthorized) {
		return delivery.Fatal(err)
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return delivery.Transient(errors.Wrapf(err, "flood wait %s", d))
	}
	if rpcErr, ok := tgerr.As(err); ok {
		if rpcErr.Code == 401 || rpcErr.Code == 403 || rpcErr.IsOneOf(fatalTypes...) {
			return delivery.Fatal(err)
		}
	}
	return delivery.Transient(err)
}
