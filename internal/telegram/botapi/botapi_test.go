package botapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/vidrelay/internal/config"
	"github.com/backmassage/vidrelay/internal/delivery"
)

func TestChatFor(t *testing.T) {
	assert.Equal(t, tgbotapi.BaseChat{ChatID: -1001234567890}, ChatFor("-1001234567890"))
	assert.Equal(t, tgbotapi.BaseChat{ChannelUsername: "@lessons"}, ChatFor("@lessons"))
	assert.Equal(t, tgbotapi.BaseChat{ChannelUsername: "@lessons"}, ChatFor(" lessons "))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"unauthorized", &tgbotapi.Error{Code: 401, Message: "Unauthorized"}, true},
		{"forbidden", &tgbotapi.Error{Code: 403, Message: "Forbidden: bot is not a member of the channel chat"}, true},
		{"chat not found", &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}, true},
		{"rate limited", &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7}}, false},
		{"server error", &tgbotapi.Error{Code: 502, Message: "Bad Gateway"}, false},
		{"bad request other", &tgbotapi.Error{Code: 400, Message: "Bad Request: wrong file identifier"}, false},
		{"network", errors.New("dial tcp: i/o timeout"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			assert.Equal(t, tc.fatal, delivery.IsFatal(got))
			if !tc.fatal {
				var te *delivery.TransientError
				assert.True(t, errors.As(got, &te))
			}
		})
	}
	assert.Nil(t, Classify(nil))
}

// fakeBotAPI serves getMe and sendVideo.
func fakeBotAPI(t *testing.T, sendStatus int, sendBody string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"relay","username":"relay_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendVideo"):
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "@lessons", r.FormValue("chat_id"))
			assert.Equal(t, "true", r.FormValue("supports_streaming"))
			w.WriteHeader(sendStatus)
			fmt.Fprint(w, sendBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSender(t *testing.T, srv *httptest.Server) *Sender {
	t.Helper()
	s, err := New(config.BotConfig{
		Token:       "123:abc",
		ChatID:      "@lessons",
		APIEndpoint: srv.URL + "/bot%s/%s",
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)
	return s
}

func videoFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "Intro_bot.mp4")
	require.NoError(t, os.WriteFile(p, make([]byte, 2048), 0o644))
	return p
}

func TestSendVideo_Success(t *testing.T) {
	srv := fakeBotAPI(t, http.StatusOK,
		`{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":-100,"type":"channel"}}}`)
	s := newSender(t, srv)
	assert.Equal(t, "relay_bot", s.Username())

	id, err := s.SendVideo(context.Background(), delivery.BotVideo{
		Path: videoFile(t), Caption: "Intro to X", Duration: 50, SupportsStreaming: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, id)
}

func TestSendVideo_ForbiddenIsFatal(t *testing.T) {
	srv := fakeBotAPI(t, http.StatusForbidden,
		`{"ok":false,"error_code":403,"description":"Forbidden: bot is not a member of the channel chat"}`)
	s := newSender(t, srv)

	_, err := s.SendVideo(context.Background(), delivery.BotVideo{Path: videoFile(t), SupportsStreaming: true})
	assert.True(t, delivery.IsFatal(err))
}

func TestSendVideo_CancelledContext(t *testing.T) {
	srv := fakeBotAPI(t, http.StatusOK, `{"ok":true,"result":{}}`)
	s := newSender(t, srv)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SendVideo(ctx, delivery.BotVideo{Path: videoFile(t)})
	assert.ErrorIs(t, err, context.Canceled)
}
