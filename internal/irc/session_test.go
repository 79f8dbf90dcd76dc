package irc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mkpazon/TmiK/internal/config"
	"github.com/mkpazon/TmiK/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(url string) *config.Config {
	c, _ := config.Parse([]byte("irc: {nick: TmikBot, token: 'oauth:abc', channels: [tmik]}"))
	c.IRC.URL = url
	c.IRC.RedialDelay = 10 * time.Millisecond
	return c
}

func nextState(t *testing.T, st sdk.StateStream) sdk.ConnectionState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := st.Next(ctx)
	require.NoError(t, err)
	return v
}

func TestSession_RegisterReceiveAndPong(t *testing.T) {
	received := make(chan string, 16)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		go func() {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(
				":bob!bob@x PRIVMSG #tmik :hello\r\nPING :tmi.twitch.tv\r\n"))
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- strings.TrimRight(string(data), "\r\n")
		}
	}))
	defer srv.Close()

	s := NewSession(testConfig("ws"+strings.TrimPrefix(srv.URL, "http")), zap.NewNop())
	states := s.StateStream()
	defer states.Close()
	msgs := s.Messages()
	defer msgs.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	assert.Equal(t, sdk.StateConnecting, nextState(t, states))
	assert.Equal(t, sdk.StateConnected, nextState(t, states))
	assert.Equal(t, sdk.StateConnected, s.State())

	var lines []string
	timeout := time.After(2 * time.Second)
	for len(lines) < 5 {
		select {
		case l := <-received:
			lines = append(lines, l)
		case <-timeout:
			t.Fatalf("only got %v", lines)
		}
	}
	assert.Equal(t, []string{
		"CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership",
		"PASS oauth:abc",
		"NICK tmikbot",
		"JOIN #tmik",
		"PONG :tmi.twitch.tv",
	}, lines)

	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	msg, err := msgs.Next(rctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text())
	assert.Equal(t, "bob", msg.Nick())

	msg, err = msgs.Next(rctx)
	require.NoError(t, err)
	assert.Equal(t, "PING", msg.Command)

	cancel()
	<-done
	assert.Equal(t, sdk.StateDisconnected, nextState(t, states))
}

func TestSession_SendWithoutConnection(t *testing.T) {
	s := NewSession(testConfig("ws://127.0.0.1:1"), zap.NewNop())
	assert.ErrorIs(t, s.SendRaw(context.Background(), "PING :x"), ErrNotConnected)
}

func TestSession_DialFailureReportsFailed(t *testing.T) {
	s := NewSession(testConfig("ws://127.0.0.1:1"), zap.NewNop())
	states := s.StateStream()
	defer states.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	assert.Equal(t, sdk.StateConnecting, nextState(t, states))
	assert.Equal(t, sdk.StateFailed, nextState(t, states))
	assert.Equal(t, sdk.StateReconnecting, nextState(t, states))
}

func TestSession_FakeMode(t *testing.T) {
	cfg := testConfig("")
	cfg.IRC.Fake = true
	cfg.IRC.FakeInterval = 5 * time.Millisecond
	s := NewSession(cfg, zap.NewNop())
	msgs := s.Messages()
	defer msgs.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	msg, err := msgs.Next(rctx)
	require.NoError(t, err)
	assert.Equal(t, "PRIVMSG", msg.Command)
	assert.Equal(t, "fakeuser", msg.Nick())
	assert.Equal(t, "tmik", strings.TrimPrefix(msg.Channel(), "#"))

	cancel()
	<-done
	_, err = msgs.Next(context.Background())
	assert.ErrorIs(t, err, sdk.ErrStreamClosed)
}

func TestSession_FakeSendEchoes(t *testing.T) {
	cfg := testConfig("")
	cfg.IRC.Fake = true
	s := NewSession(cfg, zap.NewNop())
	msgs := s.Messages()
	defer msgs.Close()

	require.NoError(t, s.SendRaw(context.Background(), PrivMsg("tmik", "hi")))
	msg, err := msgs.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TmikBot", msg.Nick())
	assert.Equal(t, "hi", msg.Text())
}

func TestSession_StalledConsumerDoesNotBlockSession(t *testing.T) {
	cfg := testConfig("")
	cfg.IRC.Fake = true
	s := NewSession(cfg, zap.NewNop())

	stalled := s.Messages()
	defer stalled.Close()
	live := s.Messages()
	defer live.Close()

	sent := make(chan struct{})
	go func() {
		for i := 0; i < 2*messageBuffer; i++ {
			_ = s.SendRaw(context.Background(), PrivMsg("tmik", "line"))
			_, _ = live.Next(context.Background())
		}
		close(sent)
	}()

	select {
	case <-sent:
	case <-time.After(5 * time.Second):
		t.Fatal("sends stalled behind an undrained subscriber")
	}

	subscribed := make(chan sdk.MessageStream, 1)
	go func() { subscribed <- s.Messages() }()
	select {
	case m := <-subscribed:
		m.Close()
	case <-time.After(time.Second):
		t.Fatal("new subscriber blocked behind an undrained subscriber")
	}
}

func TestNewDialer_FollowsReloadedConfig(t *testing.T) {
	cfg := testConfig("wss://example.invalid")
	s := NewSession(cfg, zap.NewNop())
	assert.False(t, newDialer(s.config()).TLSClientConfig.InsecureSkipVerify)

	reloaded := testConfig("wss://example.invalid")
	reloaded.IRC.Insecure = true
	s.Reload(reloaded)
	assert.True(t, newDialer(s.config()).TLSClientConfig.InsecureSkipVerify)
}
