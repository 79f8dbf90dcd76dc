package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mkpazon/TmiK/internal/config"
	"github.com/mkpazon/TmiK/internal/events"
	"github.com/mkpazon/TmiK/pkg/sdk"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("irc: not connected")

// chat lines are dropped for a consumer this far behind; state is never dropped
const messageBuffer = 256

// Session is the root scope: it owns the websocket connection to the chat
// server, publishes parsed lines and connection state, and writes raw sends.
type Session struct {
	log    *zap.Logger
	msgs   *events.Bus[sdk.Message]
	states *events.Bus[sdk.ConnectionState]

	cfgMu sync.RWMutex
	cfg   *config.Config

	connMu sync.Mutex
	conn   *websocket.Conn

	state atomic.Int32
}

func NewSession(cfg *config.Config, log *zap.Logger) *Session {
	return &Session{
		cfg:    cfg,
		log:    log,
		msgs:   events.NewLossyBus[sdk.Message](messageBuffer),
		states: events.NewBus[sdk.ConnectionState](),
	}
}

// newDialer is built per dial so reloaded TLS settings apply on redial.
func newDialer(cfg *config.Config) *websocket.Dialer {
	return &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: cfg.IRC.Insecure},
	}
}

func (s *Session) Parent() sdk.Scope { return nil }

func (s *Session) Messages() sdk.MessageStream { return s.msgs.Subscribe() }

func (s *Session) StateStream() sdk.StateStream { return s.states.Subscribe() }

// State is the last published connection state.
func (s *Session) State() sdk.ConnectionState { return sdk.ConnectionState(s.state.Load()) }

func (s *Session) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Reload swaps the config; it takes effect on the next dial.
func (s *Session) Reload(cfg *config.Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

// Run keeps a session open until ctx is done, redialing after failures.
// It closes both streams on return.
func (s *Session) Run(ctx context.Context) {
	defer s.msgs.Close()
	defer s.states.Close()

	if s.config().IRC.Fake {
		s.runFake(ctx)
		return
	}

	next := sdk.StateConnecting
	for {
		s.setState(ctx, next)
		cfg := s.config()
		conn, _, err := newDialer(cfg).DialContext(ctx, cfg.IRC.URL, http.Header{"User-Agent": {"tmik-gateway"}})
		if err != nil {
			if ctx.Err() != nil {
				s.setState(context.Background(), sdk.StateDisconnected)
				return
			}
			s.log.Warn("irc dial failed", zap.String("url", cfg.IRC.URL), zap.Error(err))
			s.setState(ctx, sdk.StateFailed)
			if !sleep(ctx, cfg.IRC.RedialDelay) {
				s.setState(context.Background(), sdk.StateDisconnected)
				return
			}
			next = sdk.StateReconnecting
			continue
		}

		s.setConn(conn)
		if err := s.register(ctx, cfg); err != nil {
			s.log.Warn("irc register failed", zap.Error(err))
		} else {
			s.setState(ctx, sdk.StateConnected)
			s.log.Info("irc connected", zap.String("url", cfg.IRC.URL))
			s.readLoop(ctx, conn)
		}
		s.setConn(nil)
		_ = conn.Close()
		s.setState(context.Background(), sdk.StateDisconnected)

		if !sleep(ctx, cfg.IRC.RedialDelay) {
			return
		}
		next = sdk.StateReconnecting
	}
}

func (s *Session) register(ctx context.Context, cfg *config.Config) error {
	lines := []string{"CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership"}
	if cfg.IRC.Token != "" {
		lines = append(lines, "PASS "+cfg.IRC.Token)
	}
	lines = append(lines, "NICK "+strings.ToLower(cfg.IRC.Nick))
	for _, ch := range cfg.IRC.Channels {
		if !strings.HasPrefix(ch, "#") {
			ch = "#" + ch
		}
		lines = append(lines, "JOIN "+strings.ToLower(ch))
	}
	for _, l := range lines {
		if err := s.SendRaw(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("irc read", zap.Error(err))
			}
			return
		}
		for _, line := range strings.Split(string(data), "\r\n") {
			if line == "" {
				continue
			}
			s.handleLine(ctx, line)
		}
	}
}

func (s *Session) handleLine(ctx context.Context, line string) {
	msg, err := ParseMessage(line)
	if err != nil {
		s.log.Debug("irc skip line", zap.String("line", line), zap.Error(err))
		return
	}
	if msg.Command == "PING" {
		if err := s.SendRaw(ctx, "PONG :"+msg.Text()); err != nil {
			s.log.Warn("irc pong", zap.Error(err))
		}
	}
	_ = s.msgs.Publish(ctx, msg)
}

// SendRaw writes one line to the server.
func (s *Session) SendRaw(ctx context.Context, raw string) error {
	if s.config().IRC.Fake {
		s.log.Debug("irc fake send", zap.String("raw", raw))
		msg, err := ParseMessage(":" + s.config().IRC.Nick + "!fake@fake " + raw)
		if err != nil {
			return err
		}
		return s.msgs.Publish(ctx, msg)
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	return s.conn.WriteMessage(websocket.TextMessage, []byte(raw+"\r\n"))
}

func (s *Session) runFake(ctx context.Context) {
	cfg := s.config()
	s.setState(ctx, sdk.StateConnecting)
	s.setState(ctx, sdk.StateConnected)
	defer s.setState(context.Background(), sdk.StateDisconnected)

	channel := "#tmik"
	if len(cfg.IRC.Channels) > 0 {
		channel = cfg.IRC.Channels[0]
	}
	t := time.NewTicker(cfg.IRC.FakeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			line := ":fakeuser!fakeuser@fake " + PrivMsg(channel, "hello at "+now.UTC().Format(time.RFC3339))
			s.handleLine(ctx, line)
		}
	}
}

func (s *Session) setConn(c *websocket.Conn) {
	s.connMu.Lock()
	s.conn = c
	s.connMu.Unlock()
}

func (s *Session) setState(ctx context.Context, st sdk.ConnectionState) {
	if sdk.ConnectionState(s.state.Swap(int32(st))) == st {
		return
	}
	_ = s.states.Publish(ctx, st)
}

// Close drops the current connection; Run will redial unless its ctx is done.
func (s *Session) Close() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var (
	_ sdk.Scope         = (*Session)(nil)
	_ sdk.StateProvider = (*Session)(nil)
)
