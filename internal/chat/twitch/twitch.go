// Package twitch provides a [chat.Source] that reads a Twitch channel's chat
// over IRC using github.com/gempir/go-twitch-irc/v4.
//
// Without credentials the source joins anonymously, which is enough to read
// chat. JOIN events are only delivered for channels small enough that Twitch
// still sends membership updates.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/MrWong99/streamtts/internal/chat"
)

// Platform is the name reported in events.
const Platform = "twitch"

// defaultConnectTimeout bounds the wait for the IRC welcome.
const defaultConnectTimeout = 15 * time.Second

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithCredentials logs in as username with an OAuth token ("oauth:..."). When
// unset the connection is anonymous.
func WithCredentials(username, token string) Option {
	return func(s *Source) {
		s.username = username
		s.token = token
	}
}

// WithServer overrides the IRC address. useTLS selects an encrypted
// connection.
func WithServer(addr string, useTLS bool) Option {
	return func(s *Source) {
		s.address = addr
		s.tls = useTLS
		s.customServer = true
	}
}

// WithConnectTimeout bounds how long Connect waits for the server welcome.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// WithBuffer sets the session event buffer size.
func WithBuffer(n int) Option {
	return func(s *Source) { s.buffer = n }
}

// Source connects to Twitch chat.
type Source struct {
	username       string
	token          string
	address        string
	tls            bool
	customServer   bool
	connectTimeout time.Duration
	buffer         int
	now            func() time.Time
}

var _ chat.Source = (*Source)(nil)

// New creates a Twitch source.
func New(opts ...Option) *Source {
	s := &Source{
		connectTimeout: defaultConnectTimeout,
		buffer:         64,
		now:            time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name returns "twitch".
func (s *Source) Name() string { return Platform }

// Connect joins the chat of streamID (the channel login, with or without a
// leading '#' or '@') and returns once the server has welcomed the client.
func (s *Source) Connect(ctx context.Context, streamID string) (chat.Session, error) {
	channel := strings.ToLower(strings.TrimLeft(strings.TrimSpace(streamID), "#@"))
	if channel == "" {
		return nil, fmt.Errorf("twitch: %w: empty channel", chat.ErrNotFound)
	}

	client := s.newClient()
	pipe := chat.NewPipe(s.buffer, func() error {
		err := client.Disconnect()
		if errors.Is(err, twitch.ErrConnectionIsNotOpen) {
			return nil
		}
		return err
	})

	welcomed := make(chan struct{})
	var once sync.Once
	client.OnConnect(func() {
		// The client reconnects on its own after network drops.
		once.Do(func() { close(welcomed) })
		pipe.Emit(chat.Event{Kind: chat.EventConnected, Platform: Platform, UserID: channel, Received: s.now()})
	})
	client.OnPrivateMessage(func(m twitch.PrivateMessage) {
		if !strings.EqualFold(m.Channel, channel) {
			return
		}
		pipe.Emit(s.commentEvent(m))
	})
	client.OnUserJoinMessage(func(m twitch.UserJoinMessage) {
		if !strings.EqualFold(m.Channel, channel) || strings.EqualFold(m.User, s.login()) {
			return
		}
		pipe.Emit(chat.Event{Kind: chat.EventUserJoined, Platform: Platform, UserID: m.User, Username: m.User, Received: s.now()})
	})
	client.OnNoticeMessage(func(m twitch.NoticeMessage) {
		if err := noticeError(m.MsgID, m.Message); err != nil {
			pipe.Finish(err)
			_ = client.Disconnect()
		}
	})
	client.Join(channel)

	go func() {
		pipe.Finish(connectError(client.Connect()))
	}()

	timer := time.NewTimer(s.connectTimeout)
	defer timer.Stop()
	select {
	case <-welcomed:
		return pipe, nil
	case <-pipe.Done():
		// A NOTICE or a failed Connect ended the session before the welcome.
		_ = pipe.Close()
		if err := pipe.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("twitch: %w: connection closed during login", chat.ErrTransient)
	case <-timer.C:
		_ = pipe.Close()
		return nil, fmt.Errorf("twitch: %w: no welcome after %s", chat.ErrTransient, s.connectTimeout)
	case <-ctx.Done():
		_ = pipe.Close()
		return nil, ctx.Err()
	}
}

func (s *Source) newClient() *twitch.Client {
	var c *twitch.Client
	if s.username != "" && s.token != "" {
		c = twitch.NewClient(s.username, s.token)
	} else {
		c = twitch.NewAnonymousClient()
	}
	if s.customServer {
		c.IrcAddress = s.address
		c.TLS = s.tls
	}
	return c
}

// login is the nick used on IRC; joins by it are the bot's own.
func (s *Source) login() string {
	if s.username != "" {
		return strings.ToLower(s.username)
	}
	return "justinfan123123"
}

func (s *Source) commentEvent(m twitch.PrivateMessage) chat.Event {
	name := m.User.DisplayName
	if name == "" {
		name = m.User.Name
	}
	id := m.User.ID
	if id == "" {
		id = m.User.Name
	}
	return chat.Event{
		Kind:     chat.EventComment,
		Platform: Platform,
		UserID:   id,
		Username: name,
		Text:     m.Message,
		Received: s.now(),
	}
}

// noticeError maps session-ending NOTICE ids to classification sentinels.
// Notices that do not end the session return nil.
func noticeError(msgID, text string) error {
	switch msgID {
	case "msg_channel_suspended", "msg_channel_blocked", "invalid_channel":
		return fmt.Errorf("twitch: %w: %s", chat.ErrNotFound, text)
	case "msg_banned":
		return fmt.Errorf("twitch: %w: %s", chat.ErrBlocked, text)
	case "msg_ratelimit", "msg_requires_verified_phone_number":
		return fmt.Errorf("twitch: %w: %s", chat.ErrRateLimited, text)
	}
	if strings.Contains(strings.ToLower(text), "login authentication failed") {
		return fmt.Errorf("twitch: %w: %s", chat.ErrBlocked, text)
	}
	return nil
}

// connectError translates the error returned by Client.Connect.
func connectError(err error) error {
	switch {
	case err == nil, errors.Is(err, twitch.ErrClientDisconnected):
		return nil
	case errors.Is(err, twitch.ErrLoginAuthenticationFailed):
		return fmt.Errorf("twitch: %w: %w", chat.ErrBlocked, err)
	default:
		return fmt.Errorf("twitch: %w: %w", chat.ErrTransient, err)
	}
}
