// Package discord provides a [chat.Source] that reads one Discord text
// channel as stream chat. The stream id is the channel ID; messages become
// comments and members joining the channel's guild become joins.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/streamtts/internal/chat"
)

// Platform is the name reported in events.
const Platform = "discord"

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithBuffer sets the session event buffer size.
func WithBuffer(n int) Option {
	return func(s *Source) { s.buffer = n }
}

// WithIncludeBots forwards messages written by bot accounts.
func WithIncludeBots(include bool) Option {
	return func(s *Source) { s.includeBots = include }
}

// Source connects to Discord with a bot token.
type Source struct {
	token       string
	buffer      int
	includeBots bool
	now         func() time.Time

	// newSession is replaced in tests.
	newSession func(token string) (gateway, error)
}

// gateway is the subset of *discordgo.Session the source uses.
type gateway interface {
	AddHandler(handler any) func()
	Open() error
	Close() error
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

var _ chat.Source = (*Source)(nil)

// New creates a Discord source. token is the bot token without the "Bot "
// prefix.
func New(token string, opts ...Option) (*Source, error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bot ")
	if token == "" {
		return nil, errors.New("discord: token must not be empty")
	}
	s := &Source{
		token:  token,
		buffer: 64,
		now:    time.Now,
		newSession: func(token string) (gateway, error) {
			dg, err := discordgo.New("Bot " + token)
			if err != nil {
				return nil, err
			}
			dg.Identify.Intents = discordgo.IntentsGuildMessages |
				discordgo.IntentsMessageContent |
				discordgo.IntentsGuildMembers |
				discordgo.IntentsGuilds
			return dg, nil
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Name returns "discord".
func (s *Source) Name() string { return Platform }

// Connect opens the gateway and resolves channelID. An unknown channel is
// reported as [chat.ErrNotFound].
func (s *Source) Connect(ctx context.Context, channelID string) (chat.Session, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, fmt.Errorf("discord: %w: empty channel id", chat.ErrNotFound)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dg, err := s.newSession(s.token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	if err := dg.Open(); err != nil {
		return nil, classify("open session", err)
	}
	ch, err := dg.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		_ = dg.Close()
		return nil, classify("resolve channel", err)
	}

	pipe := chat.NewPipe(s.buffer, dg.Close)
	f := &filter{source: s, channelID: ch.ID, guildID: ch.GuildID, pipe: pipe}
	dg.AddHandler(f.onMessage)
	dg.AddHandler(f.onMemberAdd)

	pipe.Emit(chat.Event{Kind: chat.EventConnected, Platform: Platform, UserID: ch.ID, Username: ch.Name, Received: s.now()})
	return pipe, nil
}

// filter translates gateway events for one channel.
type filter struct {
	source    *Source
	channelID string
	guildID   string
	pipe      *chat.Pipe
}

func (f *filter) onMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.ChannelID != f.channelID {
		return
	}
	if m.Author.Bot && !f.source.includeBots {
		return
	}
	if strings.TrimSpace(m.Content) == "" {
		return
	}
	name := m.Author.GlobalName
	if m.Member != nil && m.Member.Nick != "" {
		name = m.Member.Nick
	}
	if name == "" {
		name = m.Author.Username
	}
	f.pipe.Emit(chat.Event{
		Kind:     chat.EventComment,
		Platform: Platform,
		UserID:   m.Author.ID,
		Username: name,
		Text:     m.Content,
		Received: f.source.now(),
	})
}

func (f *filter) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m == nil || m.Member == nil || m.User == nil || m.GuildID != f.guildID {
		return
	}
	name := m.Nick
	if name == "" {
		name = m.User.GlobalName
	}
	if name == "" {
		name = m.User.Username
	}
	f.pipe.Emit(chat.Event{Kind: chat.EventUserJoined, Platform: Platform, UserID: m.User.ID, Username: name, Received: f.source.now()})
}

// classify wraps REST and gateway errors with the chat sentinels.
func classify(op string, err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("discord: %s: %w: %w", op, chat.ErrNotFound, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("discord: %s: %w: %w", op, chat.ErrRateLimited, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("discord: %s: %w: %w", op, chat.ErrBlocked, err)
		}
	}
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return fmt.Errorf("discord: %s: %w: %w", op, chat.ErrRateLimited, err)
	}
	if chat.Classify(err) == chat.ClassTransient {
		return fmt.Errorf("discord: %s: %w: %w", op, chat.ErrTransient, err)
	}
	return fmt.Errorf("discord: %s: %w", op, err)
}
