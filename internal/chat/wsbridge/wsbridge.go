// Package wsbridge provides a [chat.Source] that reads chat events from a
// websocket relay. Relays bridge platforms without a public chat API (TikTok
// LIVE, for example) and push one JSON frame per event:
//
//	{"type":"comment","user_id":"123","username":"alice","text":"hi"}
//	{"type":"join","user_id":"456","username":"bob"}
//	{"type":"connected"}
//	{"type":"error","code":"not_found","message":"user is offline"}
//	{"type":"end"}
//
// Error codes "not_found", "offline", "rate_limited", "blocked" and
// "network" map onto the chat classification sentinels.
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/streamtts/internal/chat"
)

// Frame types sent by the relay.
const (
	FrameConnected = "connected"
	FrameJoin      = "join"
	FrameComment   = "comment"
	FrameError     = "error"
	FrameEnd       = "end"
)

// Frame is one relay message.
type Frame struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithPlatform sets the platform name reported in events. Defaults to
// "tiktok".
func WithPlatform(name string) Option {
	return func(s *Source) { s.platform = name }
}

// WithHeader adds a header to the websocket handshake (for bearer tokens).
func WithHeader(key, value string) Option {
	return func(s *Source) { s.header.Add(key, value) }
}

// WithHTTPClient sets the client used for the handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.httpClient = c }
}

// WithBuffer sets the session event buffer size.
func WithBuffer(n int) Option {
	return func(s *Source) { s.buffer = n }
}

// WithReadLimit caps the size of one relay frame.
func WithReadLimit(n int64) Option {
	return func(s *Source) { s.readLimit = n }
}

// Source connects to a websocket chat relay.
type Source struct {
	urlTemplate string
	platform    string
	header      http.Header
	httpClient  *http.Client
	buffer      int
	readLimit   int64
	now         func() time.Time
}

var _ chat.Source = (*Source)(nil)

// New creates a relay source. urlTemplate is a ws:// or wss:// URL; a "%s"
// in it is replaced with the escaped stream id, otherwise the id is sent as
// the "stream" query parameter.
func New(urlTemplate string, opts ...Option) (*Source, error) {
	u, err := url.Parse(strings.ReplaceAll(urlTemplate, "%s", "x"))
	if err != nil {
		return nil, fmt.Errorf("wsbridge: parse url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("wsbridge: unsupported url scheme %q", u.Scheme)
	}
	s := &Source{
		urlTemplate: urlTemplate,
		platform:    "tiktok",
		header:      http.Header{},
		buffer:      64,
		readLimit:   1 << 20,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Name returns the configured platform name.
func (s *Source) Name() string { return s.platform }

// Connect dials the relay for streamID. The handshake status is mapped onto
// the classification sentinels (404 not found, 429 rate limited, 403
// blocked). The first frame must arrive for Connect to succeed; an error
// frame at that point is returned as the connect error.
func (s *Source) Connect(ctx context.Context, streamID string) (chat.Session, error) {
	streamID = strings.TrimPrefix(strings.TrimSpace(streamID), "@")
	if streamID == "" {
		return nil, fmt.Errorf("wsbridge: %w: empty stream id", chat.ErrNotFound)
	}

	conn, resp, err := websocket.Dial(ctx, s.dialURL(streamID), &websocket.DialOptions{
		HTTPClient: s.httpClient,
		HTTPHeader: s.header,
	})
	if err != nil {
		return nil, dialError(resp, err)
	}
	conn.SetReadLimit(s.readLimit)

	first, err := readFrame(ctx, conn)
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("wsbridge: %w: read first frame: %w", chat.ErrTransient, err)
	}
	if first.Type == FrameError {
		conn.Close(websocket.StatusNormalClosure, "")
		return nil, frameError(first)
	}

	pipe := chat.NewPipe(s.buffer, func() error {
		return conn.Close(websocket.StatusNormalClosure, "bye")
	})
	s.deliver(pipe, streamID, first)
	go s.read(conn, pipe, streamID)
	return pipe, nil
}

func (s *Source) read(conn *websocket.Conn, pipe *chat.Pipe, streamID string) {
	// The connection lives until the pipe is closed, not until the
	// caller's Connect context ends.
	ctx := context.Background()
	for {
		f, err := readFrame(ctx, conn)
		if err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				slog.Warn("wsbridge: skipping malformed frame", "err", err)
				continue
			}
			pipe.Finish(readError(err))
			return
		}
		if done := s.deliver(pipe, streamID, f); done {
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

// deliver emits f on pipe. It reports whether the frame ended the session.
func (s *Source) deliver(pipe *chat.Pipe, streamID string, f Frame) bool {
	ev := chat.Event{Platform: s.platform, UserID: f.UserID, Username: f.Username, Received: s.now()}
	switch f.Type {
	case FrameConnected:
		ev.Kind = chat.EventConnected
		if ev.UserID == "" {
			ev.UserID = streamID
		}
	case FrameJoin:
		ev.Kind = chat.EventUserJoined
	case FrameComment:
		ev.Kind = chat.EventComment
		ev.Text = f.Text
	case FrameError:
		pipe.Finish(frameError(f))
		return true
	case FrameEnd:
		pipe.Finish(nil)
		return true
	default:
		slog.Debug("wsbridge: ignoring frame", "type", f.Type)
		return false
	}
	pipe.Emit(ev)
	return false
}

func (s *Source) dialURL(streamID string) string {
	if strings.Contains(s.urlTemplate, "%s") {
		return strings.ReplaceAll(s.urlTemplate, "%s", url.PathEscape(streamID))
	}
	u, _ := url.Parse(s.urlTemplate)
	q := u.Query()
	q.Set("stream", streamID)
	u.RawQuery = q.Encode()
	return u.String()
}

func readFrame(ctx context.Context, conn *websocket.Conn) (Frame, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func dialError(resp *http.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("wsbridge: %w: %w", chat.ErrNotFound, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("wsbridge: %w: %w", chat.ErrRateLimited, err)
		case http.StatusForbidden:
			return fmt.Errorf("wsbridge: %w: %w", chat.ErrBlocked, err)
		}
	}
	return fmt.Errorf("wsbridge: %w: dial: %w", chat.ErrTransient, err)
}

func readError(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	case -1:
		return fmt.Errorf("wsbridge: %w: %w", chat.ErrTransient, err)
	default:
		return fmt.Errorf("wsbridge: relay closed: %w", err)
	}
}

func frameError(f Frame) error {
	msg := f.Message
	if msg == "" {
		msg = f.Code
	}
	switch f.Code {
	case "not_found", "offline":
		return fmt.Errorf("wsbridge: %w: %s", chat.ErrNotFound, msg)
	case "rate_limited":
		return fmt.Errorf("wsbridge: %w: %s", chat.ErrRateLimited, msg)
	case "blocked":
		return fmt.Errorf("wsbridge: %w: %s", chat.ErrBlocked, msg)
	case "network":
		return fmt.Errorf("wsbridge: %w: %s", chat.ErrTransient, msg)
	default:
		return fmt.Errorf("wsbridge: relay error: %s", msg)
	}
}
