// Package tui is the terminal control panel: statistics, the activity log,
// the links file and key bindings for every operator action.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/streamtts/internal/bot"
	"github.com/MrWong99/streamtts/internal/links"
	"github.com/MrWong99/streamtts/internal/livecheck"
	"github.com/MrWong99/streamtts/internal/stats"
	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

// maxLogLines caps the activity log kept in memory.
const maxLogLines = 500

// Controller is the bot surface the panel drives. [*bot.Bot] implements it.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	ResetRateLimit() error
	SetStreamID(id string) error
	TestSpeech(ctx context.Context, text string) error
	TestConnection(ctx context.Context) (livecheck.Report, error)
	Voice() tts.VoiceProfile
	Voices() []tts.VoiceProfile
	SetVoice(nameOrID string) (tts.VoiceProfile, error)
	ExportUsers() (string, error)
	ClearUsers()
	Snapshot() stats.Snapshot
}

// Links is the links file shown in the side pane. [*links.Store]
// implements it.
type Links interface {
	Load() (links.Document, error)
	Reload() (links.Document, error)
	Open(url string) error
	Copy(text string) error
}

var (
	_ Controller = (*bot.Bot)(nil)
	_ Links      = (*links.Store)(nil)
)

type tickMsg time.Time

// opDoneMsg reports a finished operator action. Details are already in the
// activity log through the bot's sink; err is shown in the status line.
type opDoneMsg struct {
	op  string
	err error
}

type linksMsg struct {
	doc links.Document
	err error
}

// Model is the bubbletea model of the panel.
type Model struct {
	ctx   context.Context
	ctrl  Controller
	links Links
	sink  *Sink
	keys  KeyMap

	help   help.Model
	stream textinput.Model
	log    viewport.Model
	lines  []string

	snap     stats.Snapshot
	doc      links.Document
	linksErr error
	items    []links.Item
	cursor   int

	showLinks bool
	editing   bool
	status    string
	statusErr bool

	width, height int
}

// Option configures a [Model].
type Option func(*Model)

// WithLinks enables the links pane.
func WithLinks(l Links) Option { return func(m *Model) { m.links = l } }

// WithStreamID pre-fills the stream input.
func WithStreamID(id string) Option { return func(m *Model) { m.stream.SetValue(id) } }

// New creates the panel. Operator actions run with ctx; sink must be the
// sink the bot logs to.
func New(ctx context.Context, ctrl Controller, sink *Sink, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "stream username"
	ti.Prompt = "@"
	ti.CharLimit = 64

	m := Model{
		ctx:    ctx,
		ctrl:   ctrl,
		sink:   sink,
		keys:   NewKeyMap(),
		help:   help.New(),
		stream: ti,
		log:    viewport.New(80, 10),
		snap:   ctrl.Snapshot(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Run shows the panel until the operator quits or ctx ends.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.sink.next(), tick()}
	if m.links != nil {
		cmds = append(cmds, m.loadLinks(false))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case entryMsg:
		m.appendLog(stats.Entry(msg))
		return m, m.sink.next()

	case snapshotMsg:
		m.snap = stats.Snapshot(msg)
		return m, m.sink.next()

	case tickMsg:
		m.snap = m.ctrl.Snapshot()
		return m, tick()

	case opDoneMsg:
		m.setStatus(msg.op, msg.err)
		m.snap = m.ctrl.Snapshot()
		return m, nil

	case linksMsg:
		m.doc, m.linksErr = msg.doc, msg.err
		m.items = msg.doc.Links()
		if m.cursor >= len(m.items) {
			m.cursor = max(len(m.items)-1, 0)
		}
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.updateKeys(msg)
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.editing = false
		m.stream.Blur()
		id := strings.TrimSpace(m.stream.Value())
		return m, m.run("set stream", func() error { return m.ctrl.SetStreamID(id) })
	case tea.KeyEsc:
		m.editing = false
		m.stream.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.stream, cmd = m.stream.Update(msg)
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		return m, tea.Quit
	case key.Matches(msg, k.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize()
		return m, nil
	case key.Matches(msg, k.EditStream):
		m.editing = true
		cmd := m.stream.Focus()
		return m, cmd
	case key.Matches(msg, k.Start):
		return m, m.startCmd()
	case key.Matches(msg, k.Stop):
		return m, m.run("stop", m.ctrl.Stop)
	case key.Matches(msg, k.TestSpeech):
		return m, m.run("test speech", func() error { return m.ctrl.TestSpeech(m.ctx, "") })
	case key.Matches(msg, k.TestConnection):
		return m, m.run("test connection", func() error {
			_, err := m.ctrl.TestConnection(m.ctx)
			return err
		})
	case key.Matches(msg, k.ResetRateLimit):
		return m, m.run("reset rate limit", m.ctrl.ResetRateLimit)
	case key.Matches(msg, k.NextVoice):
		return m, m.cycleVoice(1)
	case key.Matches(msg, k.PrevVoice):
		return m, m.cycleVoice(-1)
	case key.Matches(msg, k.ExportUsers):
		return m, m.run("export users", func() error {
			_, err := m.ctrl.ExportUsers()
			return err
		})
	case key.Matches(msg, k.ClearUsers):
		return m, m.run("clear users", func() error { m.ctrl.ClearUsers(); return nil })
	case key.Matches(msg, k.ToggleLinks):
		if m.links == nil {
			m.setStatus("links", errors.New("no links file configured"))
			return m, nil
		}
		m.showLinks = !m.showLinks
		m.resize()
		return m, nil
	}

	if m.showLinks && m.links != nil {
		switch {
		case key.Matches(msg, k.ReloadLinks):
			return m, m.loadLinks(true)
		case key.Matches(msg, k.Up):
			m.cursor = max(m.cursor-1, 0)
			return m, nil
		case key.Matches(msg, k.Down):
			m.cursor = min(m.cursor+1, max(len(m.items)-1, 0))
			return m, nil
		case key.Matches(msg, k.OpenLink):
			if it, ok := m.selected(); ok {
				return m, m.run("open link", func() error { return m.links.Open(it.URL) })
			}
			return m, nil
		case key.Matches(msg, k.CopyLink):
			if it, ok := m.selected(); ok {
				return m, m.run("copy link", func() error { return m.links.Copy(it.URL) })
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

// startCmd applies a pending stream edit before starting.
func (m Model) startCmd() tea.Cmd {
	id := strings.TrimSpace(m.stream.Value())
	current := m.ctrl.Snapshot()
	return m.run("start", func() error {
		if id != "" && !current.Running {
			if err := m.ctrl.SetStreamID(id); err != nil {
				return err
			}
		}
		return m.ctrl.Start(m.ctx)
	})
}

func (m Model) cycleVoice(step int) tea.Cmd {
	voices := m.ctrl.Voices()
	if len(voices) == 0 {
		return nil
	}
	current := m.ctrl.Voice().ID
	idx := 0
	for i, v := range voices {
		if v.ID == current {
			idx = i
			break
		}
	}
	next := voices[(idx+step+len(voices))%len(voices)]
	return m.run("set voice", func() error {
		_, err := m.ctrl.SetVoice(next.ID)
		return err
	})
}

func (m Model) run(op string, fn func() error) tea.Cmd {
	return func() tea.Msg { return opDoneMsg{op: op, err: fn()} }
}

func (m Model) loadLinks(reload bool) tea.Cmd {
	l := m.links
	return func() tea.Msg {
		var (
			doc links.Document
			err error
		)
		if reload {
			doc, err = l.Reload()
		} else {
			doc, err = l.Load()
		}
		return linksMsg{doc: doc, err: err}
	}
}

func (m *Model) selected() (links.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return links.Item{}, false
	}
	return m.items[m.cursor], true
}

func (m *Model) setStatus(op string, err error) {
	if err != nil {
		m.status, m.statusErr = fmt.Sprintf("%s failed: %v", op, err), true
		return
	}
	m.status, m.statusErr = op+" ok", false
}

func (m *Model) appendLog(e stats.Entry) {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	line := mutedStyle.Render("["+ts.Format("15:04:05")+"]") + " " + levelStyle(e.Level).Render(e.Message)
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	atBottom := m.log.AtBottom()
	m.log.SetContent(strings.Join(m.lines, "\n"))
	if atBottom {
		m.log.GotoBottom()
	}
}

// resize fits the log viewport between the header and the help line.
func (m *Model) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	w := m.width - 4
	if m.showLinks {
		w = m.width*3/5 - 4
	}
	helpLines := 1
	if m.help.ShowAll {
		helpLines = 5
	}
	// title, stats panel (5 rows + border), stream line, status line, help
	h := m.height - 1 - 7 - 1 - 1 - helpLines - 2
	m.log.Width = max(w, 20)
	m.log.Height = max(h, 3)
}
