// Package tui is the terminal room view. It renders a session's messages
// and drives the composer and scroll controller from keyboard input.
package tui

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/microcosm-cc/bluemonday"
	"github.com/npezzotti/gochat-client/internal/device"
	"github.com/npezzotti/gochat-client/internal/session"
	"github.com/npezzotti/gochat-client/internal/types"
	"github.com/npezzotti/gochat-client/internal/view"
	"github.com/rs/zerolog"
)

// rows used by everything but the feed: header, banner, jump line, input
const chromeHeight = 4

var (
	colorPrimary = lipgloss.Color("63")
	colorMuted   = lipgloss.Color("241")
	colorError   = lipgloss.Color("196")
	colorOK      = lipgloss.Color("42")
	colorWarn    = lipgloss.Color("214")

	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Padding(0, 1)
	timestampStyle = lipgloss.NewStyle().Foreground(colorMuted)
	authorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	ownAuthorStyle = lipgloss.NewStyle().Bold(true).Foreground(colorOK)
	attachStyle    = lipgloss.NewStyle().Italic(true).Foreground(colorWarn)
	errorStyle     = lipgloss.NewStyle().Foreground(colorError)
	noticeStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	jumpStyle      = lipgloss.NewStyle().Reverse(true).Padding(0, 1)
)

// Feed is the part of a room session the view reads.
type Feed interface {
	Updates() <-chan session.Update
	Messages() []types.Message
	State() session.State
	Participants() ([]string, int)
	Leave(ctx context.Context) error
	Room() types.Room
	User() types.User
}

// Sender is the part of a composer the view writes through.
type Sender interface {
	SendText(ctx context.Context, content string) error
	SendImage(ctx context.Context, image string) error
	SendLocation(ctx context.Context, lat, lng float64) error
}

type Options struct {
	Locator         device.Locator
	ImageLimit      int64
	ScrollThreshold int
	SettleDelay     time.Duration
	SendTimeout     time.Duration
}

type Model struct {
	feed       Feed
	sender     Sender
	locator    device.Locator
	imageLimit int64
	timeout    time.Duration
	scroll     *view.ScrollController
	policy     *bluemonday.Policy
	log        zerolog.Logger

	viewport viewport.Model
	input    textinput.Model
	width    int
	height   int
	ready    bool

	state        session.State
	participants int
	names        []string
	errBanner    string
	notice       string
	leaving      bool
	leaveErr     error
}

func New(feed Feed, sender Sender, l zerolog.Logger, opts Options) *Model {
	if opts.Locator == nil {
		opts.Locator = &device.StaticLocator{}
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}

	in := textinput.New()
	in.Placeholder = "Message, or /photo <path>, /loc, /who, /jump, /leave"
	in.Prompt = "> "
	in.CharLimit = 2000
	in.Focus()

	names, count := feed.Participants()
	return &Model{
		feed:         feed,
		sender:       sender,
		locator:      opts.Locator,
		imageLimit:   opts.ImageLimit,
		timeout:      opts.SendTimeout,
		scroll:       view.NewScrollController(opts.ScrollThreshold, opts.SettleDelay),
		policy:       bluemonday.StrictPolicy(),
		log:          l.With().Str("component", "tui").Logger(),
		viewport:     viewport.New(80, 20),
		input:        in,
		state:        feed.State(),
		participants: count,
		names:        names,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.feed.Updates()), textinput.Blink)
}

// LeaveErr reports the error, if any, from leaving the room.
func (m *Model) LeaveErr() error {
	return m.leaveErr
}

func (m *Model) updateLayout() {
	m.viewport.Width = m.width
	h := m.height - chromeHeight
	if h < 1 {
		h = 1
	}
	m.viewport.Height = h
	m.input.Width = m.width - len(m.input.Prompt) - 1
}

// refresh re-renders the feed and lets the scroll controller decide
// whether to follow it.
func (m *Model) refresh() tea.Cmd {
	msgs := m.feed.Messages()
	m.viewport.SetContent(m.render(msgs))
	cmd := m.apply(m.scroll.OnMessages(len(msgs)))
	m.syncScroll()
	return cmd
}

func (m *Model) apply(c view.Command) tea.Cmd {
	if c.Scroll != view.NoScroll {
		m.viewport.GotoBottom()
	}
	if c.RepeatAfter > 0 {
		return tea.Tick(c.RepeatAfter, func(time.Time) tea.Msg { return settleMsg{} })
	}
	return nil
}

func (m *Model) syncScroll() {
	m.scroll.OnViewport(m.distanceFromBottom())
}

func (m *Model) distanceFromBottom() int {
	d := m.viewport.TotalLineCount() - m.viewport.YOffset - m.viewport.Height
	if d < 0 {
		return 0
	}
	return d
}

// clean strips markup a sender may have injected and undoes the
// escaping the sanitizer applies.
func (m *Model) clean(s string) string {
	return html.UnescapeString(m.policy.Sanitize(s))
}

func (m *Model) render(msgs []types.Message) string {
	me := m.feed.User()
	wrap := lipgloss.NewStyle().Width(m.viewport.Width)

	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		style := authorStyle
		if msg.SenderId == me.Id || (msg.SenderId == "" && msg.SenderName == me.DisplayName) {
			style = ownAuthorStyle
		}

		body := m.clean(msg.Content)
		switch {
		case msg.Location != nil:
			body += " " + attachStyle.Render(describeLocation(*msg.Location))
		case msg.ImageData != "":
			body += " " + attachStyle.Render(describeImage(msg.ImageData))
		}

		line := fmt.Sprintf("%s %s: %s",
			timestampStyle.Render(msg.Time().Format("15:04")),
			style.Render(m.clean(msg.SenderName)),
			body,
		)
		lines = append(lines, wrap.Render(line))
	}
	return strings.Join(lines, "\n")
}

func describeLocation(loc types.Location) string {
	return fmt.Sprintf("[%.5f, %.5f] https://www.openstreetmap.org/?mlat=%.5f&mlon=%.5f",
		loc.Lat, loc.Lng, loc.Lat, loc.Lng)
}

func describeImage(src string) string {
	if !strings.HasPrefix(src, "data:") {
		return "[image " + src + "]"
	}
	meta, data, _ := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	mime, _, _ := strings.Cut(meta, ";")
	// base64 expands by 4/3
	return fmt.Sprintf("[%s, %d KB]", mime, (len(data)*3/4+1023)/1024)
}

func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := headerStyle.Render(fmt.Sprintf("#%s · %s · %d online",
		m.clean(m.feed.Room().Name), m.stateLabel(), m.participants))

	banner := ""
	switch {
	case m.errBanner != "":
		banner = errorStyle.Render("! " + m.errBanner + " (esc to dismiss)")
	case m.notice != "":
		banner = noticeStyle.Render(m.notice + " (esc to dismiss)")
	}

	jump := ""
	if m.scroll.JumpVisible() {
		jump = jumpStyle.Render("↓ new messages (ctrl+j)")
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, banner, m.viewport.View(), jump, m.input.View())
}

// whoIsHere lists the roster from the last join acknowledgement.
func (m *Model) whoIsHere() string {
	if len(m.names) == 0 {
		return fmt.Sprintf("%d online", m.participants)
	}
	names := make([]string, len(m.names))
	for i, n := range m.names {
		names[i] = m.clean(n)
	}
	return fmt.Sprintf("%d online: %s", m.participants, strings.Join(names, ", "))
}

func (m *Model) stateLabel() string {
	switch m.state {
	case session.StateJoined:
		return lipgloss.NewStyle().Foreground(colorOK).Render("● " + m.state.String())
	case session.StateDisconnected:
		return lipgloss.NewStyle().Foreground(colorError).Render("● " + m.state.String())
	default:
		return lipgloss.NewStyle().Foreground(colorWarn).Render("● " + m.state.String())
	}
}
