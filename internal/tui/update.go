package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/npezzotti/gochat-client/internal/device"
	"github.com/npezzotti/gochat-client/internal/session"
)

type updateMsg session.Update

type updatesClosedMsg struct{}

// settleMsg repeats the initial scroll once late content has rendered.
type settleMsg struct{}

type sendResultMsg struct {
	err error
}

type leftMsg struct {
	err error
}

var errUnknownCommand = errors.New("unknown command")

func waitForUpdate(ch <-chan session.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return updatesClosedMsg{}
		}
		return updateMsg(u)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg)
	case tea.MouseMsg:
		return m.handleMouse(msg)
	case updateMsg:
		return m.handleSessionUpdate(session.Update(msg))
	case updatesClosedMsg:
		if m.leaving {
			return m, nil
		}
		return m, tea.Quit
	case settleMsg:
		m.viewport.GotoBottom()
		m.syncScroll()
		return m, nil
	case sendResultMsg:
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Msg("send failed")
			m.errBanner = msg.err.Error()
		}
		return m, nil
	case leftMsg:
		m.leaveErr = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleWindowSize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.updateLayout()
	m.ready = true
	return m, m.refresh()
}

func (m *Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.LineUp(3)
	case tea.MouseButtonWheelDown:
		m.viewport.LineDown(3)
	default:
		return m, nil
	}
	m.syncScroll()
	return m, nil
}

func (m *Model) handleSessionUpdate(u session.Update) (tea.Model, tea.Cmd) {
	next := waitForUpdate(m.feed.Updates())

	switch u.Kind {
	case session.UpdateState:
		m.state = u.State
	case session.UpdateMessage:
		return m, tea.Batch(m.refresh(), next)
	case session.UpdateRoster:
		m.participants = u.Roster.Count
		m.names = u.Roster.Names
	case session.UpdateError:
		if u.Err != nil {
			m.errBanner = u.Err.Error()
		}
	}
	return m, next
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m.leave()
	case "esc":
		m.errBanner = ""
		m.notice = ""
		return m, nil
	case "ctrl+j", "end":
		return m, m.apply(m.scroll.JumpToLatest())
	case "pgup":
		m.viewport.ViewUp()
	case "pgdown":
		m.viewport.ViewDown()
	case "up":
		m.viewport.LineUp(1)
	case "down":
		m.viewport.LineDown(1)
	case "enter":
		return m.submit()
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	m.syncScroll()
	return m, nil
}

func (m *Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	if !strings.HasPrefix(text, "/") {
		return m, m.send(func(ctx context.Context) error {
			return m.sender.SendText(ctx, text)
		})
	}

	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/photo":
		if arg == "" {
			m.errBanner = "usage: /photo <path>"
			return m, nil
		}
		limit := m.imageLimit
		return m, m.send(func(ctx context.Context) error {
			image, err := device.ReadImage(arg, limit)
			if err != nil {
				return err
			}
			return m.sender.SendImage(ctx, image)
		})
	case "/loc":
		locator := m.locator
		return m, m.send(func(ctx context.Context) error {
			loc, err := locator.Locate(ctx)
			if err != nil {
				return err
			}
			return m.sender.SendLocation(ctx, loc.Lat, loc.Lng)
		})
	case "/who":
		m.notice = m.whoIsHere()
		return m, nil
	case "/jump":
		return m, m.apply(m.scroll.JumpToLatest())
	case "/leave":
		return m.leave()
	default:
		m.errBanner = errUnknownCommand.Error() + ": " + cmd
		return m, nil
	}
}

// send runs f off the update loop; device reads and the session round
// trip both block.
func (m *Model) send(f func(ctx context.Context) error) tea.Cmd {
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return sendResultMsg{err: f(ctx)}
	}
}

func (m *Model) leave() (tea.Model, tea.Cmd) {
	if m.leaving {
		return m, nil
	}
	m.leaving = true
	feed, timeout := m.feed, m.timeout
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return leftMsg{err: feed.Leave(ctx)}
	}
}

var _ tea.Model = (*Model)(nil)
