package chatui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/logger"
)

// Streamer is the part of Client the UI depends on.
type Streamer interface {
	Stream(ctx context.Context, messages []domain.Message) (<-chan Fragment, error)
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// App is the bubbletea model of the terminal chat client.
type App struct {
	conv         *Conversation
	settings     *Settings
	settingsPath string
	newStreamer  func(*Settings) Streamer
	streamer     Streamer

	input  string
	notice string
	width  int

	stream <-chan Fragment
	cancel context.CancelFunc
}

// NewApp creates the chat model. newStreamer builds a client from settings
// and is called again whenever the settings change.
func NewApp(settings *Settings, settingsPath string, newStreamer func(*Settings) Streamer) *App {
	return &App{
		conv:         NewConversation(),
		settings:     settings,
		settingsPath: settingsPath,
		newStreamer:  newStreamer,
		streamer:     newStreamer(settings),
		width:        80,
	}
}

type streamStartedMsg struct{ ch <-chan Fragment }
type fragmentMsg struct{ text string }
type streamEndedMsg struct{ err error }

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case streamStartedMsg:
		a.stream = msg.ch
		return a, waitFragment(msg.ch)

	case fragmentMsg:
		a.conv.Append(msg.text)
		return a, waitFragment(a.stream)

	case streamEndedMsg:
		a.conv.Finish(msg.err)
		a.stream = nil
		if a.cancel != nil {
			a.cancel()
			a.cancel = nil
		}
		if msg.err != nil {
			logger.CtxError(context.Background(), "Chat reply failed: %v", msg.err)
		}
		return a, nil
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if a.cancel != nil {
			a.cancel()
		}
		return a, tea.Quit
	case tea.KeyEsc:
		// Cancelling closes the connection; the reader reports the end.
		if a.cancel != nil {
			a.cancel()
		}
		return a, nil
	case tea.KeyEnter:
		return a.submit()
	case tea.KeyBackspace:
		if r := []rune(a.input); len(r) > 0 {
			a.input = string(r[:len(r)-1])
		}
		return a, nil
	case tea.KeySpace:
		a.input += " "
		return a, nil
	case tea.KeyRunes:
		a.input += string(msg.Runes)
		return a, nil
	}
	return a, nil
}

func (a *App) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(a.input)
	if strings.HasPrefix(text, "/") {
		a.input = ""
		a.runCommand(text)
		return a, nil
	}

	history, err := a.conv.Submit(a.input)
	if err != nil {
		a.notice = err.Error()
		return a, nil
	}
	a.input = ""
	a.notice = ""

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	streamer := a.streamer
	return a, func() tea.Msg {
		ch, err := streamer.Stream(ctx, history)
		if err != nil {
			return streamEndedMsg{err: err}
		}
		return streamStartedMsg{ch: ch}
	}
}

// runCommand handles /video, /server and /reset.
func (a *App) runCommand(line string) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "video":
		a.settings.VideoURL = arg
	case "server":
		if arg == "" {
			a.notice = "usage: /server <url>"
			return
		}
		a.settings.ServerURL = arg
	case "reset":
		if err := a.conv.Reset(); err != nil {
			a.notice = err.Error()
		} else {
			a.notice = "conversation cleared"
		}
		return
	default:
		a.notice = fmt.Sprintf("unknown command /%s", name)
		return
	}

	if a.conv.Producing() {
		a.notice = "settings apply after the current reply"
	}
	a.streamer = a.newStreamer(a.settings)
	if err := a.settings.Save(a.settingsPath); err != nil {
		a.notice = fmt.Sprintf("settings not saved: %v", err)
		return
	}
	if a.notice == "" {
		a.notice = "settings saved"
	}
}

func waitFragment(ch <-chan Fragment) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-ch
		if !ok {
			return streamEndedMsg{}
		}
		if f.Err != nil {
			return streamEndedMsg{err: f.Err}
		}
		return fragmentMsg{text: f.Text}
	}
}

// View implements tea.Model.
func (a *App) View() string {
	body := lipgloss.NewStyle().Width(max(a.width-2, 20))

	lines := []string{titleStyle.Render("tubechat"), ""}
	if a.settings.VideoURL != "" {
		lines = append(lines, helpStyle.Render("video: "+a.settings.VideoURL), "")
	}

	for _, m := range a.conv.Messages() {
		label := assistantStyle.Render("Assistant:")
		if m.Role == domain.RoleUser {
			label = userStyle.Render("You:")
		}
		lines = append(lines, label, body.Render(m.Content), "")
	}

	if err := a.conv.Err(); err != nil {
		lines = append(lines, errorStyle.Render("Error: "+err.Error()), "")
	}
	if a.conv.Producing() {
		lines = append(lines, helpStyle.Render("replying… (esc to stop)"))
	}
	if a.notice != "" {
		lines = append(lines, helpStyle.Render(a.notice))
	}

	lines = append(lines, "> "+a.input)
	lines = append(lines, helpStyle.Render("enter: send | /video <url> | /server <url> | /reset | ctrl+c: quit"))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
