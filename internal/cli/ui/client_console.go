package ui

import (
	"context"
	"fmt"
	"os"
	"time"

	"vpainless/internal/lifecycle"
	"vpainless/internal/session"
	"vpainless/pkg/logger"
	"vpainless/pkg/sdk"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const noticeDuration = 4 * time.Second

type clientModel struct {
	client *sdk.Client
	store  *session.Store
	mgr    *lifecycle.Manager

	state   lifecycle.State
	spin    spinner.Model
	notice  string
	bad     bool
	confirm string
	busy    bool
	action  Action
	width   int
	height  int
}

type instancesMsg []sdk.Instance
type stateMsg lifecycle.State
type opDoneMsg struct{ err error }
type clearNoticeMsg struct{}

// RunClientConsole shows the client's single-instance console and returns
// the action the user chose to leave with.
func RunClientConsole(client *sdk.Client, store *session.Store, interval time.Duration) Action {
	mgr := lifecycle.New(client, interval, logger.Get())
	defer mgr.Close()

	m := newClientModel(client, store, mgr)

	program := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := program.Run()
	if err != nil {
		fmt.Printf("Error running client console: %v", err)
		os.Exit(1)
	}

	if m, ok := finalModel.(clientModel); ok {
		return m.action
	}
	return ActionQuit
}

func newClientModel(client *sdk.Client, store *session.Store, mgr *lifecycle.Manager) clientModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return clientModel{
		client: client,
		store:  store,
		mgr:    mgr,
		spin:   s,
		action: ActionQuit,
	}
}

func (m clientModel) Init() tea.Cmd {
	return tea.Batch(fetchInstances(m.client), listenUpdates(m.mgr), m.spin.Tick)
}

func (m clientModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case instancesMsg:
		if len(msg) > 1 {
			m.notice, m.bad = "You have more than one instance; contact your admin", true
			return m, clearNotice()
		}
		if len(msg) == 1 {
			inst := msg[0]
			m.mgr.Adopt(&inst)
		} else {
			m.mgr.Adopt(nil)
		}
		m.state = m.mgr.Current()
		return m, nil

	case stateMsg:
		prev := m.state.Phase
		m.state = lifecycle.State(msg)
		var cmd tea.Cmd
		if m.state.Err != nil && m.state.Phase != lifecycle.PhaseReady {
			m.notice, m.bad = errText(m.state.Err), true
			cmd = clearNotice()
		} else if m.state.Phase == lifecycle.PhaseReady && prev != lifecycle.PhaseReady {
			m.notice, m.bad = "VPN Ready!", false
			cmd = clearNotice()
		}
		return m, tea.Batch(listenUpdates(m.mgr), cmd)

	case opDoneMsg:
		m.busy = false
		if msg.err != nil && !sdk.IsCanceled(msg.err) {
			m.notice, m.bad = errText(msg.err), true
			return m, clearNotice()
		}
		return m, nil

	case clearNoticeMsg:
		m.notice = ""
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m clientModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm != "" {
		switch msg.String() {
		case "enter", "y":
			op := m.confirm
			m.confirm = ""
			m.busy = true
			if op == "renew" {
				return m, renewInstance(m.mgr)
			}
			return m, deleteInstance(m.mgr)
		case "esc", "n":
			m.confirm = ""
			return m, nil
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.action = ActionQuit
		return m, tea.Quit
	case "L":
		m.action = ActionLogout
		return m, tea.Quit
	case "c":
		if m.busy || m.state.Instance != nil || m.state.Phase == lifecycle.PhaseProvisioning {
			return m, nil
		}
		m.busy = true
		return m, createInstance(m.mgr)
	case "r":
		if m.busy || m.state.Instance == nil {
			return m, nil
		}
		m.confirm = "renew"
		return m, nil
	case "d":
		if m.busy || m.state.Instance == nil {
			return m, nil
		}
		m.confirm = "delete"
		return m, nil
	case "s":
		if m.state.Instance == nil {
			return m, nil
		}
		return m, refreshStatus(m.mgr)
	case "y":
		return m.copyConnectionString()
	}
	return m, nil
}

func (m clientModel) copyConnectionString() (tea.Model, tea.Cmd) {
	if m.state.Instance == nil || m.state.Instance.ConnectionString == "" {
		return m, nil
	}
	if err := clipboard.WriteAll(m.state.Instance.ConnectionString); err != nil {
		m.notice, m.bad = "Could not copy to the clipboard; copy the text above manually", true
	} else {
		m.notice, m.bad = "Connection string copied to the clipboard!", false
	}
	return m, clearNotice()
}

func (m clientModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	name := ""
	if p := m.store.Get(); p != nil {
		name = p.Name
	}
	header := headerStyle.Render("VPN") + "\n" + subtleStyle.Render(name+" @ "+m.client.BaseURL())

	var body string
	switch {
	case m.confirm == "renew":
		body = "Are you sure? The current instance is deleted first.\nThis action cannot be undone.\n\n" +
			labelStyle.Render("enter: renew • esc: cancel")
	case m.confirm == "delete":
		body = fmt.Sprintf("Are you sure? Deleting %s.\n\n", m.state.Instance.ID) +
			labelStyle.Render("enter: delete • esc: cancel")
	default:
		body = m.instanceView()
	}

	box := baseStyle.Width(min(m.width-4, 72)).Render(body)

	statusLine := m.noticeView()
	footer := footerStyle.Render(m.helpView())

	page := lipgloss.JoinVertical(lipgloss.Center, header, box, statusLine, footer)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, page)
}

func (m clientModel) instanceView() string {
	st := m.state

	switch st.Phase {
	case lifecycle.PhaseNone, lifecycle.PhaseError:
		return subtleStyle.Render("No instance. Press 'c' to create one.")
	case lifecycle.PhaseReady:
		body := successStyle.Render("● ready")
		if st.Instance.IP != "" {
			body += subtleStyle.Render("  " + st.Instance.IP)
		}
		if st.Instance.ConnectionString != "" {
			body += "\n\n" + st.Instance.ConnectionString
		}
		return body
	default:
		label := st.Label
		if label == "" {
			label = "working..."
		}
		return fmt.Sprintf("%s %s\n\n%s", m.spin.View(), label,
			subtleStyle.Render("Please be patient: instance creation may take 5 minutes or more."))
	}
}

func (m clientModel) noticeView() string {
	if m.notice == "" {
		return " "
	}
	if m.bad {
		return errorStyle.Render(m.notice)
	}
	return noticeStyle.Render(m.notice)
}

func (m clientModel) helpView() string {
	switch {
	case m.confirm != "":
		return "enter: yes • esc: no"
	case m.state.Instance == nil:
		return "c: create • L: logout • q: quit"
	case m.state.Phase == lifecycle.PhaseReady:
		return "s: refresh • r: renew • d: delete • y: copy • L: logout • q: quit"
	default:
		return "s: refresh • d: delete • L: logout • q: quit"
	}
}

func fetchInstances(client *sdk.Client) tea.Cmd {
	return func() tea.Msg {
		instances, err := client.ListInstances(context.Background())
		if err != nil {
			return opDoneMsg{err: err}
		}
		return instancesMsg(instances)
	}
}

func listenUpdates(mgr *lifecycle.Manager) tea.Cmd {
	return func() tea.Msg {
		select {
		case st := <-mgr.Updates():
			return stateMsg(st)
		case <-mgr.Done():
			return nil
		}
	}
}

func createInstance(mgr *lifecycle.Manager) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: mgr.Create(context.Background())}
	}
}

func renewInstance(mgr *lifecycle.Manager) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: mgr.Renew(context.Background())}
	}
}

func deleteInstance(mgr *lifecycle.Manager) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: mgr.Delete(context.Background())}
	}
}

func refreshStatus(mgr *lifecycle.Manager) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: mgr.Refresh(context.Background())}
	}
}

func clearNotice() tea.Cmd {
	return tea.Tick(noticeDuration, func(time.Time) tea.Msg {
		return clearNoticeMsg{}
	})
}
