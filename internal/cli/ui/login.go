package ui

import (
	"context"
	"errors"
	"fmt"
	"os"

	"vpainless/internal/session"
	"vpainless/pkg/sdk"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type loginTab int

const (
	tabLogin loginTab = iota
	tabRegister
)

type loginModel struct {
	client *sdk.Client
	store  *session.Store

	tab      loginTab
	username textinput.Model
	password textinput.Model
	focus    int
	busy     bool
	errText  string
	done     bool
	width    int
	height   int
}

type loginResultMsg struct {
	principal *session.Principal
	err       error
}

// RunLogin shows the login/register page and blocks until the session store
// holds a principal or the user quits. It reports false on quit.
func RunLogin(client *sdk.Client, store *session.Store) bool {
	username := textinput.New()
	username.Placeholder = "username"
	username.CharLimit = 64
	username.Width = 30
	username.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.CharLimit = 64
	password.Width = 30

	m := loginModel{
		client:   client,
		store:    store,
		username: username,
		password: password,
	}

	program := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := program.Run()
	if err != nil {
		fmt.Printf("Error running login page: %v", err)
		os.Exit(1)
	}

	if m, ok := finalModel.(loginModel); ok {
		return m.done
	}
	return false
}

func (m loginModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m loginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loginResultMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = errText(msg.err)
			return m, nil
		}
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			if m.tab == tabLogin {
				m.tab = tabRegister
			} else {
				m.tab = tabLogin
			}
			m.errText = ""
			return m, nil
		case "up", "shift+tab":
			m.setFocus(0)
			return m, textinput.Blink
		case "down":
			m.setFocus(1)
			return m, textinput.Blink
		case "enter":
			if m.focus == 0 {
				m.setFocus(1)
				return m, textinput.Blink
			}
			return m.submit()
		}
	}

	var cmd tea.Cmd
	if m.focus == 0 {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m *loginModel) setFocus(i int) {
	m.focus = i
	if i == 0 {
		m.username.Focus()
		m.password.Blur()
	} else {
		m.username.Blur()
		m.password.Focus()
	}
}

func (m loginModel) submit() (tea.Model, tea.Cmd) {
	username := m.username.Value()
	password := m.password.Value()
	if username == "" || password == "" {
		m.errText = "username and password cannot be empty"
		return m, nil
	}

	m.busy = true
	m.errText = ""
	if m.tab == tabRegister {
		return m, registerCmd(m.client, m.store, username, password)
	}
	return m, loginCmd(m.client, m.store, username, password)
}

func (m loginModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	tabs := lipgloss.JoinHorizontal(lipgloss.Top, m.tabLabel(tabLogin, "Login"), " ", m.tabLabel(tabRegister, "Register"))

	caption := "Enter your credentials and press enter."
	if m.tab == tabRegister {
		caption = "Pick a unique username. You can create a group later."
	}

	content := fmt.Sprintf("%s\n\n%s %s\n%s %s\n",
		subtleStyle.Render(caption),
		labelStyle.Render("Username:"), m.username.View(),
		labelStyle.Render("Password:"), m.password.View(),
	)
	if m.busy {
		content += "\n" + subtleStyle.Render("Signing in...")
	}
	if m.errText != "" {
		content += "\n" + errorStyle.Render(m.errText)
	}

	box := baseStyle.Width(min(m.width-4, 52)).Render(content)
	footer := footerStyle.Render("tab: switch login/register • enter: submit • esc: quit")

	page := lipgloss.JoinVertical(lipgloss.Center,
		headerStyle.Render("VPAINLESS"),
		tabs,
		box,
		footer,
	)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, page)
}

func (m loginModel) tabLabel(tab loginTab, label string) string {
	if m.tab == tab {
		return titleStyle.Render(label)
	}
	return subtleStyle.Render(label)
}

func loginCmd(client *sdk.Client, store *session.Store, username, password string) tea.Cmd {
	return func() tea.Msg {
		p, err := session.Login(context.Background(), client, store, username, password)
		return loginResultMsg{principal: p, err: err}
	}
}

func registerCmd(client *sdk.Client, store *session.Store, username, password string) tea.Cmd {
	return func() tea.Msg {
		// Registration is anonymous; the store holds no token yet.
		store.Set(nil)
		_, err := client.CreateUser(context.Background(), sdk.User{Username: username, Password: password})
		if err != nil {
			return loginResultMsg{err: err}
		}
		p, err := session.Login(context.Background(), client, store, username, password)
		return loginResultMsg{principal: p, err: err}
	}
}

// errText renders a remote-call failure the way the portal pages toast them:
// the server-supplied message when there is one, a generic fallback
// otherwise. Cancellations never surface as notices.
func errText(err error) string {
	if err == nil || sdk.IsCanceled(err) {
		return ""
	}
	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return apiErr.Error()
	}
	return "unknown error: " + err.Error()
}
