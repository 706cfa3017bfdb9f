package ui

import (
	"context"
	"fmt"
	"os"

	"vpainless/internal/session"
	"vpainless/pkg/sdk"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/browser"
)

const keyPortalURL = "https://my.vultr.com/settings/#settingsapi"

type groupModel struct {
	client *sdk.Client
	store  *session.Store

	name   textinput.Model
	apikey textinput.Model
	focus  int
	busy   bool

	errText string
	action  Action
	width   int
	height  int
}

type groupCreatedMsg struct {
	group *sdk.Group
	err   error
}

// RunGroupForm asks a freshly registered admin for a group name and a
// provider API key. On success the principal is rerouted to the admin
// console.
func RunGroupForm(client *sdk.Client, store *session.Store) Action {
	name := textinput.New()
	name.Placeholder = "group name"
	name.CharLimit = 64
	name.Width = 40
	name.Focus()

	apikey := textinput.New()
	apikey.Placeholder = "provider API key"
	apikey.EchoMode = textinput.EchoPassword
	apikey.CharLimit = 128
	apikey.Width = 40

	m := groupModel{
		client: client,
		store:  store,
		name:   name,
		apikey: apikey,
		action: ActionQuit,
	}

	program := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := program.Run()
	if err != nil {
		fmt.Printf("Error running group form: %v", err)
		os.Exit(1)
	}

	if m, ok := finalModel.(groupModel); ok {
		return m.action
	}
	return ActionQuit
}

func (m groupModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m groupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case groupCreatedMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = errText(msg.err)
			return m, nil
		}
		if p := m.store.Get(); p != nil {
			p.GroupID = msg.group.ID
			p.Role = sdk.RoleAdmin
			m.store.Set(p)
		}
		m.action = ActionReroute
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.action = ActionQuit
			return m, tea.Quit
		case "ctrl+l":
			m.action = ActionLogout
			return m, tea.Quit
		case "ctrl+o":
			if err := browser.OpenURL(keyPortalURL); err != nil {
				m.errText = "Could not open a browser; create a key at " + keyPortalURL
			}
			return m, nil
		case "tab", "up", "down":
			if m.busy {
				return m, nil
			}
			m.focus = 1 - m.focus
			if m.focus == 0 {
				m.name.Focus()
				m.apikey.Blur()
			} else {
				m.name.Blur()
				m.apikey.Focus()
			}
			return m, textinput.Blink
		case "enter":
			if m.busy {
				return m, nil
			}
			if m.focus == 0 {
				m.focus = 1
				m.name.Blur()
				m.apikey.Focus()
				return m, textinput.Blink
			}
			if m.name.Value() == "" || m.apikey.Value() == "" {
				m.errText = "group name and API key cannot be empty"
				return m, nil
			}
			m.busy = true
			m.errText = ""
			return m, createGroup(m.client, m.name.Value(), m.apikey.Value())
		}
	}

	var cmd tea.Cmd
	if m.focus == 0 {
		m.name, cmd = m.name.Update(msg)
	} else {
		m.apikey, cmd = m.apikey.Update(msg)
	}
	return m, cmd
}

func (m groupModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	body := fmt.Sprintf("%s\n\n%s %s\n%s %s",
		titleStyle.Render("Create your group"),
		labelStyle.Render("Name:   "), m.name.View(),
		labelStyle.Render("API key:"), m.apikey.View())
	if m.busy {
		body += "\n\n" + subtleStyle.Render("Creating group...")
	}
	if m.errText != "" {
		body += "\n\n" + errorStyle.Render(m.errText)
	}

	box := baseStyle.Width(min(m.width-4, 64)).Render(body)
	footer := footerStyle.Render("enter: submit • ctrl+o: open key portal • ctrl+l: logout • ctrl+c: quit")

	page := lipgloss.JoinVertical(lipgloss.Center, headerStyle.Render("VPAINLESS"), box, footer)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, page)
}

func createGroup(client *sdk.Client, name, apikey string) tea.Cmd {
	return func() tea.Msg {
		group, err := client.CreateGroup(context.Background(), sdk.Group{
			Name: name,
			VPS:  sdk.VPS{APIKey: apikey, Provider: sdk.ProviderVultr},
		})
		return groupCreatedMsg{group: group, err: err}
	}
}
