package ui

import (
	"context"
	"fmt"
	"os"

	"vpainless/internal/session"
	"vpainless/pkg/sdk"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type adminFocus int

const (
	focusUsers adminFocus = iota
	focusInstances
)

type adminModel struct {
	client *sdk.Client
	store  *session.Store

	users     []sdk.User
	instances []sdk.Instance
	userTable table.Model
	instTable table.Model
	focus     adminFocus

	dialogOpen    bool
	dialogConfirm bool
	dUsername     textinput.Model
	dPassword     textinput.Model
	dFocus        int

	confirmDelete string
	notice        string
	bad           bool
	action        Action
	width         int
	height        int
}

type usersMsg []sdk.User
type adminInstancesMsg []sdk.Instance
type adminOpMsg struct {
	err     error
	refresh bool
}

// RunAdminConsole shows the group admin's console: the group's users and
// instances, with client creation and instance teardown.
func RunAdminConsole(client *sdk.Client, store *session.Store) Action {
	m := newAdminModel(client, store)

	program := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := program.Run()
	if err != nil {
		fmt.Printf("Error running admin console: %v", err)
		os.Exit(1)
	}

	if m, ok := finalModel.(adminModel); ok {
		return m.action
	}
	return ActionQuit
}

func newAdminModel(client *sdk.Client, store *session.Store) adminModel {
	ut := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 36},
			{Title: "Name", Width: 18},
			{Title: "Role", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(6),
	)
	it := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 36},
			{Title: "User", Width: 14},
			{Title: "IP", Width: 15},
			{Title: "State", Width: 12},
		}),
		table.WithHeight(6),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	ut.SetStyles(s)
	it.SetStyles(s)

	username := textinput.New()
	username.Placeholder = "username"
	username.CharLimit = 64
	username.Width = 30

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.CharLimit = 64
	password.Width = 30

	return adminModel{
		client:    client,
		store:     store,
		userTable: ut,
		instTable: it,
		dUsername: username,
		dPassword: password,
		action:    ActionQuit,
	}
}

func (m adminModel) Init() tea.Cmd {
	return tea.Batch(fetchUsers(m.client), fetchAdminInstances(m.client))
}

func (m adminModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case usersMsg:
		// Listings replace the previous snapshot wholesale.
		m.users = msg
		m.refreshRows()
		return m, nil

	case adminInstancesMsg:
		m.instances = msg
		m.refreshRows()
		return m, nil

	case adminOpMsg:
		var cmds []tea.Cmd
		if msg.err != nil && !sdk.IsCanceled(msg.err) {
			m.notice, m.bad = errText(msg.err), true
			cmds = append(cmds, clearNotice())
		}
		if msg.refresh {
			cmds = append(cmds, fetchUsers(m.client), fetchAdminInstances(m.client))
		}
		return m, tea.Batch(cmds...)

	case clearNoticeMsg:
		m.notice = ""
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m adminModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.dialogOpen {
		return m.handleDialogKey(msg)
	}

	if m.confirmDelete != "" {
		switch msg.String() {
		case "enter", "y":
			id := m.confirmDelete
			m.confirmDelete = ""
			return m, deleteAdminInstance(m.client, id)
		case "esc", "n":
			m.confirmDelete = ""
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
	case "tab":
		if m.focus == focusUsers {
			m.focus = focusInstances
			m.userTable.Blur()
			m.instTable.Focus()
		} else {
			m.focus = focusUsers
			m.instTable.Blur()
			m.userTable.Focus()
		}
		return m, nil
	case "r":
		return m, tea.Batch(fetchUsers(m.client), fetchAdminInstances(m.client))
	case "n":
		m.dialogOpen = true
		m.dialogConfirm = false
		m.dUsername.SetValue("")
		m.dPassword.SetValue("")
		m.dFocus = 0
		m.dUsername.Focus()
		m.dPassword.Blur()
		return m, textinput.Blink
	case "d":
		if m.focus == focusInstances {
			if row := m.instTable.SelectedRow(); len(row) > 0 {
				m.confirmDelete = row[0]
			}
		}
		return m, nil
	case "y":
		return m.copySelectedConnection()
	}

	var cmd tea.Cmd
	if m.focus == focusUsers {
		m.userTable, cmd = m.userTable.Update(msg)
	} else {
		m.instTable, cmd = m.instTable.Update(msg)
	}
	return m, cmd
}

func (m adminModel) handleDialogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.dialogConfirm {
		switch msg.String() {
		case "enter", "y":
			m.dialogOpen = false
			p := m.store.Get()
			return m, createClient(m.client, sdk.User{
				Username: m.dUsername.Value(),
				Password: m.dPassword.Value(),
				GroupID:  p.GroupID,
				Role:     sdk.RoleClient,
			})
		case "esc", "n":
			m.dialogConfirm = false
		}
		return m, nil
	}

	switch msg.String() {
	case "esc":
		m.dialogOpen = false
		return m, nil
	case "tab", "down", "up":
		m.dFocus = 1 - m.dFocus
		if m.dFocus == 0 {
			m.dUsername.Focus()
			m.dPassword.Blur()
		} else {
			m.dUsername.Blur()
			m.dPassword.Focus()
		}
		return m, textinput.Blink
	case "enter":
		if m.dFocus == 0 {
			m.dFocus = 1
			m.dUsername.Blur()
			m.dPassword.Focus()
			return m, textinput.Blink
		}
		if m.dUsername.Value() == "" || m.dPassword.Value() == "" {
			m.notice, m.bad = "username and password cannot be empty", true
			return m, clearNotice()
		}
		m.dialogConfirm = true
		return m, nil
	}

	var cmd tea.Cmd
	if m.dFocus == 0 {
		m.dUsername, cmd = m.dUsername.Update(msg)
	} else {
		m.dPassword, cmd = m.dPassword.Update(msg)
	}
	return m, cmd
}

func (m adminModel) copySelectedConnection() (tea.Model, tea.Cmd) {
	if m.focus != focusInstances {
		return m, nil
	}
	row := m.instTable.SelectedRow()
	if len(row) == 0 {
		return m, nil
	}
	for _, inst := range m.instances {
		if inst.ID == row[0] && inst.ConnectionString != "" {
			if err := clipboard.WriteAll(inst.ConnectionString); err != nil {
				m.notice, m.bad = "Could not copy to the clipboard", true
			} else {
				m.notice, m.bad = "Connection string copied to the clipboard!", false
			}
			return m, clearNotice()
		}
	}
	return m, nil
}

func (m *adminModel) refreshRows() {
	userRows := make([]table.Row, 0, len(m.users))
	for _, u := range m.users {
		userRows = append(userRows, table.Row{u.ID, u.Username, string(u.Role)})
	}
	m.userTable.SetRows(userRows)

	names := make(map[string]string, len(m.users))
	for _, u := range m.users {
		names[u.ID] = u.Username
	}
	instRows := make([]table.Row, 0, len(m.instances))
	for _, inst := range m.instances {
		instRows = append(instRows, table.Row{inst.ID, names[inst.Owner], inst.IP, string(inst.Status)})
	}
	m.instTable.SetRows(instRows)
}

func (m adminModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	name := ""
	if p := m.store.Get(); p != nil {
		name = p.Name
	}
	header := headerStyle.Render("ADMIN CONSOLE") + "\n" + subtleStyle.Render(name+" @ "+m.client.BaseURL())

	var body string
	switch {
	case m.dialogOpen && m.dialogConfirm:
		body = fmt.Sprintf("Create client %q?\n\n%s",
			m.dUsername.Value(), labelStyle.Render("enter: yes • esc: no"))
	case m.dialogOpen:
		body = fmt.Sprintf("New client\n\n%s %s\n%s %s",
			labelStyle.Render("Username:"), m.dUsername.View(),
			labelStyle.Render("Password:"), m.dPassword.View())
	case m.confirmDelete != "":
		body = fmt.Sprintf("Are you sure? Deleting %s.\n\n%s",
			m.confirmDelete, labelStyle.Render("enter: delete • esc: cancel"))
	default:
		usersBox := titleStyle.Render(fmt.Sprintf("Users (%d)", len(m.users))) + "\n" + m.userTable.View()
		instBox := titleStyle.Render(fmt.Sprintf("Instances (%d)", len(m.instances))) + "\n" + m.instTable.View()
		body = usersBox + "\n\n" + instBox
	}

	box := baseStyle.Width(min(m.width-4, 84)).Render(body)
	statusLine := " "
	if m.notice != "" {
		if m.bad {
			statusLine = errorStyle.Render(m.notice)
		} else {
			statusLine = noticeStyle.Render(m.notice)
		}
	}
	footer := footerStyle.Render("tab: switch • n: new client • d: delete instance • y: copy • r: refresh • L: logout • q: quit")

	page := lipgloss.JoinVertical(lipgloss.Center, header, box, statusLine, footer)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, page)
}

func fetchUsers(client *sdk.Client) tea.Cmd {
	return func() tea.Msg {
		users, err := client.ListUsers(context.Background())
		if err != nil {
			return adminOpMsg{err: err}
		}
		return usersMsg(users)
	}
}

func fetchAdminInstances(client *sdk.Client) tea.Cmd {
	return func() tea.Msg {
		instances, err := client.ListInstances(context.Background())
		if err != nil {
			return adminOpMsg{err: err}
		}
		return adminInstancesMsg(instances)
	}
}

func createClient(client *sdk.Client, user sdk.User) tea.Cmd {
	return func() tea.Msg {
		_, err := client.CreateUser(context.Background(), user)
		return adminOpMsg{err: err, refresh: err == nil}
	}
}

func deleteAdminInstance(client *sdk.Client, id string) tea.Cmd {
	return func() tea.Msg {
		err := client.DeleteInstance(context.Background(), id)
		return adminOpMsg{err: err, refresh: err == nil}
	}
}
