package cmd

import (
	"vpainless/internal/cli/ui"
	"vpainless/pkg/sdk"
)

// RunConsole drives the interactive console. Pages are mutually exclusive:
// no principal routes to login, an ungrouped principal to the group form,
// a grouped client to the client console, everyone else to the admin
// console. The server enforces authorization on every call regardless; the
// routing here is a convenience, not a security boundary.
func RunConsole() {
	for {
		if Session.Get() == nil {
			if !ui.RunLogin(Client, Session) {
				return
			}
		}

		p := Session.Get()
		var action ui.Action
		switch {
		case p.GroupID == "":
			action = ui.RunGroupForm(Client, Session)
		case p.Role == sdk.RoleClient:
			action = ui.RunClientConsole(Client, Session, Cfg.PollInterval)
		default:
			action = ui.RunAdminConsole(Client, Session)
		}

		switch action {
		case ui.ActionLogout:
			Session.Set(nil)
		case ui.ActionReroute:
			// The principal changed (e.g. a group was created); loop around
			// and pick the page again.
		default:
			return
		}
	}
}
