package cmd

import (
	"context"
	"fmt"
	"log"

	"vpainless/internal/session"
	"vpainless/pkg/sdk"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

// apiKeyPortalURL is where the provider hands out API keys
// (Account > API in the Vultr portal).
const apiKeyPortalURL = "https://my.vultr.com/settings/#settingsapi"

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage your group",
}

var groupName, groupAPIKey string
var openPortal bool
var groupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a group backed by a host-provider API key",
	Run: func(cmd *cobra.Command, args []string) {
		handleGroupCreate()
	},
}

func init() {
	groupCreateCmd.Flags().StringVar(&groupName, "name", "", "Group name")
	groupCreateCmd.Flags().StringVar(&groupAPIKey, "apikey", "", "Vultr API key used to provision instances")
	groupCreateCmd.Flags().BoolVar(&openPortal, "open-portal", false, "Open the provider's API settings page in a browser")

	groupCmd.AddCommand(groupCreateCmd)
	RootCmd.AddCommand(groupCmd)
}

func handleGroupCreate() {
	if openPortal {
		if err := browser.OpenURL(apiKeyPortalURL); err != nil {
			fmt.Printf("Could not open a browser; create a key at %s\n", apiKeyPortalURL)
		}
	}

	if groupName == "" {
		groupName = promptLine("Group name: ")
	}
	if groupAPIKey == "" {
		groupAPIKey = promptPassword("Vultr API key: ")
	}

	ctx := context.Background()
	p := requireLogin(ctx)
	if p.GroupID != "" {
		log.Fatalf("You are already part of group %s", p.GroupID)
	}

	group, err := Client.CreateGroup(ctx, sdk.Group{
		Name: groupName,
		VPS:  sdk.VPS{APIKey: groupAPIKey, Provider: sdk.ProviderVultr},
	})
	if err != nil {
		log.Fatalf("Group creation failed: %v", err)
	}

	// Creating a group promotes the caller to its admin; swap in a fresh
	// principal so later requests act with the new role.
	Session.Set(&session.Principal{
		ID:      p.ID,
		Name:    p.Name,
		GroupID: group.ID,
		Token:   p.Token,
		Role:    sdk.RoleAdmin,
	})

	fmt.Printf("Group %q created (%s). You are now its admin.\n", group.Name, group.ID)
}
