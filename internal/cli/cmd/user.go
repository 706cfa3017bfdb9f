package cmd

import (
	"context"
	"fmt"
	"log"

	"vpainless/pkg/sdk"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users in your group",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the users you can see",
	Run: func(cmd *cobra.Command, args []string) {
		handleUserList()
	},
}

var addUsername, addPassword string
var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a client to your group",
	Run: func(cmd *cobra.Command, args []string) {
		handleUserAdd(addUsername, addPassword)
	},
}

var updatePassword, updateRole string
var userUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Update a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleUserUpdate(args[0])
	},
}

func init() {
	userAddCmd.Flags().StringVar(&addUsername, "username", "", "Username for the new client")
	userAddCmd.Flags().StringVar(&addPassword, "password", "", "Password for the new client")
	userAddCmd.MarkFlagRequired("username")

	userUpdateCmd.Flags().StringVar(&updatePassword, "password", "", "New password")
	userUpdateCmd.Flags().StringVar(&updateRole, "role", "", "New role (admin or client)")

	userCmd.AddCommand(userListCmd, userAddCmd, userUpdateCmd)
	RootCmd.AddCommand(userCmd)
}

func handleUserList() {
	ctx := context.Background()
	requireLogin(ctx)

	users, err := Client.ListUsers(ctx)
	if err != nil {
		log.Fatalf("Error listing users: %v", err)
	}

	fmt.Println("Users:")
	for _, u := range users {
		fmt.Printf("- %s (%s) [%s]\n", u.Username, u.ID, u.Role)
	}
	fmt.Printf("Total: %d\n", len(users))
}

func handleUserAdd(username, password string) {
	ctx := context.Background()
	p := requireLogin(ctx)

	if p.GroupID == "" {
		log.Fatal("You need a group before adding clients; use 'vpainless group create'")
	}
	if password == "" {
		password = promptPassword(fmt.Sprintf("Password for %s: ", username))
	}

	created, err := Client.CreateUser(ctx, sdk.User{
		Username: username,
		Password: password,
		GroupID:  p.GroupID,
		Role:     sdk.RoleClient,
	})
	if err != nil {
		log.Fatalf("Error creating client: %v", err)
	}
	fmt.Printf("Client %s created (%s).\n", created.Username, created.ID)
}

func handleUserUpdate(id string) {
	if _, err := uuid.Parse(id); err != nil {
		log.Fatalf("Invalid user id %q: %v", id, err)
	}
	if updatePassword == "" && updateRole == "" {
		log.Fatal("Nothing to update; pass --password and/or --role")
	}

	ctx := context.Background()
	requireLogin(ctx)

	user, err := Client.GetUser(ctx, id)
	if err != nil {
		log.Fatalf("Error fetching user: %v", err)
	}

	if updatePassword != "" {
		user.Password = updatePassword
	}
	if updateRole != "" {
		role := sdk.Role(updateRole)
		if role != sdk.RoleAdmin && role != sdk.RoleClient {
			log.Fatalf("Invalid role %q", updateRole)
		}
		user.Role = role
	}

	updated, err := Client.UpdateUser(ctx, id, *user)
	if err != nil {
		log.Fatalf("Error updating user: %v", err)
	}
	fmt.Printf("User %s updated.\n", updated.Username)
}
