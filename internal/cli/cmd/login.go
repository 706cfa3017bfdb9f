package cmd

import (
	"context"
	"fmt"
	"log"

	"vpainless/internal/session"
	"vpainless/pkg/sdk"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify credentials and show who you are",
	Run: func(cmd *cobra.Command, args []string) {
		handleLogin()
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new account, then log in",
	Run: func(cmd *cobra.Command, args []string) {
		handleRegister()
	},
}

func init() {
	RootCmd.AddCommand(loginCmd, registerCmd)
}

func handleLogin() {
	p := requireLogin(context.Background())

	fmt.Printf("Logged in as %s (role: %s)\n", p.Name, p.Role)
	if p.GroupID != "" {
		fmt.Printf("Group: %s\n", p.GroupID)
	} else {
		fmt.Println("You are not part of a group yet. Create one with 'vpainless group create'.")
	}
}

func handleRegister() {
	username := flagUser
	if username == "" {
		username = promptLine("Username: ")
	}
	password := promptPassword("Password: ")
	if password != promptPassword("Repeat password: ") {
		log.Fatal("Passwords do not match")
	}

	// Registration is anonymous: the session holds no token yet, so the
	// request goes out without credentials.
	ctx := context.Background()
	if _, err := Client.CreateUser(ctx, sdk.User{Username: username, Password: password}); err != nil {
		log.Fatalf("Register failed: %v", err)
	}

	if _, err := session.Login(ctx, Client, Session, username, password); err != nil {
		log.Fatalf("Registered, but login failed: %v", err)
	}
	fmt.Printf("Welcome, %s! You can now create a group or ask an admin to add you to one.\n", username)
}
