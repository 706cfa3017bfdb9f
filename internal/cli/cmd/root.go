package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vpainless/internal/config"
	"vpainless/internal/session"
	"vpainless/pkg/logger"
	"vpainless/pkg/sdk"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	Client  *sdk.Client
	Session *session.Store
	Cfg     *config.Config

	flagURL  string
	flagUser string
	debug    bool
)

var RootCmd = &cobra.Command{
	Use:   "vpainless",
	Short: "Terminal client for the vpainless VPN portal",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initialize()
	},
	Run: func(cmd *cobra.Command, args []string) {
		RunConsole()
	},
}

func Execute() {
	RootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "Base URL of the portal API (overrides config)")
	RootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "Username for authenticated commands")
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log debug output to stderr")

	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initialize() {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}

	Cfg, err = config.Load(filepath.Join(dir, "vpainless"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if flagURL != "" {
		Cfg.BaseURL = flagURL
	}

	level := Cfg.LogLevel
	if debug {
		level = "debug"
	}
	log := logger.Init(logger.Options{Level: level, File: Cfg.LogFile, Pretty: debug})

	Session = session.NewStore()
	auditSession(Session, log)
	Client = sdk.NewClient(Cfg.BaseURL, Session, log)
}

// auditSession subscribes to principal swaps so the log file carries a trail
// of who the process acted as. The subscription lives for the whole process.
func auditSession(store *session.Store, log zerolog.Logger) {
	store.Subscribe(func(p *session.Principal) {
		if p == nil {
			log.Info().Msg("session cleared")
			return
		}
		log.Info().Str("user", p.Name).Str("role", string(p.Role)).Msg("session changed")
	})
}

// requireLogin resolves credentials from flags, env or an interactive prompt
// and authenticates against the portal. One-shot commands hold no durable
// session, so every invocation logs in afresh.
func requireLogin(ctx context.Context) *session.Principal {
	username := flagUser
	if username == "" {
		username = Cfg.Username
	}
	password := Cfg.Password

	if username == "" {
		username = promptLine("Username: ")
	}
	if password == "" {
		password = promptPassword(fmt.Sprintf("Password for %s: ", username))
	}

	p, err := session.Login(ctx, Client, Session, username, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
		os.Exit(1)
	}
	return p
}

func promptLine(prompt string) string {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func promptPassword(prompt string) string {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return ""
	}
	return string(pw)
}

func confirm(prompt string) bool {
	answer := promptLine(prompt + " [y/N]: ")
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
}
