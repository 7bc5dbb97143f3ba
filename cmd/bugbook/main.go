// ABOUTME: Entry point for the bugbook CLI
// ABOUTME: Catalog of insects per user, backed by a local SQLite database

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/bugbook/internal/catalog"
	"github.com/2389/bugbook/internal/config"
)

// Version is set at build time.
var version = "dev"

const banner = `
 _                 _                 _
| |__  _   _  __ _| |__   ___   ___ | | __
| '_ \| | | |/ _' | '_ \ / _ \ / _ \| |/ /
| |_) | |_| | (_| | |_) | (_) | (_) |   <
|_.__/ \__,_|\__, |_.__/ \___/ \___/|_|\_\
             |___/
`

// getConfigPath returns the path to the config file.
// Priority: BUGBOOK_CONFIG env var > XDG_CONFIG_HOME/bugbook/config.yaml > ~/.config/bugbook/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BUGBOOK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "bugbook", "config.yaml")
}

// getDataPath returns the path to the bugbook data directory.
// Priority: XDG_DATA_HOME/bugbook > ~/.local/share/bugbook
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "bugbook")
}

func printUsage() {
	fmt.Println("Usage: bugbook <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init                              Create a config file interactively")
	fmt.Println("  register --email E [--first F] [--last L]")
	fmt.Println("                                    Create an account and sign in")
	fmt.Println("  login --email E                   Sign in")
	fmt.Println("  logout                            Sign out")
	fmt.Println("  whoami                            Show the signed-in user")
	fmt.Println("  profile [--first F] [--last L] [--email E] [--password]")
	fmt.Println("                                    Update the signed-in user")
	fmt.Println("  add NAME [--image URI]            Add an item you own")
	fmt.Println("  rename ID NAME [--image URI]      Rename an item")
	fmt.Println("  rm ID                             Delete an item")
	fmt.Println("  ls [--mine]                       List items")
	fmt.Println("  watch [--mine]                    Follow items live; type all/mine to switch")
	fmt.Println("  users                             List users")
	fmt.Println("  show [USER_ID]                    Show a user and their items")
	fmt.Println("  delete-account [--yes]            Delete your account and all your items")
	fmt.Println("  version                           Print the version")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = runInit()
	case "version":
		cyan := color.New(color.FgCyan)
		cyan.Print(banner)
		fmt.Printf("    version: %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "register", "login", "logout", "whoami", "profile",
		"add", "rename", "rm", "ls", "watch", "users", "show", "delete-account":
		err = withApp(func(app *catalog.App) error {
			return dispatch(ctx, app, cmd, args)
		})
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, app *catalog.App, cmd string, args []string) error {
	switch cmd {
	case "register":
		return cmdRegister(ctx, app, args)
	case "login":
		return cmdLogin(ctx, app, args)
	case "logout":
		return cmdLogout(ctx, app)
	case "whoami":
		return cmdWhoami(ctx, app)
	case "profile":
		return cmdProfile(ctx, app, args)
	case "add":
		return cmdAdd(ctx, app, args)
	case "rename":
		return cmdRename(ctx, app, args)
	case "rm":
		return cmdRemove(ctx, app, args)
	case "ls":
		return cmdList(ctx, app, args)
	case "watch":
		return cmdWatch(ctx, app, args)
	case "users":
		return cmdUsers(ctx, app)
	case "show":
		return cmdShow(ctx, app, args)
	case "delete-account":
		return cmdDeleteAccount(ctx, app, args)
	}
	return fmt.Errorf("unknown command: %s", cmd)
}

// loadConfig reads the config file, falling back to defaults under the data
// directory when none exists yet.
func loadConfig() (*config.Config, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return config.Default(getDataPath()), nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// withApp opens the catalog for the duration of fn.
func withApp(fn func(app *catalog.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	app, err := catalog.Open(cfg, logger)
	if err != nil {
		return err
	}

	runErr := fn(app)
	if err := app.Close(); err != nil && runErr == nil {
		return err
	}
	return runErr
}

// describe turns taxonomy errors into messages for the terminal.
func describe(err error) string {
	var txErr *catalog.TransactionError
	switch {
	case errors.Is(err, catalog.ErrNotSignedIn):
		return "not signed in (run: bugbook login --email you@example.com)"
	case errors.Is(err, catalog.ErrAuthenticationFailed):
		return "invalid email or password"
	case errors.Is(err, catalog.ErrDuplicateEmail):
		return "that email is already registered"
	case errors.As(err, &txErr):
		return fmt.Sprintf("%s failed, nothing was changed: %v", txErr.Op, txErr.Err)
	default:
		return err.Error()
	}
}
