// ABOUTME: Account commands for the CLI
// ABOUTME: init, register, login, logout, whoami, profile, users, show and delete-account

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/bugbook/internal/catalog"
	"github.com/2389/bugbook/internal/config"
	"github.com/2389/bugbook/internal/result"
	"github.com/2389/bugbook/internal/store"
)

func runInit() error {
	fmt.Println("bugbook configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	outputFile := prompt(stdin, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(stdin, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Storage ---")
	dataDir := prompt(stdin, "Data directory", getDataPath())
	cfg := config.Default(dataDir)
	cfg.Database.Path = prompt(stdin, "SQLite database path", cfg.Database.Path)
	cfg.Session.Path = prompt(stdin, "Session file path", cfg.Session.Path)

	fmt.Println("\n--- Security ---")
	costStr := prompt(stdin, "bcrypt cost (4-31)", strconv.Itoa(cfg.Credentials.BcryptCost))
	cost, err := strconv.Atoi(costStr)
	if err != nil {
		return fmt.Errorf("invalid bcrypt cost %q", costStr)
	}
	cfg.Credentials.BcryptCost = cost

	fmt.Println("\n--- Logging ---")
	cfg.Logging.Level = prompt(stdin, "Log level (debug/info/warn/error)", cfg.Logging.Level)
	cfg.Logging.Format = prompt(stdin, "Log format (text/json)", cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Write(outputFile); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("\n  ✓ Config written to %s\n", outputFile)
	fmt.Printf("  Database: %s\n", cfg.Database.Path)
	fmt.Println("\nNext:")
	fmt.Println("  bugbook register --email you@example.com")

	return nil
}

func cmdRegister(ctx context.Context, app *catalog.App, args []string) error {
	set, err := parseArgs(args, []string{"email", "first", "last"}, nil)
	if err != nil {
		return err
	}

	req := catalog.RegisterRequest{
		FirstName: set.value("first"),
		LastName:  set.value("last"),
		Email:     set.value("email"),
	}
	if req.Email == "" {
		req.Email = prompt(stdin, "Email", "")
	}
	if req.FirstName == "" {
		req.FirstName = prompt(stdin, "First name", "")
	}
	if req.LastName == "" {
		req.LastName = prompt(stdin, "Last name", "")
	}

	req.Password, err = readNewPassword()
	if err != nil {
		return err
	}

	user, err := app.Register(ctx, req)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Registered and signed in as %s (id %d)\n", user.Email, user.ID)
	return nil
}

func cmdLogin(ctx context.Context, app *catalog.App, args []string) error {
	set, err := parseArgs(args, []string{"email"}, nil)
	if err != nil {
		return err
	}

	email := set.value("email")
	if email == "" {
		email = prompt(stdin, "Email", "")
	}
	password, err := readPassword("Password")
	if err != nil {
		return err
	}

	user, err := app.Login(ctx, email, password)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Signed in as %s %s\n", user.FirstName, user.LastName)
	return nil
}

func cmdLogout(ctx context.Context, app *catalog.App) error {
	if err := app.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

func cmdWhoami(ctx context.Context, app *catalog.App) error {
	user, err := app.CurrentUser(ctx)
	if err != nil {
		return err
	}
	printUser(user)
	return nil
}

func cmdProfile(ctx context.Context, app *catalog.App, args []string) error {
	set, err := parseArgs(args, []string{"first", "last", "email"}, []string{"password"})
	if err != nil {
		return err
	}

	user, err := app.CurrentUser(ctx)
	if err != nil {
		return err
	}

	upd := catalog.ProfileUpdate{
		UserID:    user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
	}
	if v := set.value("first"); v != "" {
		upd.FirstName = v
	}
	if v := set.value("last"); v != "" {
		upd.LastName = v
	}
	if v := set.value("email"); v != "" {
		upd.Email = v
	}
	if set.has("password") {
		upd.NewPassword, err = readNewPassword()
		if err != nil {
			return err
		}
	}

	updated, err := app.UpdateProfile(ctx, upd)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Println("✓ Profile updated")
	printUser(updated)
	return nil
}

func cmdUsers(ctx context.Context, app *catalog.App) error {
	users, err := firstSettled(ctx, app.Users)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Users")
	cyan.Println("  -----")

	if len(users) == 0 {
		fmt.Println("  (no users)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tEMAIL\tJOINED")
	fmt.Fprintln(w, "  --\t----\t-----\t------")
	for _, u := range users {
		name := truncate(strings.TrimSpace(u.FirstName+" "+u.LastName), 30)
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", u.ID, name, u.Email, u.CreatedAt.Local().Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdShow(ctx context.Context, app *catalog.App, args []string) error {
	var userID int64
	if len(args) > 0 {
		id, err := parseIntArg(args[0])
		if err != nil {
			return err
		}
		userID = id
	} else {
		user, err := app.CurrentUser(ctx)
		if err != nil {
			return err
		}
		userID = user.ID
	}

	uw, err := firstSettled(ctx, func(ctx context.Context) <-chan result.State[store.UserWithItems] {
		return app.UserWithItems(ctx, userID)
	})
	if err != nil {
		return err
	}

	printUser(&uw.User)
	printItems("Items", uw.Items)
	return nil
}

func cmdDeleteAccount(ctx context.Context, app *catalog.App, args []string) error {
	set, err := parseArgs(args, nil, []string{"yes", "y"})
	if err != nil {
		return err
	}

	user, err := app.CurrentUser(ctx)
	if err != nil {
		return err
	}

	if !set.has("yes") && !set.has("y") {
		yellow := color.New(color.FgYellow)
		yellow.Printf("This deletes %s and every item they own.\n", user.Email)
		answer := prompt(stdin, "Type the email to confirm", "")
		if answer != user.Email {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := app.DeleteUserAndData(ctx, user.ID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return fmt.Errorf("account %d no longer exists", user.ID)
		}
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Deleted %s and their items\n", user.Email)
	return nil
}

func printUser(u *store.User) {
	fmt.Printf("  ID:     %d\n", u.ID)
	fmt.Printf("  Name:   %s %s\n", u.FirstName, u.LastName)
	fmt.Printf("  Email:  %s\n", u.Email)
	fmt.Printf("  Joined: %s\n", u.CreatedAt.Local().Format("Jan 02, 2006"))
}

// firstSettled opens a live stream, returns its first non-Loading state and
// then cancels it.
func firstSettled[T any](ctx context.Context, open func(ctx context.Context) <-chan result.State[T]) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var zero T
	for s := range open(ctx) {
		switch {
		case s.IsSuccess():
			return s.Data, nil
		case s.IsError():
			return zero, errors.New(s.Message)
		}
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return zero, errors.New("query ended without a result")
}
