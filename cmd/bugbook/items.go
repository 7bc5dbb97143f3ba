// ABOUTME: Item commands for the CLI
// ABOUTME: add, rename, rm, ls and the live watch view

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/bugbook/internal/catalog"
	"github.com/2389/bugbook/internal/result"
	"github.com/2389/bugbook/internal/store"
	"github.com/2389/bugbook/internal/views"
)

func cmdAdd(ctx context.Context, app *catalog.App, args []string) error {
	set, err := parseArgs(args, []string{"image"}, nil)
	if err != nil {
		return err
	}
	if len(set.positional) == 0 {
		return fmt.Errorf("usage: add NAME [--image URI]")
	}

	id, err := app.AddItem(ctx, catalog.NewItem{
		Name:          strings.Join(set.positional, " "),
		ImageLocation: set.value("image"),
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Added item %d\n", id)
	return nil
}

func cmdRename(ctx context.Context, app *catalog.App, args []string) error {
	set, err := parseArgs(args, []string{"image"}, nil)
	if err != nil {
		return err
	}
	if len(set.positional) < 2 {
		return fmt.Errorf("usage: rename ID NAME [--image URI]")
	}

	id, err := parseIntArg(set.positional[0])
	if err != nil {
		return err
	}
	name := strings.Join(set.positional[1:], " ")

	if err := app.RenameItem(ctx, id, name, set.value("image")); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Renamed item %d to %s\n", id, name)
	return nil
}

func cmdRemove(ctx context.Context, app *catalog.App, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: rm ID")
	}
	id, err := parseIntArg(args[0])
	if err != nil {
		return err
	}

	if err := app.DeleteItem(ctx, id); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Deleted item %d\n", id)
	return nil
}

func cmdList(ctx context.Context, app *catalog.App, args []string) error {
	set, err := parseArgs(args, nil, []string{"mine"})
	if err != nil {
		return err
	}

	open := app.AllItems
	title := "All items"
	if set.has("mine") {
		user, err := app.CurrentUser(ctx)
		if err != nil {
			return err
		}
		open = func(ctx context.Context) <-chan result.State[[]store.Item] {
			return app.ItemsByOwner(ctx, user.ID)
		}
		title = "Your items"
	}

	items, err := firstSettled(ctx, open)
	if err != nil {
		return err
	}
	printItems(title, items)
	return nil
}

// cmdWatch follows the item view until interrupted. Lines "all" and "mine"
// on stdin switch the filter; "q" quits.
func cmdWatch(ctx context.Context, app *catalog.App, args []string) error {
	set, err := parseArgs(args, nil, []string{"mine"})
	if err != nil {
		return err
	}

	filter := views.AllItems()
	if set.has("mine") {
		mine, err := mineFilter(ctx, app)
		if err != nil {
			return err
		}
		filter = mine
	}

	view := app.ItemsView(filter)
	defer view.Close()
	states := view.Observe(ctx)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := stdin.ReadString('\n')
			if err != nil {
				return
			}
			select {
			case lines <- strings.TrimSpace(line):
			case <-ctx.Done():
				return
			}
		}
	}()

	gray := color.New(color.FgHiBlack)
	gray.Println("  watching; type all, mine or q")

	for {
		select {
		case <-ctx.Done():
			return nil

		case s, ok := <-states:
			if !ok {
				return nil
			}
			printState(view.Filter(), s)

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			switch line {
			case "":
			case "q", "quit":
				return nil
			case "all":
				view.SetFilter(views.AllItems())
			case "mine":
				mine, err := mineFilter(ctx, app)
				if err != nil {
					color.Red("  %s", describe(err))
					continue
				}
				view.SetFilter(mine)
			default:
				color.Yellow("  unknown filter %q (all, mine, q)", line)
			}
		}
	}
}

func mineFilter(ctx context.Context, app *catalog.App) (views.Filter, error) {
	user, err := app.CurrentUser(ctx)
	if err != nil {
		return views.Filter{}, err
	}
	return views.ItemsForUser(user.ID), nil
}

func printState(f views.Filter, s result.State[[]store.Item]) {
	switch {
	case s.IsLoading():
		color.New(color.FgHiBlack).Printf("  [%s] loading...\n", f)
	case s.IsError():
		color.New(color.FgRed).Printf("  [%s] %s\n", f, s.Message)
	default:
		printItems(fmt.Sprintf("Items [%s]", f), s.Data)
	}
}

func printItems(title string, items []store.Item) {
	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  " + title)
	cyan.Println("  " + strings.Repeat("-", len(title)))

	if len(items) == 0 {
		fmt.Println("  (no items)")
		fmt.Println()
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tOWNER\tIMAGE\tADDED")
	fmt.Fprintln(w, "  --\t----\t-----\t-----\t-----")
	for _, it := range items {
		image := it.ImageLocation
		if image == "" {
			image = "-"
		}
		fmt.Fprintf(w, "  %d\t%s\t%d\t%s\t%s\n",
			it.ID, truncate(it.Name, 32), it.OwnerID, truncate(image, 40),
			it.CreatedAt.Local().Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()
}
