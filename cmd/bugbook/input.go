// ABOUTME: Terminal input helpers for the CLI
// ABOUTME: Prompts, hidden password entry and a small flag parser

package main

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// stdin is shared by prompts and the watch filter switcher
var stdin = bufio.NewReader(os.Stdin)

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

// readPassword reads a password without echo when stdin is a terminal, and a
// plain line otherwise so scripts can pipe one in.
func readPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Printf("%s: ", label)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return string(b), nil
}

// readNewPassword asks twice and requires both entries to match.
func readNewPassword() (string, error) {
	pw, err := readPassword("Password")
	if err != nil {
		return "", err
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return pw, nil
	}
	confirm, err := readPassword("Confirm password")
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	return pw, nil
}

// argSet is the result of parseArgs
type argSet struct {
	values     map[string]string
	switches   map[string]bool
	positional []string
}

func (a *argSet) value(name string) string { return a.values[name] }
func (a *argSet) has(name string) bool     { return a.switches[name] }

// parseArgs accepts "--name value", "--name=value" for valueFlags and bare
// "--name" for switchFlags. Anything else starting with "-" is an error.
func parseArgs(args []string, valueFlags, switchFlags []string) (*argSet, error) {
	set := &argSet{
		values:   make(map[string]string),
		switches: make(map[string]bool),
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			set.positional = append(set.positional, arg)
			continue
		}

		name, val, hasVal := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		switch {
		case slices.Contains(valueFlags, name):
			if !hasVal {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("--%s requires a value", name)
				}
				val = args[i+1]
				i++
			}
			set.values[name] = val
		case slices.Contains(switchFlags, name) && !hasVal:
			set.switches[name] = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
	}

	return set, nil
}

// parseIntArg parses a positive ID
func parseIntArg(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return v, nil
}

// truncate shortens s to maxLen runes, never splitting a character
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
