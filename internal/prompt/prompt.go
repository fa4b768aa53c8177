// Package prompt asks the user which mailboxes to scan.
package prompt

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrNoSelection is returned when the user confirms an empty selection.
var ErrNoSelection = errors.New("no mailbox selected")

// Interactive reports whether stdin and stdout are attached to a terminal.
func Interactive() bool {
	in, out := os.Stdin.Fd(), os.Stdout.Fd()
	return (isatty.IsTerminal(in) || isatty.IsCygwinTerminal(in)) &&
		(isatty.IsTerminal(out) || isatty.IsCygwinTerminal(out))
}

// Options builds the choices offered for the available mailboxes, with
// preselected ones marked.
func Options(available, preselected []string) []huh.Option[string] {
	selected := make(map[string]bool, len(preselected))
	for _, p := range preselected {
		selected[p] = true
	}
	opts := make([]huh.Option[string], 0, len(available))
	for _, name := range available {
		opts = append(opts, huh.NewOption(name, name).Selected(selected[name]))
	}
	return opts
}

// SelectMailboxes shows a multi-select over available and returns the
// chosen names in the order they are listed.
func SelectMailboxes(available []string) ([]string, error) {
	if len(available) == 0 {
		return nil, ErrNoSelection
	}
	var chosen []string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Mailboxes to scan").
				Description("space to toggle, enter to confirm").
				Options(Options(available, nil)...).
				Value(&chosen),
		),
	)
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("mailbox selection: %w", err)
	}
	if len(chosen) == 0 {
		return nil, ErrNoSelection
	}
	return chosen, nil
}
