// Package voting implements the community vote: command parsing, the tally table embedded in the bot's reply,
// vote eligibility, and the threshold that decides whether a finished vote flags a post for moderators.
package voting

import (
	"fmt"
	"strings"
	"unicode"
)

// Option is one vote choice: the command voters type (without prefix) and the label shown in the table.
type Option struct {
	Command string
	Label   string
}

// Options are ordered. The first option is the "keep" vote and the second the "remove" vote.
type Options []Option

func DefaultOptions() Options {
	return Options{
		{Command: "yes", Label: "Beginner"},
		{Command: "no", Label: "Not Beginner"},
	}
}

// ParseOptions reads "command=Label" pairs, e.g. from a CLI flag.
func ParseOptions(pairs []string) (Options, error) {
	var out Options
	for _, p := range pairs {
		cmd, label, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid voting option %q: expected command=Label", p)
		}
		out = append(out, Option{Command: strings.ToLower(strings.TrimSpace(cmd)), Label: strings.TrimSpace(label)})
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func (o Options) Validate() error {
	if len(o) < 2 {
		return fmt.Errorf("at least two voting options are required, got %d", len(o))
	}
	cmds := make(map[string]bool, len(o))
	labels := make(map[string]bool, len(o))
	for _, opt := range o {
		if opt.Command == "" || opt.Label == "" {
			return fmt.Errorf("voting option has empty command or label: %+v", opt)
		}
		if strings.IndexFunc(opt.Command, unicode.IsSpace) >= 0 || opt.Command != strings.ToLower(opt.Command) {
			return fmt.Errorf("voting command must be lower-case with no spaces: %q", opt.Command)
		}
		if strings.Contains(opt.Label, "|") {
			return fmt.Errorf("voting label must not contain a pipe: %q", opt.Label)
		}
		if cmds[opt.Command] || labels[opt.Label] {
			return fmt.Errorf("duplicate voting option: %+v", opt)
		}
		cmds[opt.Command] = true
		labels[opt.Label] = true
	}
	return nil
}

func (o Options) Labels() []string {
	out := make([]string, len(o))
	for i, opt := range o {
		out[i] = opt.Label
	}
	return out
}

// Lookup maps a parsed command to its option label.
func (o Options) Lookup(command string) (string, bool) {
	for _, opt := range o {
		if opt.Command == command {
			return opt.Label, true
		}
	}
	return "", false
}

// ParseCommand normalizes a comment body into a command token: the prefix is stripped, then surrounding whitespace,
// then the result is lower-cased. Bodies without the prefix yield the empty string.
func ParseCommand(body, prefix string) string {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, prefix) {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(body, prefix)))
}
