package tui

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Command is a parsed ":" command. Args is the raw remainder after the name.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':'). The name
// ends at the first whitespace and is case-insensitive.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	name, args := input, ""
	if i := strings.IndexFunc(input, unicode.IsSpace); i >= 0 {
		name, args = input[:i], input[i+1:]
	}
	return Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
}

// Path reads Args as a single filesystem path: one pair of surrounding
// quotes is dropped and a leading ~ is the home directory, so both
// `:dir ~/My Media` and `:dir "/mnt/usb/wa media"` name one directory.
func (c Command) Path() string {
	p := c.Args
	if len(p) >= 2 && (p[0] == '"' || p[0] == '\'') && p[len(p)-1] == p[0] {
		p = p[1 : len(p)-1]
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	return p
}
