// Package gtksettings toggles the GTK2 appmenu-gtk-module flag in
// ~/.gtkrc-2.0 so GTK2 clients advertise their menus through this
// daemon. This is plain key=value line editing, not menu logic, so it
// stays stdlib-only rather than reaching for a library from the
// example pack: there is no domain library for gtkrc in the pack and
// the format does not warrant one.
package gtksettings

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const moduleName = "appmenu-gtk-module"

// Path returns the default location of the GTK2 settings file for the
// current user.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return home + "/.gtkrc-2.0", nil
}

// Enable adds moduleName to the gtk-modules line of the file at path,
// if the file exists. It does not create the file: a missing
// .gtkrc-2.0 usually means first login, and creating one here would
// interfere with whatever default generation the desktop does on
// first run.
func Enable(path string) error {
	return rewrite(path, func(modules []string) []string {
		for _, m := range modules {
			if m == moduleName {
				return modules
			}
		}
		return append(modules, moduleName)
	})
}

// Disable removes moduleName from the gtk-modules line of the file at
// path, if present.
func Disable(path string) error {
	return rewrite(path, func(modules []string) []string {
		out := modules[:0]
		for _, m := range modules {
			if m != moduleName {
				out = append(out, m)
			}
		}
		return out
	})
}

// rewrite reads path line by line, applies edit to the gtk-modules
// value wherever that line appears, and writes the whole file back.
// It is a no-op if path does not exist.
func rewrite(path string, edit func(modules []string) []string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %v: %w", path, err)
	}

	lines := splitLines(data)
	found := false
	for i, line := range lines {
		key, value, ok := parseKeyValue(line)
		if !ok || key != "gtk-modules" {
			continue
		}
		found = true
		modules := edit(splitModules(value))
		lines[i] = fmt.Sprintf("gtk-modules=%s", strings.Join(modules, ":"))
	}
	if !found {
		modules := edit(nil)
		if len(modules) > 0 {
			lines = append(lines, fmt.Sprintf("gtk-modules=%s", strings.Join(modules, ":")))
		}
	}

	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}

func splitLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func parseKeyValue(line string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	k, v, found := strings.Cut(trimmed, "=")
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(k), strings.TrimSpace(v), true
}

func splitModules(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ":")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
