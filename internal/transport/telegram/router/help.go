package router

import (
	"strings"
	"unicode"

	kit "autolike/internal/transport"
)

func (m *CommandManager) helpText(admin bool) string {
	m.mu.RLock()
	cmds := append([]*Command(nil), m.ordered...)
	m.mu.RUnlock()

	var b strings.Builder
	b.WriteString("📚 Commands\n")
	for _, c := range cmds {
		if c.Access == AccessAdminOnly && !admin {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		b.WriteString("\n" + usage)
		if c.Description != "" {
			b.WriteString(" - " + c.Description)
		}
		if c.Access == AccessAdminOnly {
			b.WriteString(" (admin)")
		}
	}
	return b.String()
}

// sanitizeMenuCommand maps a name onto Telegram's [a-z0-9_]{1,32}.
func sanitizeMenuCommand(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

func buildMenu(cmds []*Command) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(cmds))
	seen := map[string]bool{}
	for _, c := range cmds {
		name := sanitizeMenuCommand(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, kit.BotCommand{Command: name, Description: c.Description})
	}
	return out
}
