package tgui

import "strings"

var mdEscaper = strings.NewReplacer(
	`\`, `\\`,
	"_", `\_`,
	"*", `\*`,
	"`", "\\`",
	"[", `\[`,
)

// EscMarkdown escapes s for use outside entities in ParseMode "Markdown".
func EscMarkdown(s string) string { return mdEscaper.Replace(s) }

// CodeSafe makes s safe inside a `code` span, where Markdown has no escape
// sequence: backticks are replaced by a prime.
func CodeSafe(s string) string { return strings.ReplaceAll(s, "`", "′") }
