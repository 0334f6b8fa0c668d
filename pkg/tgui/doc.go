// Package tgui holds small text helpers for Telegram messages: legacy
// Markdown escaping and rune-safe truncation.
package tgui
