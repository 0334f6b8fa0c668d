// Package logx is autolike's structured logging on top of zerolog.
//
// Loggers are cheap values carrying fixed fields and a short caller. The
// Service behind them fans out to a readable console, a JSON file and an
// optional rate-limited Telegram chat, and can be reconfigured live.
package logx
