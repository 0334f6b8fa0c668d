// Package notifier delivers run results to the single output group chat.
//
// Delivery is synchronous and best effort: failures are logged and counted,
// never returned. A token-bucket limiter paces sends so bursts of results stay
// under the group flood limit.
package notifier
