// SPDX-License-Identifier: MIT
/*
Package transport fans analysis results out to external consumers.
Implementations are thread-safe and never block the caller: a slow or
absent consumer costs messages, not analysis throughput.
*/
package transport

// Transport sends processed results or events to a consumer.
type Transport interface {
	Send(v any) error
	Close() error
}
