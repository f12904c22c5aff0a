// Package shell opens interactive, PTY-backed shells on remote instances over SSH.
//
// It wraps golang.org/x/crypto/ssh and exposes the remote shell as a [Stream]:
// a duplex byte stream with a resize control. Negotiation happens in two steps
// so callers can observe progress:
//
//  1. [Dial] connects to host:port and authenticates with the configured
//     private key and username, returning a [Client] (the transport).
//  2. [Client.Shell] requests a pseudo-terminal and starts the login shell,
//     returning a [Session].
//
// Both steps share one ready-timeout budget ([Config.ReadyTimeout]). Any
// failure during negotiation is reported as an [*Error] carrying the [Stage]
// that failed and the underlying cause, and tears the transport down.
//
// [SSHDialer] adapts the two steps to the [Dialer] and [Transport] interfaces
// consumed by the session bridge, which lets tests substitute in-memory fakes.
//
// # Stream semantics
//
//   - Write delivers bytes to the remote shell's input.
//   - Read returns remote output (stdout and stderr interleaved, as a PTY
//     would present them) as soon as it arrives. io.EOF marks the end of the
//     shell.
//   - Resize sends a window-change request.
//   - Wait blocks until the shell ends and reports whether it ended gracefully.
//   - After Close, or after the shell ends, Write and Resize fail with
//     [ErrClosed]. Close is idempotent.
//
// # Log Prefixes
//
// All log lines use the [shell] prefix.
package shell
