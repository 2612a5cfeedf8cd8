// Package socket multiplexes bidirectional byte streams between logical
// terminal sessions and their remote websocket clients over one shared
// listening port.
//
// The package implements:
//   - Socket: the public facade; owns the server lifecycle and routes
//     operations (Listen, Stop, StopAll, SendText) by terminal handle
//   - transportServer: the listening socket, accept loop, and
//     per-connection event dispatch on background goroutines
//   - registry: the lock-protected mapping from handle to live
//     connection and callback set
//   - ResolveHandle: extraction of the handle from an upgrade path of
//     the form /terminal/<handle>/
//
// One physical connection serves exactly one handle. Payloads are UTF-8
// text frames; each frame is one complete logical message.
package socket
