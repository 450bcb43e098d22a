package frame

// This package implements parsing and serialising of STOMP frames.
//
// A frame on the wire looks like
//
//   ```
//   COMMAND\n
//   name:value\n
//   ...\n
//   \n
//   <body>\x00
//   ```
//
// - The command is a short uppercase verb (SEND, MESSAGE, RECEIPT, ...).
// - Headers are one per line, split at the first colon. STOMP 1.0 escapes
//   only '\n' in values; 1.1+ escapes backslash, CR, LF and colon in both
//   names and values.
// - The body is arbitrary bytes and may contain NULs. When it does, a
//   content-length header tells the peer where the body really ends;
//   otherwise the first NUL terminates the frame.
// - A heartbeat is a bare '\n' byte between frames (also accepted as
//   '\r\n' on receive).
//
// The Parser is incremental: it accepts bytes in whatever chunks the
// transport produces them and never fails on a short read. It either
// produces a frame, or reports that no complete frame is buffered yet.
