// File: internal/session/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package session tracks the client connections of the relay: one Conn handle
// per accepted socket, the ordered Registry the event loop broadcasts over,
// and the per-connection outbox that holds relay bytes a slow peer could not
// take yet.
package session
